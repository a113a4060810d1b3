package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fintrack/wa-gateway/internal/common"
	"github.com/fintrack/wa-gateway/internal/model"
	"github.com/fintrack/wa-gateway/internal/templates"
)

type templateRequest struct {
	Name        string   `json:"name"`
	Content     string   `json:"content"`
	Variables   []string `json:"variables,omitempty"`
	Description string   `json:"description,omitempty"`
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "name and content are required")
		return
	}

	variables := req.Variables
	if len(variables) == 0 {
		variables = templates.Variables(req.Content)
	} else if undeclared := templates.Validate(req.Content, variables); len(undeclared) > 0 {
		writeError(w, http.StatusBadRequest, "content uses undeclared variables: "+undeclared[0])
		return
	}

	tmpl := &model.Template{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Content:     req.Content,
		Variables:   variables,
		Description: req.Description,
	}
	if err := s.store.CreateTemplate(r.Context(), tmpl); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			writeError(w, http.StatusConflict, "template name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create template")
		return
	}

	writeJSON(w, http.StatusCreated, tmpl)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListTemplates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list templates")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": list})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.store.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusNotFound, "template not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load template")
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "name and content are required")
		return
	}

	variables := req.Variables
	if len(variables) == 0 {
		variables = templates.Variables(req.Content)
	}

	tmpl := &model.Template{
		ID:          chi.URLParam(r, "id"),
		Name:        req.Name,
		Content:     req.Content,
		Variables:   variables,
		Description: req.Description,
	}
	if err := s.store.UpdateTemplate(r.Context(), tmpl); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusNotFound, "template not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update template")
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusNotFound, "template not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete template")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type triggerRequest struct {
	Name       string                  `json:"name"`
	EventType  model.EventType         `json:"eventType"`
	Conditions model.TriggerConditions `json:"conditions"`
	TemplateID string                  `json:"templateId"`
	Enabled    *bool                   `json:"enabled,omitempty"`
}

func (s *Server) handleCreateTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.EventType == "" || req.TemplateID == "" {
		writeError(w, http.StatusBadRequest, "name, eventType and templateId are required")
		return
	}

	// The template must exist before a trigger can reference it.
	if _, err := s.store.GetTemplate(r.Context(), req.TemplateID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "referenced template does not exist")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to check template")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	trg := &model.Trigger{
		ID:         uuid.New().String(),
		Name:       req.Name,
		EventType:  req.EventType,
		Conditions: req.Conditions,
		TemplateID: req.TemplateID,
		Enabled:    enabled,
	}
	if err := s.store.CreateTrigger(r.Context(), trg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create trigger")
		return
	}
	writeJSON(w, http.StatusCreated, trg)
}

func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	eventType := model.EventType(r.URL.Query().Get("eventType"))

	list, err := s.store.ListTriggers(r.Context(), eventType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list triggers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"triggers": list})
}

func (s *Server) handleDeleteTrigger(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTrigger(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trigger not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete trigger")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
