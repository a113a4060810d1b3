package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fintrack/wa-gateway/internal/common"
	"github.com/fintrack/wa-gateway/internal/delivery"
	"github.com/fintrack/wa-gateway/internal/model"
	"github.com/fintrack/wa-gateway/internal/templates"
)

type sendRequest struct {
	PhoneNumber string            `json:"phoneNumber"`
	Message     string            `json:"message"`
	TemplateID  string            `json:"templateId,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
}

type sendResponse struct {
	ID     string          `json:"id"`
	Status model.JobStatus `json:"status"`
}

type bulkSendRequest struct {
	Messages []sendRequest `json:"messages"`
}

type messageStatusResponse struct {
	*model.DeliveryJob
	Logs []model.DeliveryLogEntry `json:"logs"`
}

// resolveBody renders the message body, expanding a template when one is
// referenced. A direct message body wins over a template.
func (s *Server) resolveBody(ctx context.Context, req sendRequest) (string, error) {
	if req.Message != "" {
		return req.Message, nil
	}
	if req.TemplateID == "" {
		return "", errors.New("either message or templateId is required")
	}

	tmpl, err := s.store.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", errors.New("template not found")
		}
		return "", err
	}
	return templates.Render(tmpl.Content, req.Variables), nil
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, "phoneNumber is required")
		return
	}

	body, err := s.resolveBody(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.outbox.Enqueue(r.Context(), delivery.Request{
		UserID:     UserID(r.Context()),
		Recipient:  req.PhoneNumber,
		Body:       body,
		TemplateID: req.TemplateID,
	})
	if err != nil {
		if errors.Is(err, common.ErrQueueClosed) {
			writeError(w, http.StatusServiceUnavailable, "delivery queue is shut down")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, sendResponse{ID: job.ID, Status: job.Status})
}

func (s *Server) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkSendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	userID := UserID(r.Context())
	reqs := make([]delivery.Request, 0, len(req.Messages))
	for _, item := range req.Messages {
		body, err := s.resolveBody(r.Context(), item)
		if err != nil {
			// Leave the body empty; Enqueue rejects it and the bulk
			// result carries the per-item error.
			body = ""
		}
		reqs = append(reqs, delivery.Request{
			UserID:     userID,
			Recipient:  item.PhoneNumber,
			Body:       body,
			TemplateID: item.TemplateID,
		})
	}

	results := s.outbox.EnqueueBulk(r.Context(), reqs)
	writeJSON(w, http.StatusAccepted, map[string]any{"results": results})
}

func (s *Server) handleMessageStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load message")
		return
	}

	// Callers only see their own messages.
	if job.UserID != UserID(r.Context()) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}

	logs, err := s.store.GetDeliveryLog(r.Context(), id, 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load delivery log")
		return
	}

	writeJSON(w, http.StatusOK, messageStatusResponse{DeliveryJob: job, Logs: logs})
}

type mintTokenRequest struct {
	UserID string `json:"userId"`
}

type mintTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// handleMintToken issues a backend JWT for a user. The token is also cached
// so the chat pipeline can act for the user without a fresh login.
func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	var req mintTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	now := s.now()
	expiresAt := now.Add(s.auth.TokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": req.UserID,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(s.auth.JWTSecret))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}

	s.tokens.Store(req.UserID, signed)

	writeJSON(w, http.StatusOK, mintTokenResponse{Token: signed, ExpiresAt: expiresAt.Unix()})
}
