package api

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
)

type createMappingRequest struct {
	UserID      string `json:"userId"`
	PhoneNumber string `json:"phoneNumber"`
}

type createMappingResponse struct {
	VerificationCode string `json:"verificationCode"`
}

// handleCreateMapping registers a phone number for a user and returns the
// verification code the backend relays to the user out of band.
func (s *Server) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	var req createMappingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, "userId and phoneNumber are required")
		return
	}

	code, err := verificationCode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate verification code")
		return
	}

	if err := s.registrar.CreatePendingMapping(r.Context(), req.UserID, req.PhoneNumber, code); err != nil {
		s.logger.Error("failed to create mapping", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create mapping")
		return
	}

	writeJSON(w, http.StatusCreated, createMappingResponse{VerificationCode: code})
}

type verifyMappingRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Code        string `json:"code"`
}

// handleVerifyMapping redeems a verification code. Codes are single use;
// a second attempt with the same code fails.
func (s *Server) handleVerifyMapping(w http.ResponseWriter, r *http.Request) {
	var req verifyMappingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PhoneNumber == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "phoneNumber and code are required")
		return
	}

	ok, err := s.registrar.Verify(r.Context(), req.PhoneNumber, req.Code)
	if err != nil {
		s.logger.Error("failed to verify mapping", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to verify mapping")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid or expired verification code")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// verificationCode generates a 6-digit numeric code.
func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
