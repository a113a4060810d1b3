package api

import (
	"encoding/base64"
	"net/http"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/fintrack/wa-gateway/internal/model"
)

type sessionStatusResponse struct {
	State       model.ConnectionState `json:"state"`
	Connected   bool                  `json:"connected"`
	LoggedOut   bool                  `json:"loggedOut"`
	NeedsQRScan bool                  `json:"needsQrScan"`
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	state := s.session.Status()
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		State:       state,
		Connected:   state == model.StateConnected,
		LoggedOut:   s.session.LoggedOut(),
		NeedsQRScan: s.session.QRCode() != "",
	})
}

type qrResponse struct {
	QR string `json:"qr"`
}

// handleQR returns the pairing QR code as a PNG data URL, ready for an <img>
// tag.
func (s *Server) handleQR(w http.ResponseWriter, _ *http.Request) {
	code := s.session.QRCode()
	if code == "" {
		writeError(w, http.StatusNotFound, "no QR code pending, session may already be paired")
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render QR code")
		return
	}

	writeJSON(w, http.StatusOK, qrResponse{
		QR: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

// handleQRImage returns the pairing QR code as a raw PNG.
func (s *Server) handleQRImage(w http.ResponseWriter, _ *http.Request) {
	code := s.session.QRCode()
	if code == "" {
		writeError(w, http.StatusNotFound, "no QR code pending, session may already be paired")
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reconnect(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconnecting"})
}
