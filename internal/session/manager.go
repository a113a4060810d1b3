package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/fintrack/wa-gateway/internal/common"
	"github.com/fintrack/wa-gateway/internal/model"
	"github.com/fintrack/wa-gateway/internal/phone"
)

// Handler processes inbound chat messages.
type Handler func(ctx context.Context, msg *InboundMessage)

// ManagerConfig tunes the session manager.
type ManagerConfig struct {
	ReconnectDelay time.Duration
	MaxReconnects  int
	CountryCode    string
}

// Manager owns the WhatsApp connection lifecycle. It tracks connection
// state, holds the current QR pairing code, reconnects after unexpected
// drops, and fans inbound messages out to the handler.
type Manager struct {
	transport Transport
	logger    *slog.Logger
	cfg       ManagerConfig

	mu        sync.Mutex
	state     model.ConnectionState
	qrCode    string
	loggedOut bool
	failures  int
	closed    bool
	handler   Handler

	wg     sync.WaitGroup
	cancel context.CancelFunc

	// sleep is swappable so tests do not wait out real reconnect delays.
	sleep func(ctx context.Context, d time.Duration) bool

	// qrOut is where pairing codes are rendered for the operator.
	qrOut io.Writer
}

// NewManager creates a session manager over the given transport.
func NewManager(transport Transport, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 5
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = phone.DefaultCountryCode
	}
	return &Manager{
		transport: transport,
		logger:    logger,
		cfg:       cfg,
		state:     model.StateDisconnected,
		sleep:     sleepCtx,
		qrOut:     os.Stdout,
	}
}

// SetHandler registers the inbound message handler. Must be called before
// Start.
func (m *Manager) SetHandler(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Start connects the transport and begins processing its events.
func (m *Manager) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("session manager is closed")
	}
	m.cancel = cancel
	m.state = model.StateConnecting
	m.mu.Unlock()

	if err := m.transport.Connect(runCtx); err != nil {
		m.setState(model.StateDisconnected)
		return fmt.Errorf("failed to connect: %w", err)
	}

	m.wg.Add(1)
	go m.run(runCtx)

	return nil
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.transport.Events():
			if !ok {
				return
			}
			m.handleEvent(ctx, ev)
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventQR:
		m.mu.Lock()
		m.qrCode = ev.QRCode
		m.mu.Unlock()
		m.logger.Info("QR pairing code received, scan with WhatsApp to link the device")
		m.printQR(ev.QRCode)

	case EventState:
		m.handleStateEvent(ctx, ev)

	case EventMessage:
		m.dispatch(ctx, ev.Message)
	}
}

// printQR renders the pairing code to the operator console so the device
// can be linked without going through the HTTP API.
func (m *Manager) printQR(code string) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		m.logger.Warn("Failed to render QR code", "error", err)
		return
	}
	fmt.Fprintln(m.qrOut, qr.ToSmallString(false))
}

func (m *Manager) handleStateEvent(ctx context.Context, ev Event) {
	switch ev.State {
	case model.StateConnected:
		m.mu.Lock()
		m.state = model.StateConnected
		m.qrCode = ""
		m.loggedOut = false
		m.failures = 0
		m.mu.Unlock()
		m.logger.Info("WhatsApp session connected")

	case model.StateDisconnected:
		if ev.LoggedOut {
			m.mu.Lock()
			m.state = model.StateDisconnected
			m.loggedOut = true
			m.qrCode = ""
			m.mu.Unlock()
			m.logger.Warn("WhatsApp session logged out, re-pairing required")
			return
		}

		m.setState(model.StateDisconnected)
		m.logger.Warn("WhatsApp session disconnected")
		m.scheduleReconnect(ctx)

	case model.StateConnecting:
		m.setState(model.StateConnecting)
	}
}

// scheduleReconnect retries the connection after a delay, giving up once
// too many consecutive attempts fail. The counter resets when a connection
// succeeds.
func (m *Manager) scheduleReconnect(ctx context.Context) {
	m.mu.Lock()
	if m.closed || m.loggedOut {
		m.mu.Unlock()
		return
	}
	m.failures++
	attempt := m.failures
	m.mu.Unlock()

	if attempt > m.cfg.MaxReconnects {
		m.logger.Error("giving up on reconnection", "attempts", attempt-1)
		return
	}

	m.logger.Info("reconnecting",
		"attempt", attempt,
		"max_attempts", m.cfg.MaxReconnects,
		"delay", m.cfg.ReconnectDelay,
	)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		if !m.sleep(ctx, m.cfg.ReconnectDelay) {
			return
		}

		m.setState(model.StateConnecting)
		if err := m.transport.Connect(ctx); err != nil {
			m.logger.Error("reconnection attempt failed", "attempt", attempt, "error", err)
			m.setState(model.StateDisconnected)
			m.scheduleReconnect(ctx)
		}
	}()
}

func (m *Manager) dispatch(ctx context.Context, msg *InboundMessage) {
	if msg == nil || msg.Text == "" {
		return
	}

	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler == nil {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		handler(ctx, msg)
	}()
}

// SendMessage sends a text message to a phone number or JID. The recipient
// is normalized before sending.
func (m *Manager) SendMessage(ctx context.Context, recipient, text string) error {
	m.mu.Lock()
	state := m.state
	loggedOut := m.loggedOut
	m.mu.Unlock()

	if loggedOut {
		return common.ErrLoggedOut
	}
	if state != model.StateConnected {
		return common.ErrNotConnected
	}

	canonical := phone.Normalize(recipient, m.cfg.CountryCode)
	if canonical == "" {
		return fmt.Errorf("invalid recipient %q: no digits", recipient)
	}

	return m.transport.Send(ctx, phone.JID(canonical), text)
}

// Status returns the current connection state.
func (m *Manager) Status() model.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// QRCode returns the current pairing code, or empty when none is pending.
func (m *Manager) QRCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.qrCode
}

// LoggedOut reports whether the session was logged out remotely and needs
// re-pairing.
func (m *Manager) LoggedOut() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedOut
}

// Reconnect forces a manual reconnection attempt and resets the failure
// counter. Used after the automatic retries have given up.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("session manager is closed")
	}
	m.failures = 0
	m.loggedOut = false
	m.state = model.StateConnecting
	m.mu.Unlock()

	if err := m.transport.Connect(ctx); err != nil {
		m.setState(model.StateDisconnected)
		return fmt.Errorf("failed to reconnect: %w", err)
	}
	return nil
}

// Close shuts the manager down. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := m.transport.Close()
	m.wg.Wait()

	m.setState(model.StateDisconnected)
	return err
}

func (m *Manager) setState(state model.ConnectionState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// sleepCtx waits for d, returning false when ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
