package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/wa-gateway/internal/common"
	"github.com/fintrack/wa-gateway/internal/model"
)

func newTestManager(t *testing.T, transport *MockTransport) *Manager {
	t.Helper()
	m := NewManager(transport, ManagerConfig{
		ReconnectDelay: time.Millisecond,
		MaxReconnects:  5,
	}, nil)
	m.sleep = func(_ context.Context, _ time.Duration) bool { return true }
	m.qrOut = io.Discard
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestManagerConnectLifecycle(t *testing.T) {
	transport := NewMockTransport()
	m := newTestManager(t, transport)

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, model.StateConnecting, m.Status())

	transport.Emit(Event{Kind: EventState, State: model.StateConnected})
	waitFor(t, func() bool { return m.Status() == model.StateConnected })
}

func TestManagerQRCode(t *testing.T) {
	transport := NewMockTransport()
	m := newTestManager(t, transport)
	require.NoError(t, m.Start(context.Background()))

	transport.Emit(Event{Kind: EventQR, QRCode: "2@abc123"})
	waitFor(t, func() bool { return m.QRCode() == "2@abc123" })

	// Pairing succeeded; the code is stale and must be cleared.
	transport.Emit(Event{Kind: EventState, State: model.StateConnected})
	waitFor(t, func() bool { return m.QRCode() == "" })
}

func TestManagerSendRequiresConnection(t *testing.T) {
	transport := NewMockTransport()
	m := newTestManager(t, transport)
	require.NoError(t, m.Start(context.Background()))

	err := m.SendMessage(context.Background(), "081234567890", "halo")
	assert.ErrorIs(t, err, common.ErrNotConnected)

	transport.Emit(Event{Kind: EventState, State: model.StateConnected})
	waitFor(t, func() bool { return m.Status() == model.StateConnected })

	require.NoError(t, m.SendMessage(context.Background(), "081234567890", "halo"))
	sent := transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "6281234567890@s.whatsapp.net", sent[0].JID)
	assert.Equal(t, "halo", sent[0].Text)
}

func TestManagerReconnectOnDrop(t *testing.T) {
	transport := NewMockTransport()
	m := newTestManager(t, transport)
	require.NoError(t, m.Start(context.Background()))

	transport.Emit(Event{Kind: EventState, State: model.StateConnected})
	waitFor(t, func() bool { return m.Status() == model.StateConnected })

	transport.Emit(Event{Kind: EventState, State: model.StateDisconnected})
	waitFor(t, func() bool { return transport.Connects() >= 2 })
}

func TestManagerNoReconnectOnLogout(t *testing.T) {
	transport := NewMockTransport()
	m := newTestManager(t, transport)
	require.NoError(t, m.Start(context.Background()))

	transport.Emit(Event{Kind: EventState, State: model.StateConnected})
	waitFor(t, func() bool { return m.Status() == model.StateConnected })

	transport.Emit(Event{Kind: EventState, State: model.StateDisconnected, LoggedOut: true})
	waitFor(t, func() bool { return m.LoggedOut() })

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, transport.Connects())

	err := m.SendMessage(context.Background(), "081234567890", "halo")
	assert.ErrorIs(t, err, common.ErrLoggedOut)
}

func TestManagerGivesUpAfterMaxReconnects(t *testing.T) {
	transport := NewMockTransport()
	transport.ConnectFunc = func(_ context.Context) error {
		if transport.Connects() == 1 {
			return nil
		}
		return fmt.Errorf("socket refused")
	}

	m := newTestManager(t, transport)
	require.NoError(t, m.Start(context.Background()))

	transport.Emit(Event{Kind: EventState, State: model.StateConnected})
	waitFor(t, func() bool { return m.Status() == model.StateConnected })

	transport.Emit(Event{Kind: EventState, State: model.StateDisconnected})

	// One initial connect plus five failed retries, then it stops.
	waitFor(t, func() bool { return transport.Connects() == 6 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 6, transport.Connects())
}

func TestManagerManualReconnectResetsCounter(t *testing.T) {
	var failing atomic.Bool
	transport := NewMockTransport()
	transport.ConnectFunc = func(_ context.Context) error {
		if failing.Load() {
			return errors.New("socket refused")
		}
		return nil
	}

	m := newTestManager(t, transport)
	require.NoError(t, m.Start(context.Background()))

	transport.Emit(Event{Kind: EventState, State: model.StateConnected})
	waitFor(t, func() bool { return m.Status() == model.StateConnected })

	failing.Store(true)
	transport.Emit(Event{Kind: EventState, State: model.StateDisconnected})
	waitFor(t, func() bool { return transport.Connects() == 6 })

	failing.Store(false)
	require.NoError(t, m.Reconnect(context.Background()))
	transport.Emit(Event{Kind: EventState, State: model.StateConnected})
	waitFor(t, func() bool { return m.Status() == model.StateConnected })
}

func TestManagerDispatchesMessages(t *testing.T) {
	transport := NewMockTransport()
	m := newTestManager(t, transport)

	var mu sync.Mutex
	var received []string
	m.SetHandler(func(_ context.Context, msg *InboundMessage) {
		mu.Lock()
		received = append(received, msg.Text)
		mu.Unlock()
	})

	require.NoError(t, m.Start(context.Background()))

	transport.Emit(Event{Kind: EventMessage, Message: &InboundMessage{
		ChannelID: "6281234567890@s.whatsapp.net",
		Text:      "Beli makan siang 50rb",
	}})
	// Empty text is dropped before the handler.
	transport.Emit(Event{Kind: EventMessage, Message: &InboundMessage{
		ChannelID: "6281234567890@s.whatsapp.net",
	}})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Beli makan siang 50rb"}, received)
}

func TestManagerCloseIdempotent(t *testing.T) {
	transport := NewMockTransport()
	m := newTestManager(t, transport)
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, model.StateDisconnected, m.Status())
}
