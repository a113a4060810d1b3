package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/fintrack/wa-gateway/internal/model"
)

// WhatsmeowTransport implements Transport over the whatsmeow multidevice
// client. Device credentials persist in a SQLite store so pairing survives
// restarts.
type WhatsmeowTransport struct {
	client *whatsmeow.Client
	logger *slog.Logger
	events chan Event

	mu        sync.Mutex
	qrWatcher bool
	closed    bool
}

// NewWhatsmeowTransport opens the device store at storePath and builds an
// unconnected transport.
func NewWhatsmeowTransport(storePath string, logger *slog.Logger) (*WhatsmeowTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	container, err := sqlstore.New("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", storePath), waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	device, err := container.GetFirstDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	t := &WhatsmeowTransport{
		client: whatsmeow.NewClient(device, waLog.Noop),
		logger: logger,
		events: make(chan Event, 64),
	}
	t.client.AddEventHandler(t.handleEvent)

	return t, nil
}

// Connect establishes the socket. When the device is not yet paired it also
// starts forwarding QR codes on the event stream.
func (t *WhatsmeowTransport) Connect(ctx context.Context) error {
	if t.client.IsConnected() {
		return nil
	}

	if t.client.Store.ID == nil {
		// Not paired yet; QR channel must be requested before Connect.
		qrChan, err := t.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		t.watchQR(qrChan)
	}

	if err := t.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (t *WhatsmeowTransport) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	t.mu.Lock()
	if t.qrWatcher {
		t.mu.Unlock()
		return
	}
	t.qrWatcher = true
	t.mu.Unlock()

	go func() {
		defer func() {
			t.mu.Lock()
			t.qrWatcher = false
			t.mu.Unlock()
		}()
		for item := range qrChan {
			if item.Event == "code" {
				t.emit(Event{Kind: EventQR, QRCode: item.Code})
			}
		}
	}()
}

// Send delivers a plain text message to a JID.
func (t *WhatsmeowTransport) Send(ctx context.Context, jid, text string) error {
	recipient, err := types.ParseJID(jid)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", jid, err)
	}

	_, err = t.client.SendMessage(ctx, recipient, &waProto.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (t *WhatsmeowTransport) Events() <-chan Event {
	return t.events
}

func (t *WhatsmeowTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.client.Disconnect()
	close(t.events)
	return nil
}

func (t *WhatsmeowTransport) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		t.emit(Event{Kind: EventState, State: model.StateConnected})

	case *events.Disconnected:
		t.emit(Event{Kind: EventState, State: model.StateDisconnected})

	case *events.LoggedOut:
		t.emit(Event{Kind: EventState, State: model.StateDisconnected, LoggedOut: true})

	case *events.Message:
		msg := t.inbound(v)
		if msg != nil {
			t.emit(Event{Kind: EventMessage, Message: msg})
		}
	}
}

// inbound filters raw message events down to direct text messages from
// other users. Self, group and non-text messages are dropped.
func (t *WhatsmeowTransport) inbound(v *events.Message) *InboundMessage {
	if v.Info.IsFromMe {
		return nil
	}
	if v.Info.Chat.Server != types.DefaultUserServer {
		return nil
	}

	text := v.Message.GetConversation()
	if text == "" {
		text = v.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		return nil
	}

	return &InboundMessage{
		ChannelID: v.Info.Sender.String(),
		Text:      text,
		PushName:  v.Info.PushName,
		Timestamp: v.Info.Timestamp,
	}
}

func (t *WhatsmeowTransport) emit(ev Event) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}

	select {
	case t.events <- ev:
	default:
		t.logger.Warn("dropping transport event, consumer too slow", "kind", ev.Kind)
	}
}
