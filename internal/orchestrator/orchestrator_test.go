package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/wa-gateway/internal/backend"
	"github.com/fintrack/wa-gateway/internal/common"
	"github.com/fintrack/wa-gateway/internal/delivery"
	"github.com/fintrack/wa-gateway/internal/extract"
	"github.com/fintrack/wa-gateway/internal/model"
	"github.com/fintrack/wa-gateway/internal/session"
	"github.com/fintrack/wa-gateway/internal/trigger"
	"github.com/fintrack/wa-gateway/internal/wallet"
)

const testChannel = "6281234567890@s.whatsapp.net"

type mockIdentity struct {
	mapping *model.UserMapping
	err     error
}

func (m *mockIdentity) Resolve(_ context.Context, _ string) (*model.UserMapping, error) {
	return m.mapping, m.err
}

type mockExtractor struct {
	draft *model.TransactionDraft
	err   error
}

func (m *mockExtractor) Extract(_ context.Context, _ string) (*model.TransactionDraft, error) {
	return m.draft, m.err
}

type mockBackend struct {
	categoryID string
	txnID      string
	createErr  error

	created []backend.Transaction
}

func (m *mockBackend) FindCategoryID(_ context.Context, _, _ string) (string, error) {
	return m.categoryID, nil
}

func (m *mockBackend) CreateTransaction(_ context.Context, _ string, txn backend.Transaction) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.created = append(m.created, txn)
	return m.txnID, nil
}

type mockTokens struct {
	tokens  map[string]string
	cleared []string
}

func (m *mockTokens) TokenFor(userID string) (string, bool) {
	token, ok := m.tokens[userID]
	return token, ok
}

func (m *mockTokens) Clear(userID string) {
	m.cleared = append(m.cleared, userID)
	delete(m.tokens, userID)
}

type mockOutbox struct {
	requests []delivery.Request
}

func (m *mockOutbox) Enqueue(_ context.Context, req delivery.Request) (*model.DeliveryJob, error) {
	m.requests = append(m.requests, req)
	return &model.DeliveryJob{ID: fmt.Sprintf("job-%d", len(m.requests))}, nil
}

func (m *mockOutbox) lastBody(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.requests)
	return m.requests[len(m.requests)-1].Body
}

type mockNotifier struct {
	events []trigger.Event
}

func (m *mockNotifier) Fire(_ context.Context, ev trigger.Event) error {
	m.events = append(m.events, ev)
	return nil
}

type fixture struct {
	orch     *Orchestrator
	identity *mockIdentity
	extract  *mockExtractor
	backend  *mockBackend
	tokens   *mockTokens
	outbox   *mockOutbox
	notifier *mockNotifier
	wallets  *wallet.Engine
	lister   *walletLister
}

type walletLister struct {
	wallets []model.WalletOption
	err     error
}

func (l *walletLister) ListWallets(_ context.Context, _ string) ([]model.WalletOption, error) {
	return l.wallets, l.err
}

func expenseDraft() *model.TransactionDraft {
	return &model.TransactionDraft{
		Kind:        model.KindExpense,
		Amount:      decimal.NewFromInt(50000),
		Category:    "Makanan",
		Description: "makan siang",
		OccurredOn:  "2026-08-31",
	}
}

func setup(t *testing.T, wallets ...model.WalletOption) *fixture {
	t.Helper()

	f := &fixture{
		identity: &mockIdentity{mapping: &model.UserMapping{UserID: "user-1", PhoneNumber: "6281234567890", IsVerified: true}},
		extract:  &mockExtractor{draft: expenseDraft()},
		backend:  &mockBackend{categoryID: "c-1", txnID: "txn-1"},
		tokens:   &mockTokens{tokens: map[string]string{"user-1": "token-1"}},
		outbox:   &mockOutbox{},
		notifier: &mockNotifier{},
		lister:   &walletLister{wallets: wallets},
	}
	f.wallets = wallet.NewEngine(f.lister, wallet.NewMemoryStore(), 5*time.Minute, nil)
	f.orch = New(f.identity, f.extract, f.wallets, f.backend, f.tokens, f.outbox, f.notifier, nil)
	return f
}

func inbound(text string) *session.InboundMessage {
	return &session.InboundMessage{ChannelID: testChannel, Text: text}
}

func TestUnregisteredNumberIsDenied(t *testing.T) {
	f := setup(t, model.WalletOption{ID: "w-1", Name: "Cash"})
	f.identity.mapping = nil
	f.identity.err = common.ErrNotFound

	f.orch.HandleMessage(context.Background(), inbound("Beli makan siang 50rb"))

	require.Len(t, f.outbox.requests, 1)
	assert.Contains(t, f.outbox.lastBody(t), "belum terdaftar")
	assert.Empty(t, f.backend.created)
}

func TestMissingTokenPromptsRelogin(t *testing.T) {
	f := setup(t, model.WalletOption{ID: "w-1", Name: "Cash"})
	f.tokens.tokens = map[string]string{}

	f.orch.HandleMessage(context.Background(), inbound("Beli makan siang 50rb"))

	assert.Contains(t, f.outbox.lastBody(t), "login ulang")
	assert.Empty(t, f.backend.created)
}

func TestNonTransactionGetsGuidance(t *testing.T) {
	f := setup(t, model.WalletOption{ID: "w-1", Name: "Cash"})
	f.extract.draft = nil
	f.extract.err = &extract.Error{Code: extract.CodeInvalidDraft, Err: fmt.Errorf("not a transaction")}

	f.orch.HandleMessage(context.Background(), inbound("hello there"))

	body := f.outbox.lastBody(t)
	assert.Contains(t, body, "tidak dikenali sebagai transaksi")
	assert.Contains(t, body, "Beli makan siang 50rb")
}

func TestExtractionInfraFailure(t *testing.T) {
	f := setup(t, model.WalletOption{ID: "w-1", Name: "Cash"})
	f.extract.draft = nil
	f.extract.err = &extract.Error{Code: extract.CodeUnreachable, Err: fmt.Errorf("connection refused")}

	f.orch.HandleMessage(context.Background(), inbound("Beli makan siang 50rb"))

	assert.Contains(t, f.outbox.lastBody(t), "gangguan")
}

func TestNoWalletsPromptsCreation(t *testing.T) {
	f := setup(t)

	f.orch.HandleMessage(context.Background(), inbound("Beli makan siang 50rb"))

	assert.Contains(t, f.outbox.lastBody(t), "belum memiliki wallet")
	assert.Empty(t, f.backend.created)
}

func TestSingleWalletCreatesImmediately(t *testing.T) {
	f := setup(t, model.WalletOption{ID: "w-1", Name: "Cash", IsDefault: true})

	f.orch.HandleMessage(context.Background(), inbound("Beli makan siang 50rb"))

	require.Len(t, f.backend.created, 1)
	txn := f.backend.created[0]
	assert.Equal(t, model.KindExpense, txn.Kind)
	assert.Equal(t, "w-1", txn.WalletID)
	assert.Equal(t, "c-1", txn.CategoryID)
	assert.Equal(t, "2026-08-31", txn.Date)

	body := f.outbox.lastBody(t)
	assert.Contains(t, body, "✅ Transaksi berhasil dibuat!")
	assert.Contains(t, body, "Rp50.000")
	assert.Contains(t, body, "makan siang")

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, model.EventTransactionCreated, f.notifier.events[0].Type)
	assert.Equal(t, "txn-1", f.notifier.events[0].Data["transactionId"])
}

func TestWalletHintResolvesImmediately(t *testing.T) {
	f := setup(t,
		model.WalletOption{ID: "w-1", Name: "Cash", IsDefault: true},
		model.WalletOption{ID: "w-2", Name: "Bank BCA"},
	)
	f.extract.draft = &model.TransactionDraft{
		Kind:        model.KindIncome,
		Amount:      decimal.NewFromInt(5000000),
		Category:    "Gaji",
		Description: "gaji bulanan",
		OccurredOn:  "2026-08-31",
		WalletHint:  "bank",
	}

	f.orch.HandleMessage(context.Background(), inbound("Gaji bulanan 5jt dari bank"))

	require.Len(t, f.backend.created, 1)
	assert.Equal(t, "w-2", f.backend.created[0].WalletID)

	body := f.outbox.lastBody(t)
	assert.Contains(t, body, "Rp5.000.000")
	assert.Contains(t, body, "Bank BCA")
	assert.Contains(t, body, "Pemasukan")
}

func TestMultiTurnWalletSelection(t *testing.T) {
	f := setup(t,
		model.WalletOption{ID: "w-1", Name: "Cash", IsDefault: true},
		model.WalletOption{ID: "w-2", Name: "Bank BCA"},
	)
	ctx := context.Background()

	f.orch.HandleMessage(ctx, inbound("Beli makan siang 50rb"))

	prompt := f.outbox.lastBody(t)
	assert.Contains(t, prompt, "Pilih wallet")
	assert.Contains(t, prompt, "1. Cash (Default)")
	assert.Contains(t, prompt, "2. Bank BCA")
	assert.Contains(t, prompt, "Balas dengan nomor")
	assert.Empty(t, f.backend.created)

	// The numeric reply resolves the pending selection.
	f.orch.HandleMessage(ctx, inbound("2"))

	require.Len(t, f.backend.created, 1)
	assert.Equal(t, "w-2", f.backend.created[0].WalletID)
	assert.Contains(t, f.outbox.lastBody(t), "berhasil dibuat")
}

func TestInvalidSelectionReprompts(t *testing.T) {
	f := setup(t,
		model.WalletOption{ID: "w-1", Name: "Cash"},
		model.WalletOption{ID: "w-2", Name: "Bank BCA"},
	)
	ctx := context.Background()

	f.orch.HandleMessage(ctx, inbound("Beli makan siang 50rb"))
	f.orch.HandleMessage(ctx, inbound("9"))

	body := f.outbox.lastBody(t)
	assert.Contains(t, body, "Pilihan tidak dikenali")
	assert.Contains(t, body, "1. Cash")
	assert.Empty(t, f.backend.created)

	// A valid reply still completes the original draft.
	f.orch.HandleMessage(ctx, inbound("cash"))
	require.Len(t, f.backend.created, 1)
	assert.Equal(t, "w-1", f.backend.created[0].WalletID)
}

func TestPendingSelectionRequiresIdentity(t *testing.T) {
	f := setup(t,
		model.WalletOption{ID: "w-1", Name: "Cash", IsDefault: true},
		model.WalletOption{ID: "w-2", Name: "Bank BCA"},
	)
	ctx := context.Background()

	f.orch.HandleMessage(ctx, inbound("Beli makan siang 50rb"))
	assert.Contains(t, f.outbox.lastBody(t), "Pilih wallet")

	// The mapping is removed mid-dialogue; the stored selection must not
	// authorize the reply.
	f.identity.mapping = nil
	f.identity.err = common.ErrNotFound

	f.orch.HandleMessage(ctx, inbound("1"))

	assert.Contains(t, f.outbox.lastBody(t), "belum terdaftar")
	assert.Empty(t, f.backend.created)
}

func TestNonTransactionWithoutTokenGetsGuidance(t *testing.T) {
	f := setup(t, model.WalletOption{ID: "w-1", Name: "Cash"})
	f.tokens.tokens = map[string]string{}
	f.extract.draft = nil
	f.extract.err = &extract.Error{Code: extract.CodeInvalidDraft, Err: fmt.Errorf("not a transaction")}

	f.orch.HandleMessage(context.Background(), inbound("hello there"))

	body := f.outbox.lastBody(t)
	assert.Contains(t, body, "tidak dikenali sebagai transaksi")
	assert.NotContains(t, body, "login ulang")
}

func TestBackendFailureReported(t *testing.T) {
	f := setup(t, model.WalletOption{ID: "w-1", Name: "Cash"})
	f.backend.createErr = fmt.Errorf("backend returned status 500")

	f.orch.HandleMessage(context.Background(), inbound("Beli makan siang 50rb"))

	assert.True(t, strings.HasPrefix(f.outbox.lastBody(t), "❌ Gagal membuat transaksi"))
	assert.Empty(t, f.notifier.events)
}

func TestUnauthorizedClearsTokenAndPromptsRelogin(t *testing.T) {
	f := setup(t, model.WalletOption{ID: "w-1", Name: "Cash"})
	f.backend.createErr = &backend.StatusError{StatusCode: 401, Body: "token expired"}

	f.orch.HandleMessage(context.Background(), inbound("Beli makan siang 50rb"))

	assert.Equal(t, []string{"user-1"}, f.tokens.cleared)
	assert.Contains(t, f.outbox.lastBody(t), "login ulang")
}

func TestFormatRupiah(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"0", "Rp0"},
		{"500", "Rp500"},
		{"50000", "Rp50.000"},
		{"5000000", "Rp5.000.000"},
		{"1234567", "Rp1.234.567"},
		{"1500.50", "Rp1.500,50"},
	}

	for _, tt := range tests {
		d, err := decimal.NewFromString(tt.amount)
		require.NoError(t, err)
		assert.Equal(t, tt.want, formatRupiah(d), "amount %s", tt.amount)
	}
}
