// Package orchestrator drives the inbound chat conversation: identity,
// extraction, wallet resolution and transaction creation, with every reply
// going out through the delivery queue.
package orchestrator

import (
	"context"
	"log/slog"

	"github.com/fintrack/wa-gateway/internal/backend"
	"github.com/fintrack/wa-gateway/internal/delivery"
	"github.com/fintrack/wa-gateway/internal/extract"
	"github.com/fintrack/wa-gateway/internal/model"
	"github.com/fintrack/wa-gateway/internal/session"
	"github.com/fintrack/wa-gateway/internal/trigger"
	"github.com/fintrack/wa-gateway/internal/wallet"
)

// IdentityResolver maps a chat channel to a registered user.
type IdentityResolver interface {
	Resolve(ctx context.Context, rawChannelID string) (*model.UserMapping, error)
}

// Extractor parses a chat message into a transaction draft.
type Extractor interface {
	Extract(ctx context.Context, message string) (*model.TransactionDraft, error)
}

// WalletEngine resolves drafts to wallets across chat turns.
type WalletEngine interface {
	Decide(ctx context.Context, channelID, userID, authToken string, draft model.TransactionDraft) (*wallet.Decision, error)
	Resume(ctx context.Context, channelID, reply string) (*wallet.ResumeResult, error)
	HasPending(ctx context.Context, channelID string) (bool, error)
}

// Backend records transactions on the finance service.
type Backend interface {
	FindCategoryID(ctx context.Context, authToken, name string) (string, error)
	CreateTransaction(ctx context.Context, authToken string, txn backend.Transaction) (string, error)
}

// Tokens provides cached backend tokens per user.
type Tokens interface {
	TokenFor(userID string) (string, bool)
	Clear(userID string)
}

// Outbox accepts outbound replies for delivery.
type Outbox interface {
	Enqueue(ctx context.Context, req delivery.Request) (*model.DeliveryJob, error)
}

// Notifier fires event triggers.
type Notifier interface {
	Fire(ctx context.Context, ev trigger.Event) error
}

// Orchestrator handles one inbound message end to end.
type Orchestrator struct {
	identity IdentityResolver
	extract  Extractor
	wallets  WalletEngine
	backend  Backend
	tokens   Tokens
	outbox   Outbox
	notifier Notifier
	logger   *slog.Logger
}

// New creates a conversation orchestrator.
func New(
	identity IdentityResolver,
	extractor Extractor,
	wallets WalletEngine,
	backendClient Backend,
	tokens Tokens,
	outbox Outbox,
	notifier Notifier,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		identity: identity,
		extract:  extractor,
		wallets:  wallets,
		backend:  backendClient,
		tokens:   tokens,
		outbox:   outbox,
		notifier: notifier,
		logger:   logger,
	}
}

// HandleMessage processes one inbound chat message. Identity is resolved
// before anything else; only then does a pending wallet choice route the
// message through that choice, otherwise it goes through the full pipeline.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg *session.InboundMessage) {
	logger := o.logger.With("channel_id", msg.ChannelID)

	mapping, err := o.identity.Resolve(ctx, msg.ChannelID)
	if err != nil {
		// Unknown and unverified numbers get the same denial so the
		// reply does not leak which numbers are registered.
		logger.Info("message from unregistered number")
		o.reply(ctx, msg.ChannelID, "", msgNotRegistered)
		return
	}
	logger = logger.With("user_id", mapping.UserID)

	pending, err := o.wallets.HasPending(ctx, msg.ChannelID)
	if err != nil {
		logger.Error("failed to check pending selection", "error", err)
		return
	}
	if pending {
		o.handleSelectionReply(ctx, msg, mapping, logger)
		return
	}

	o.handleNewMessage(ctx, msg, mapping, logger)
}

func (o *Orchestrator) handleSelectionReply(ctx context.Context, msg *session.InboundMessage, mapping *model.UserMapping, logger *slog.Logger) {
	result, err := o.wallets.Resume(ctx, msg.ChannelID, msg.Text)
	if err != nil {
		logger.Error("failed to resume wallet selection", "error", err)
		o.reply(ctx, msg.ChannelID, mapping.UserID, msgExtractFailed)
		return
	}

	switch result.Outcome {
	case wallet.Selected:
		p := result.Pending
		o.createTransaction(ctx, msg.ChannelID, p.UserID, p.AuthToken, p.Draft, result.WalletID, result.WalletName, logger)

	case wallet.Invalid:
		o.reply(ctx, msg.ChannelID, mapping.UserID, msgInvalidChoice+"\n\n"+walletPrompt(result.Options))

	case wallet.NoPending:
		// Expired between the check and the reply; treat the text as a
		// fresh message.
		o.handleNewMessage(ctx, msg, mapping, logger)
	}
}

func (o *Orchestrator) handleNewMessage(ctx context.Context, msg *session.InboundMessage, mapping *model.UserMapping, logger *slog.Logger) {
	draft, err := o.extract.Extract(ctx, msg.Text)
	if err != nil {
		if extract.IsNotTransaction(err) {
			o.reply(ctx, msg.ChannelID, mapping.UserID, msgNotUnderstood)
			return
		}
		logger.Error("extraction failed", "error", err)
		o.reply(ctx, msg.ChannelID, mapping.UserID, msgExtractFailed)
		return
	}

	authToken, ok := o.tokens.TokenFor(mapping.UserID)
	if !ok {
		logger.Info("no valid backend token for user")
		o.reply(ctx, msg.ChannelID, mapping.UserID, msgSessionExpired)
		return
	}

	decision, err := o.wallets.Decide(ctx, msg.ChannelID, mapping.UserID, authToken, *draft)
	if err != nil {
		if backend.IsUnauthorized(err) {
			o.tokens.Clear(mapping.UserID)
			o.reply(ctx, msg.ChannelID, mapping.UserID, msgSessionExpired)
			return
		}
		logger.Error("wallet decision failed", "error", err)
		o.reply(ctx, msg.ChannelID, mapping.UserID, msgExtractFailed)
		return
	}

	switch decision.Outcome {
	case wallet.Resolved:
		o.createTransaction(ctx, msg.ChannelID, mapping.UserID, authToken, *draft, decision.WalletID, decision.WalletName, logger)

	case wallet.NeedsChoice:
		o.reply(ctx, msg.ChannelID, mapping.UserID, walletPrompt(decision.Options))

	case wallet.CannotProceed:
		o.reply(ctx, msg.ChannelID, mapping.UserID, msgNoWallet)
	}
}

func (o *Orchestrator) createTransaction(ctx context.Context, channelID, userID, authToken string, draft model.TransactionDraft, walletID, walletName string, logger *slog.Logger) {
	// Category resolution is best effort; a transaction without a
	// category still gets recorded.
	categoryID, err := o.backend.FindCategoryID(ctx, authToken, draft.Category)
	if err != nil {
		logger.Warn("category lookup failed", "category", draft.Category, "error", err)
	}

	txnID, err := o.backend.CreateTransaction(ctx, authToken, backend.Transaction{
		Kind:        draft.Kind,
		Amount:      draft.Amount,
		Description: draft.Description,
		WalletID:    walletID,
		Date:        draft.OccurredOn,
		CategoryID:  categoryID,
	})
	if err != nil {
		if backend.IsUnauthorized(err) {
			o.tokens.Clear(userID)
			o.reply(ctx, channelID, userID, msgSessionExpired)
			return
		}
		logger.Error("failed to create transaction", "error", err)
		o.reply(ctx, channelID, userID, failure(err))
		return
	}

	logger.Info("transaction created",
		"transaction_id", txnID,
		"kind", draft.Kind,
		"amount", draft.Amount.String(),
		"wallet_id", walletID,
	)

	o.reply(ctx, channelID, userID, confirmation(draft, walletName))

	if o.notifier != nil {
		if err := o.notifier.Fire(ctx, trigger.Event{
			Type: model.EventTransactionCreated,
			Data: map[string]string{
				"recipient":     channelID,
				"userId":        userID,
				"transactionId": txnID,
				"type":          string(draft.Kind),
				"amount":        draft.Amount.String(),
				"description":   draft.Description,
				"walletId":      walletID,
				"wallet":        walletName,
				"date":          draft.OccurredOn,
			},
		}); err != nil {
			logger.Error("trigger dispatch failed", "error", err)
		}
	}
}

// reply enqueues an outbound message back to the channel. Failures are
// logged; there is nobody to report them to.
func (o *Orchestrator) reply(ctx context.Context, channelID, userID, body string) {
	if _, err := o.outbox.Enqueue(ctx, delivery.Request{
		UserID:    userID,
		Recipient: channelID,
		Body:      body,
	}); err != nil {
		o.logger.Error("failed to enqueue reply", "channel_id", channelID, "error", err)
	}
}
