// Package wallet decides which wallet a transaction draft should land in,
// holding a pending selection across chat turns when the user has to choose.
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fintrack/wa-gateway/internal/model"
)

// Outcome classifies the result of a wallet decision.
type Outcome int

const (
	// Resolved means exactly one wallet was picked automatically.
	Resolved Outcome = iota
	// NeedsChoice means the user must pick from Options; a pending
	// selection has been stored.
	NeedsChoice
	// CannotProceed means the user has no wallets at all.
	CannotProceed
)

// Decision is the result of Engine.Decide.
type Decision struct {
	Outcome    Outcome
	WalletID   string
	WalletName string
	Options    []model.WalletOption
}

// ResumeOutcome classifies the result of Engine.Resume.
type ResumeOutcome int

const (
	// Selected means the reply matched an option; the pending selection
	// was consumed.
	Selected ResumeOutcome = iota
	// Invalid means the reply matched nothing; the pending selection
	// remains so the user can try again.
	Invalid
	// NoPending means there was no pending selection for the channel,
	// typically because it expired.
	NoPending
)

// ResumeResult is the result of Engine.Resume.
type ResumeResult struct {
	Outcome    ResumeOutcome
	WalletID   string
	WalletName string
	Pending    *PendingSelection
	Options    []model.WalletOption
}

// PendingSelection is a wallet choice waiting for the user's reply. Options
// are snapshotted at decision time so the numbered list the user saw stays
// valid even if wallets change upstream.
type PendingSelection struct {
	ChannelID string                 `json:"channel_id"`
	UserID    string                 `json:"user_id"`
	Draft     model.TransactionDraft `json:"draft"`
	AuthToken string                 `json:"auth_token"`
	Options   []model.WalletOption   `json:"options"`
	CreatedAt time.Time              `json:"created_at"`
}

// Lister fetches the wallets available to a user.
type Lister interface {
	ListWallets(ctx context.Context, authToken string) ([]model.WalletOption, error)
}

// Engine resolves transaction drafts to wallets.
type Engine struct {
	lister Lister
	store  SelectionStore
	logger *slog.Logger
	ttl    time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a wallet resolution engine.
func NewEngine(lister Lister, store SelectionStore, ttl time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Engine{
		lister: lister,
		store:  store,
		logger: logger,
		ttl:    ttl,
		locks:  make(map[string]*sync.Mutex),
	}
}

// channelLock serializes Resume calls for one channel so a double reply
// cannot consume the same pending selection twice.
func (e *Engine) channelLock(channelID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[channelID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[channelID] = lock
	}
	return lock
}

// Decide resolves a draft to a wallet. With zero wallets it cannot proceed;
// with one wallet or an unambiguous hint match it resolves immediately;
// otherwise it stores a pending selection and asks the user to choose.
// A new decision overwrites any earlier pending selection on the channel.
func (e *Engine) Decide(ctx context.Context, channelID, userID, authToken string, draft model.TransactionDraft) (*Decision, error) {
	wallets, err := e.lister.ListWallets(ctx, authToken)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	if len(wallets) == 0 {
		return &Decision{Outcome: CannotProceed}, nil
	}

	if len(wallets) == 1 {
		return &Decision{Outcome: Resolved, WalletID: wallets[0].ID, WalletName: wallets[0].Name}, nil
	}

	if draft.WalletHint != "" {
		if match := matchWallet(wallets, draft.WalletHint); match != nil {
			return &Decision{Outcome: Resolved, WalletID: match.ID, WalletName: match.Name}, nil
		}
	}

	pending := &PendingSelection{
		ChannelID: channelID,
		UserID:    userID,
		Draft:     draft,
		AuthToken: authToken,
		Options:   wallets,
		CreatedAt: time.Now(),
	}
	if err := e.store.Put(ctx, channelID, pending, e.ttl); err != nil {
		return nil, fmt.Errorf("failed to store pending selection: %w", err)
	}

	e.logger.Debug("wallet choice required", "channel_id", channelID, "options", len(wallets))

	return &Decision{Outcome: NeedsChoice, Options: wallets}, nil
}

// Resume applies a user reply to the channel's pending selection. The reply
// may be a 1-based number from the list the user was shown, or a wallet
// name. A matching reply consumes the pending selection; an unrecognized
// reply leaves it in place.
func (e *Engine) Resume(ctx context.Context, channelID, reply string) (*ResumeResult, error) {
	lock := e.channelLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	pending, err := e.store.Get(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending selection: %w", err)
	}
	if pending == nil {
		return &ResumeResult{Outcome: NoPending}, nil
	}

	reply = strings.TrimSpace(reply)

	var match *model.WalletOption
	if n, err := strconv.Atoi(reply); err == nil {
		if n >= 1 && n <= len(pending.Options) {
			match = &pending.Options[n-1]
		}
	} else {
		match = matchWallet(pending.Options, reply)
	}

	if match == nil {
		return &ResumeResult{Outcome: Invalid, Pending: pending, Options: pending.Options}, nil
	}

	if err := e.store.Delete(ctx, channelID); err != nil {
		return nil, fmt.Errorf("failed to clear pending selection: %w", err)
	}

	return &ResumeResult{Outcome: Selected, WalletID: match.ID, WalletName: match.Name, Pending: pending}, nil
}

// HasPending reports whether the channel has an unexpired pending selection.
func (e *Engine) HasPending(ctx context.Context, channelID string) (bool, error) {
	pending, err := e.store.Get(ctx, channelID)
	if err != nil {
		return false, err
	}
	return pending != nil, nil
}

// matchWallet finds a wallet by name or wallet type, preferring an exact
// match over a substring match. Matching is case-insensitive and keeps
// store order.
func matchWallet(wallets []model.WalletOption, hint string) *model.WalletOption {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return nil
	}

	for i := range wallets {
		if strings.ToLower(wallets[i].Name) == hint || strings.ToLower(wallets[i].Type) == hint {
			return &wallets[i]
		}
	}
	for i := range wallets {
		name := strings.ToLower(wallets[i].Name)
		if strings.Contains(name, hint) || strings.Contains(hint, name) {
			return &wallets[i]
		}
		typ := strings.ToLower(wallets[i].Type)
		if typ != "" && (strings.Contains(typ, hint) || strings.Contains(hint, typ)) {
			return &wallets[i]
		}
	}
	return nil
}
