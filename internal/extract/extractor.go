package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fintrack/wa-gateway/internal/model"
)

const systemPrompt = `You are a financial transaction parser. Extract transaction details from user messages in Indonesian or English.

Respond with ONLY a JSON object in this exact format:
{
  "type": "INCOME" or "EXPENSE",
  "amount": <number, in full rupiah (e.g. "50rb" means 50000, "5jt" means 5000000)>,
  "category": "<short category name, e.g. Makanan, Transportasi, Gaji>",
  "description": "<short description of the transaction>",
  "date": "<YYYY-MM-DD, only if the message names a date, otherwise omit>",
  "walletName": "<wallet or account name, only if the message names one, otherwise omit>",
  "confidence": <0.0 to 1.0>
}

If the message does not describe a financial transaction, respond with:
{"error": "not a transaction"}`

// Extractor converts chat messages into transaction drafts.
type Extractor struct {
	client Client
	logger *slog.Logger
	now    func() time.Time
}

// NewExtractor creates an Extractor backed by an HTTP inference client.
func NewExtractor(cfg Config, logger *slog.Logger) (*Extractor, error) {
	client, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewExtractorWithClient(client, logger), nil
}

// NewExtractorWithClient creates an Extractor with a custom client.
// Used by tests and callers that bring their own transport.
func NewExtractorWithClient(client Client, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Extract parses a chat message into a validated transaction draft.
// Messages that do not describe a transaction return an Error with
// CodeUnparseable or CodeInvalidDraft.
func (e *Extractor) Extract(ctx context.Context, message string) (*model.TransactionDraft, error) {
	if strings.TrimSpace(message) == "" {
		return nil, &Error{Code: CodeInvalidDraft, Err: fmt.Errorf("empty message")}
	}

	content, err := e.client.Complete(ctx, systemPrompt, message)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}

	block, err := firstJSONBlock(content)
	if err != nil {
		e.logger.Debug("no JSON in inference response", "response_length", len(content))
		return nil, &Error{Code: CodeUnparseable, Err: err}
	}

	var raw struct {
		model.TransactionDraft
		ErrorMessage string `json:"error"`
	}
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, &Error{Code: CodeUnparseable, Err: fmt.Errorf("failed to parse draft JSON: %w", err)}
	}

	if raw.ErrorMessage != "" {
		return nil, &Error{Code: CodeInvalidDraft, Err: fmt.Errorf("not a transaction: %s", raw.ErrorMessage)}
	}

	draft := raw.TransactionDraft
	if err := e.validate(&draft); err != nil {
		return nil, &Error{Code: CodeInvalidDraft, Err: err}
	}

	e.logger.Debug("extracted transaction draft",
		"kind", draft.Kind,
		"amount", draft.Amount.String(),
		"category", draft.Category,
	)

	return &draft, nil
}

func (e *Extractor) validate(draft *model.TransactionDraft) error {
	switch model.TransactionKind(strings.ToUpper(string(draft.Kind))) {
	case model.KindIncome:
		draft.Kind = model.KindIncome
	case model.KindExpense:
		draft.Kind = model.KindExpense
	default:
		return fmt.Errorf("invalid transaction type %q", draft.Kind)
	}

	if !draft.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", draft.Amount.String())
	}

	if strings.TrimSpace(draft.Description) == "" {
		return fmt.Errorf("description is required")
	}

	if draft.OccurredOn == "" {
		draft.OccurredOn = e.now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", draft.OccurredOn); err != nil {
		draft.OccurredOn = e.now().Format("2006-01-02")
	}

	return nil
}
