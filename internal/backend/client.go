// Package backend is the REST client for the finance service that owns
// wallets, categories and transactions.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintrack/wa-gateway/internal/common"
	"github.com/fintrack/wa-gateway/internal/model"
)

// Client talks to the finance backend on behalf of a user. Every call
// carries the user's bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a finance backend client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// IsUnauthorized reports whether err is a 401 from the backend, meaning the
// cached token is no longer valid.
func IsUnauthorized(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusUnauthorized
}

// ListWallets fetches the user's wallets.
func (c *Client) ListWallets(ctx context.Context, authToken string) ([]model.WalletOption, error) {
	var response struct {
		Data []model.WalletOption `json:"data"`
	}
	if err := c.get(ctx, "/api/wallets", authToken, &response); err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return response.Data, nil
}

// Category is a transaction category on the backend.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListCategories fetches the user's transaction categories.
func (c *Client) ListCategories(ctx context.Context, authToken string) ([]Category, error) {
	var response struct {
		Data []Category `json:"data"`
	}
	if err := c.get(ctx, "/api/categories", authToken, &response); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return response.Data, nil
}

// FindCategoryID resolves a category name to its ID, case-insensitively.
// Returns empty when no category matches; transactions may be created
// without a category.
func (c *Client) FindCategoryID(ctx context.Context, authToken, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}

	categories, err := c.ListCategories(ctx, authToken)
	if err != nil {
		return "", err
	}

	for _, category := range categories {
		if strings.EqualFold(category.Name, name) {
			return category.ID, nil
		}
	}
	return "", nil
}

// Transaction is the create-transaction request payload.
type Transaction struct {
	Kind        model.TransactionKind `json:"type"`
	Amount      decimal.Decimal       `json:"amount"`
	Description string                `json:"description"`
	WalletID    string                `json:"wallet_id"`
	Date        string                `json:"date"`
	CategoryID  string                `json:"category_id,omitempty"`
}

// CreateTransaction records a transaction and returns its ID.
func (c *Client) CreateTransaction(ctx context.Context, authToken string, txn Transaction) (string, error) {
	var response struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/api/transactions", authToken, txn, &response); err != nil {
		return "", fmt.Errorf("failed to create transaction: %w", err)
	}
	return response.Data.ID, nil
}

// get performs an idempotent read, retrying transient network failures.
// HTTP status errors pass through untouched.
func (c *Client) get(ctx context.Context, path, authToken string, out any) error {
	return common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err), Retryable: false}
		}
		if err := c.do(req, authToken, out); err != nil {
			if common.IsRetryable(err) {
				return err
			}
			return &common.RetryableError{Err: err, Retryable: false}
		}
		return nil
	}, common.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	})
}

func (c *Client) post(ctx context.Context, path, authToken string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, authToken, out)
}

func (c *Client) do(req *http.Request, authToken string, out any) error {
	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &common.RetryableError{Err: fmt.Errorf("backend unreachable: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
