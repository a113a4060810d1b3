package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/wa-gateway/internal/model"
)

func TestListWallets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/wallets", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"w-1","name":"Cash","wallet_type":"CASH","is_default":true},
			{"id":"w-2","name":"Bank BCA","wallet_type":"BANK","is_default":false}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	wallets, err := client.ListWallets(context.Background(), "test-token")
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, model.WalletOption{ID: "w-1", Name: "Cash", Type: "CASH", IsDefault: true}, wallets[0])
	assert.Equal(t, "Bank BCA", wallets[1].Name)
}

func TestListWalletsUnauthorized(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"token expired"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	_, err := client.ListWallets(context.Background(), "stale-token")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	// Status errors are not worth retrying.
	assert.Equal(t, int32(1), calls.Load())
}

func TestListWalletsRetriesDroppedConnection(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"w-1","name":"Cash","wallet_type":"CASH","is_default":true}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	wallets, err := client.ListWallets(context.Background(), "token")
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestFindCategoryID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/categories", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"c-1","name":"Makanan"},
			{"id":"c-2","name":"Transportasi"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	id, err := client.FindCategoryID(ctx, "token", "makanan")
	require.NoError(t, err)
	assert.Equal(t, "c-1", id)

	id, err = client.FindCategoryID(ctx, "token", "Hiburan")
	require.NoError(t, err)
	assert.Empty(t, id)

	// Blank names skip the lookup entirely.
	id, err = client.FindCategoryID(ctx, "token", "")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestCreateTransaction(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/transactions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"txn-42"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	id, err := client.CreateTransaction(context.Background(), "token", Transaction{
		Kind:        model.KindExpense,
		Amount:      decimal.NewFromInt(50000),
		Description: "makan siang",
		WalletID:    "w-1",
		Date:        "2026-08-31",
		CategoryID:  "c-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "txn-42", id)

	assert.Equal(t, "EXPENSE", received["type"])
	assert.Equal(t, "makan siang", received["description"])
	assert.Equal(t, "w-1", received["wallet_id"])
	assert.Equal(t, "2026-08-31", received["date"])
	assert.Equal(t, "c-1", received["category_id"])
}

func TestBackendUnreachableIsRetryable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")

	_, err := client.ListWallets(context.Background(), "token")
	require.Error(t, err)
	assert.False(t, IsUnauthorized(err))
}
