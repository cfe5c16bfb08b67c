package wallet

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-ads/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), config.WalletConfig{
		BaseURL:      srv.URL,
		ServiceToken: "svc-token",
		Timeout:      2 * time.Second,
	}, testLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, srv
}

func TestNewClientValidatesConfig(t *testing.T) {
	if _, err := NewClient(context.Background(), config.WalletConfig{ServiceToken: "x"}, testLogger()); err == nil {
		t.Fatal("expected error for missing base url")
	}
	if _, err := NewClient(context.Background(), config.WalletConfig{BaseURL: "http://wallet"}, testLogger()); err == nil {
		t.Fatal("expected error for missing token")
	}
	if _, err := NewClient(context.Background(), config.WalletConfig{BaseURL: "http://wallet", ServiceToken: "x"}, nil); err == nil {
		t.Fatal("expected error for missing logger")
	}
}

func TestLockSendsAuthAndDecodesLock(t *testing.T) {
	businessID := uuid.New()
	lockID := uuid.New()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/locks" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer svc-token" {
			t.Errorf("unexpected authorization header %q", got)
		}

		var req struct {
			BusinessID  uuid.UUID `json:"business_id"`
			AmountCents int64     `json:"amount_cents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.BusinessID != businessID || req.AmountCents != 5000 {
			t.Errorf("unexpected payload %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Lock{
			ID:          lockID,
			BusinessID:  businessID,
			AmountCents: 5000,
		})
	}))

	lock, err := client.Lock(context.Background(), LockParams{
		BusinessID:  businessID,
		AmountCents: 5000,
		Reference:   "campaign-budget",
	})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if lock.ID != lockID {
		t.Fatalf("expected lock id %s, got %s", lockID, lock.ID)
	}
}

func TestLockMapsInsufficientFunds(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"INSUFFICIENT_FUNDS","message":"balance too low"}`))
	}))

	_, err := client.Lock(context.Background(), LockParams{
		BusinessID:  uuid.New(),
		AmountCents: 100,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}
}

func TestLockRejectsInvalidParams(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called")
	}))

	if _, err := client.Lock(context.Background(), LockParams{AmountCents: 100}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := client.Lock(context.Background(), LockParams{BusinessID: uuid.New()}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReleaseMapsNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	err := client.Release(context.Background(), uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestDebitSucceeds(t *testing.T) {
	lockID := uuid.New()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/v1/locks/" + lockID.String() + "/debits"
		if r.URL.Path != want {
			t.Errorf("expected path %s, got %s", want, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.Debit(context.Background(), DebitParams{LockID: lockID, AmountCents: 25}); err != nil {
		t.Fatalf("debit: %v", err)
	}
}

func TestGetAvailableBalance(t *testing.T) {
	businessID := uuid.New()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(balanceResponse{
			BusinessID:     businessID,
			AvailableCents: 123456,
		})
	}))

	balance, err := client.GetAvailableBalance(context.Background(), businessID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 123456 {
		t.Fatalf("expected 123456, got %d", balance)
	}
}
