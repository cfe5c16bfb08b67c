package wallet

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

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-ads/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

const defaultTimeout = 10 * time.Second

var (
	errBaseURLRequired = errors.New("wallet base url is required")
	errTokenRequired   = errors.New("wallet service token is required")
	errLoggerRequired  = errors.New("wallet logger is required")
)

// Client talks to the wallet service over HTTP with centralized auth,
// logging, and error mapping.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	logger  *logger.Logger
}

var _ Ledger = (*Client)(nil)

// NewClient validates the wallet configuration and returns the HTTP client.
func NewClient(ctx context.Context, cfg config.WalletConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	token := strings.TrimSpace(cfg.ServiceToken)
	if token == "" {
		return nil, errTokenRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		token:   token,
		logger:  logg,
	}
	logg.Info(ctx, "wallet client initialized")
	return c, nil
}

type lockRequest struct {
	BusinessID  uuid.UUID `json:"business_id"`
	AmountCents int64     `json:"amount_cents"`
	Reference   string    `json:"reference"`
}

type debitRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference"`
}

type balanceResponse struct {
	BusinessID     uuid.UUID `json:"business_id"`
	AvailableCents int64     `json:"available_cents"`
}

// Lock reserves funds on the wallet and returns the lock record.
func (c *Client) Lock(ctx context.Context, params LockParams) (*Lock, error) {
	if params.BusinessID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "businessID is required")
	}
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amountCents must be positive")
	}

	c.log(ctx, "request", "lock_funds", map[string]any{
		"business_id": params.BusinessID.String(),
		"amount":      params.AmountCents,
	})

	var lock Lock
	err := c.do(ctx, http.MethodPost, "/v1/locks", lockRequest{
		BusinessID:  params.BusinessID,
		AmountCents: params.AmountCents,
		Reference:   params.Reference,
	}, &lock, "lock funds")
	if err != nil {
		c.log(ctx, "error", "lock_funds", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "lock_funds", map[string]any{"lock_id": lock.ID.String()})
	return &lock, nil
}

// Release frees the lock. Releasing an unknown lock maps to NotFound.
func (c *Client) Release(ctx context.Context, lockID uuid.UUID) error {
	if lockID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "lockID is required")
	}

	c.log(ctx, "request", "release_lock", map[string]any{"lock_id": lockID.String()})

	err := c.do(ctx, http.MethodDelete, "/v1/locks/"+lockID.String(), nil, nil, "release lock")
	if err != nil {
		c.log(ctx, "error", "release_lock", map[string]any{"error": err.Error()})
		return err
	}

	c.log(ctx, "response", "release_lock", map[string]any{"lock_id": lockID.String()})
	return nil
}

// Debit settles spend against the lock.
func (c *Client) Debit(ctx context.Context, params DebitParams) error {
	if params.LockID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "lockID is required")
	}
	if params.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amountCents must be positive")
	}

	c.log(ctx, "request", "debit_lock", map[string]any{
		"lock_id": params.LockID.String(),
		"amount":  params.AmountCents,
	})

	err := c.do(ctx, http.MethodPost, "/v1/locks/"+params.LockID.String()+"/debits", debitRequest{
		AmountCents: params.AmountCents,
		Reference:   params.Reference,
	}, nil, "debit lock")
	if err != nil {
		c.log(ctx, "error", "debit_lock", map[string]any{"error": err.Error()})
		return err
	}

	c.log(ctx, "response", "debit_lock", map[string]any{"lock_id": params.LockID.String()})
	return nil
}

// GetAvailableBalance returns the spendable balance for the business.
func (c *Client) GetAvailableBalance(ctx context.Context, businessID uuid.UUID) (int64, error) {
	if businessID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "businessID is required")
	}

	var resp balanceResponse
	err := c.do(ctx, http.MethodGet, "/v1/businesses/"+businessID.String()+"/balance", nil, &resp, "get balance")
	if err != nil {
		c.log(ctx, "error", "get_balance", map[string]any{"error": err.Error()})
		return 0, err
	}
	return resp.AvailableCents, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, op string) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("encoding wallet %s request", op))
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("building wallet %s request", op))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("wallet %s failed", op))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.mapWalletError(resp, op)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decoding wallet %s response", op))
	}
	return nil
}

type walletErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) mapWalletError(resp *http.Response, op string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body walletErrorBody
	_ = json.Unmarshal(raw, &body)
	message := strings.TrimSpace(body.Message)
	if message == "" {
		message = fmt.Sprintf("wallet %s failed", op)
	}

	code := domainCodeForStatus(resp.StatusCode)
	if strings.EqualFold(body.Code, "INSUFFICIENT_FUNDS") {
		code = pkgerrors.CodeInsufficientFunds
	}
	return pkgerrors.Wrap(code, fmt.Errorf("wallet responded %d", resp.StatusCode), message)
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		return pkgerrors.CodeInsufficientFunds
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	default:
		return pkgerrors.CodeDependency
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("wallet %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("wallet %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"token", "secret", "authorization"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
