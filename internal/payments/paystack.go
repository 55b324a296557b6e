package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Gateway initializes and verifies transactions with a payment provider.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*Transaction, error)
	Verify(ctx context.Context, reference string) (*Transaction, error)
}

type MobileMoney struct {
	Phone    string `json:"phone"`
	Provider string `json:"provider"`
}

// InitializeRequest is the body of POST /transaction/initialize. Amount is in
// the currency's minor unit.
type InitializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	MobileMoney *MobileMoney      `json:"mobile_money,omitempty"`
}

// Transaction is the data object Paystack returns for both calls.
type Transaction struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Status           string `json:"status"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// GatewayError is a non-2xx answer from the gateway.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("paystack: %d %s", e.StatusCode, e.Message)
}

// Paystack is a Gateway over the Paystack REST API. Every attempt is bounded
// by the client timeout and a transient failure is retried once.
type Paystack struct {
	baseURL    string
	secret     string
	client     *http.Client
	retryDelay time.Duration
}

func NewPaystack(baseURL, secret string, timeout time.Duration) *Paystack {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Paystack{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		client:     &http.Client{Timeout: timeout},
		retryDelay: 250 * time.Millisecond,
	}
}

func (p *Paystack) Initialize(ctx context.Context, req InitializeRequest) (*Transaction, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal initialize: %w", err)
	}
	return p.call(ctx, http.MethodPost, "/transaction/initialize", body, "Payment initialization failed")
}

func (p *Paystack) Verify(ctx context.Context, reference string) (*Transaction, error) {
	return p.call(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, "Payment verification failed")
}

func (p *Paystack) call(ctx context.Context, method, path string, body []byte, fallback string) (*Transaction, error) {
	var (
		status int
		raw    []byte
		err    error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		status, raw, err = p.do(ctx, method, path, body)
		if !retryable(status, err) || attempt == 2 || ctx.Err() != nil {
			break
		}
		log.Printf("[paystack] %s %s attempt %d failed (status=%d err=%v), retrying", method, path, attempt, status, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.retryDelay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("paystack %s %s: %w", method, path, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if status < 200 || status > 299 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = fallback
		}
		return nil, &GatewayError{StatusCode: status, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode paystack response: %w", decodeErr)
	}
	var tx Transaction
	if err := json.Unmarshal(env.Data, &tx); err != nil {
		return nil, fmt.Errorf("decode paystack data: %w", err)
	}
	return &tx, nil
}

func (p *Paystack) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

func retryable(status int, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return status == http.StatusTooManyRequests || status >= 500
}
