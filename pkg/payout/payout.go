// Package payout talks to the payment processor that moves money to
// caregivers' connected accounts.
package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/workflow"
)

var ErrNotConfigured = errors.New("payout provider is not configured")

type Account struct {
	ID             string `json:"id"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

type TransferRequest struct {
	AmountCents    int64
	Currency       string
	Destination    string
	IdempotencyKey string
	Metadata       map[string]string
}

type Transfer struct {
	ID          string            `json:"id"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Destination string            `json:"destination"`
	Metadata    map[string]string `json:"metadata"`
}

type Provider interface {
	RetrieveAccount(ctx context.Context, accountID string) (*Account, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
}

// APIError is a non-2xx answer from the processor.
type APIError struct {
	Status  int
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payout api %d %s: %s", e.Status, e.Type, e.Message)
}

// Client speaks the processor's form-encoded REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) RetrieveAccount(ctx context.Context, accountID string) (*Account, error) {
	var acct Account
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(accountID), nil, "", &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("currency", req.Currency)
	form.Set("destination", req.Destination)

	keys := make([]string, 0, len(req.Metadata))
	for k := range req.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		form.Set("metadata["+k+"]", req.Metadata[k])
	}

	var tr Transfer
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", form, req.IdempotencyKey, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out any) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payout %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		var env struct {
			Error APIError `json:"error"`
		}
		_ = json.Unmarshal(raw, &env)
		env.Error.Status = resp.StatusCode
		if env.Error.Message == "" {
			env.Error.Message = http.StatusText(resp.StatusCode)
		}
		return &env.Error
	}
	return json.Unmarshal(raw, out)
}

// MapTransferStatus converts a processor transfer status into the payment
// status it implies. ok is false for statuses that carry no change.
func MapTransferStatus(status string) (workflow.PaymentStatus, bool) {
	switch strings.ToLower(status) {
	case "pending":
		return workflow.PaymentProcessing, true
	case "paid":
		return workflow.PaymentCompleted, true
	case "failed", "canceled", "cancelled":
		return workflow.PaymentFailed, true
	}
	return "", false
}
