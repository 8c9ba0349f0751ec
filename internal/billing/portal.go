// Package billing talks to the Polar API on behalf of a subscribed user.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/config"
	log "github.com/sirupsen/logrus"
)

const (
	defaultAPIBase = "https://api.polar.sh"
	maxErrorBody   = 4 << 10
)

var (
	// ErrNotConfigured indicates no billing API key is configured.
	ErrNotConfigured = errors.New("billing: api key is not configured")
	// ErrNoSubscription indicates the user has no stored subscription ID.
	ErrNoSubscription = errors.New("billing: no subscription on record")
	// ErrUnauthorized indicates the provider rejected the API key.
	ErrUnauthorized = errors.New("billing: provider rejected the api key")
	// ErrSubscriptionNotFound indicates the provider does not know the subscription.
	ErrSubscriptionNotFound = errors.New("billing: subscription not found at provider")
	// ErrMissingCustomer indicates the subscription carries no customer ID.
	ErrMissingCustomer = errors.New("billing: subscription has no customer")
	// ErrMissingPortalURL indicates the customer session response had no portal URL.
	ErrMissingPortalURL = errors.New("billing: customer session has no portal url")
)

// StatusError is an unexpected non-2xx reply from the provider.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("billing: %s returned status %d: %s", e.Op, e.Status, e.Body)
}

// PortalClient creates pre-authenticated customer portal links.
type PortalClient struct {
	apiBase    string
	apiKey     string
	httpClient *http.Client
}

// NewPortalClient builds a client from the billing config.
func NewPortalClient(cfg config.BillingConfig) *PortalClient {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if base == "" {
		base = defaultAPIBase
	}
	return &PortalClient{
		apiBase:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether an API key is configured.
func (c *PortalClient) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type subscriptionResponse struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Customer   *struct {
		ID string `json:"id"`
	} `json:"customer"`
}

type customerSessionResponse struct {
	CustomerPortalURL string `json:"customer_portal_url"`
}

// PortalURL resolves the subscription's customer and opens a customer session.
func (c *PortalClient) PortalURL(ctx context.Context, subscriptionID string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return "", ErrNoSubscription
	}

	var sub subscriptionResponse
	errGet := c.do(ctx, http.MethodGet, "/api/v1/subscriptions/"+url.PathEscape(subscriptionID), nil, &sub)
	if errGet != nil {
		var statusErr *StatusError
		if errors.As(errGet, &statusErr) {
			switch statusErr.Status {
			case http.StatusUnauthorized:
				return "", ErrUnauthorized
			case http.StatusNotFound:
				return "", ErrSubscriptionNotFound
			}
		}
		return "", errGet
	}
	customerID := strings.TrimSpace(sub.CustomerID)
	if sub.Customer != nil && strings.TrimSpace(sub.Customer.ID) != "" {
		customerID = strings.TrimSpace(sub.Customer.ID)
	}
	if customerID == "" {
		return "", ErrMissingCustomer
	}

	var session customerSessionResponse
	if errPost := c.do(ctx, http.MethodPost, "/api/v1/customer-sessions", map[string]string{"customer_id": customerID}, &session); errPost != nil {
		var statusErr *StatusError
		if errors.As(errPost, &statusErr) && statusErr.Status == http.StatusUnauthorized {
			return "", ErrUnauthorized
		}
		return "", errPost
	}
	if strings.TrimSpace(session.CustomerPortalURL) == "" {
		return "", ErrMissingPortalURL
	}
	log.WithField("subscription_id", subscriptionID).Info("billing: customer portal session created")
	return session.CustomerPortalURL, nil
}

func (c *PortalClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			return fmt.Errorf("billing: marshal request: %w", errMarshal)
		}
		reader = bytes.NewReader(payload)
	}
	req, errReq := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if errReq != nil {
		return fmt.Errorf("billing: build request: %w", errReq)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return fmt.Errorf("billing: %s %s: %w", method, path, errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Debug("billing: close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{Op: method + " " + path, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		log.WithFields(log.Fields{"status": resp.StatusCode, "path": path}).WithError(statusErr).Error("billing: provider request failed")
		return statusErr
	}
	if errDecode := json.NewDecoder(resp.Body).Decode(out); errDecode != nil {
		return fmt.Errorf("billing: decode %s response: %w", path, errDecode)
	}
	return nil
}
