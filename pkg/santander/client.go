/**
 * @description
 * This package provides a client for interacting with the Santander
 * collection-management API. It encapsulates the logic for making
 * authenticated HTTP requests over mutual TLS to Santander's endpoints.
 *
 * Key features:
 * - Builds the mTLS transport from the configured certificate bundle.
 * - Caches the short-lived bearer token and refreshes it under a single-writer
 *   guard so concurrent expiry coalesces into one exchange.
 * - Resolves (or creates) the billing workspace for a covenant and caches it.
 * - Provides methods for bank-slip registration and PDF-link retrieval.
 *
 * @dependencies
 * - bytes, context, crypto/tls, encoding/json, fmt, io, net/http, net/url,
 *   strings, sync, time: Standard Go libraries.
 * - The service's internal domain package for Santander request/response models.
 */
package santander

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/crismendesconnexions/boleto-service/internal/domain"
)

const (
	tokenPath         = "/auth/oauth/v2/token"
	workspacesPath    = "/collection_bill_management/v2/workspaces"
	billsPathTemplate = "/collection_bill_management/v2/bills/%s/bank_slips"

	// Refresh the cached token this long before its reported expiry.
	tokenSafetyMargin = 60 * time.Second

	workspaceType = "BILLING"
)

// ClientConfig carries everything needed to build a Santander client. The
// certificate material is optional so tests can run against plain-HTTP stubs;
// production configuration always provides it.
type ClientConfig struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	CertificatePEM []byte
	PrivateKeyPEM  []byte
}

// Client is a client for the Santander collection-management API.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time

	tokenMu     sync.Mutex
	cachedToken string
	tokenExpiry time.Time

	workspaceMu sync.Mutex
	workspaces  map[string]string // covenant code -> workspace id
}

// NewClient creates a new Santander API client. When certificate material is
// present, the underlying transport presents it as the TLS client certificate.
func NewClient(cfg ClientConfig) (*Client, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	if len(cfg.CertificatePEM) > 0 || len(cfg.PrivateKeyPEM) > 0 {
		cert, err := tls.X509KeyPair(cfg.CertificatePEM, cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		}
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   httpClient,
		now:          time.Now,
		workspaces:   make(map[string]string),
	}, nil
}

// token returns the cached bearer token, refreshing it through a
// client-credentials exchange when it is missing or inside the safety margin.
// The mutex is held across the exchange so concurrent callers share one refresh.
func (c *Client) token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.cachedToken != "" && c.now().Before(c.tokenExpiry.Add(-tokenSafetyMargin)) {
		return c.cachedToken, nil
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Err: c.redactErr(err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &AuthError{Status: resp.StatusCode, Body: c.redact(string(respBody))}
	}

	var tokenResp domain.TokenResponse
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return "", &AuthError{Status: resp.StatusCode, Err: fmt.Errorf("failed to unmarshal token response: %w", err)}
	}
	if tokenResp.AccessToken == "" {
		return "", &AuthError{Status: resp.StatusCode, Body: c.redact(string(respBody))}
	}

	c.cachedToken = tokenResp.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return c.cachedToken, nil
}

// ResolveWorkspace finds the workspace bound to the given covenant code,
// creating one when none exists. Successful resolutions are cached for the
// process lifetime. The mutex is held across the full resolve-or-create so
// concurrent first-time callers coalesce into one lookup; a duplicated create
// would mint a second workspace at the bank.
func (c *Client) ResolveWorkspace(ctx context.Context, covenantCode string) (string, error) {
	c.workspaceMu.Lock()
	defer c.workspaceMu.Unlock()

	if id, ok := c.workspaces[covenantCode]; ok {
		return id, nil
	}

	var list domain.WorkspaceListResponse
	status, body, err := c.do(ctx, http.MethodGet, c.baseURL+workspacesPath, nil, &list)
	if err != nil {
		if authErr, ok := err.(*AuthError); ok {
			return "", authErr
		}
		return "", &WorkspaceError{Status: status, Body: c.redact(body), Err: unwrapTransport(err)}
	}

	for _, ws := range list.Content {
		for _, covenant := range ws.Covenants {
			if covenant.Code == covenantCode {
				c.workspaces[covenantCode] = ws.ID
				return ws.ID, nil
			}
		}
	}

	id, err := c.createWorkspace(ctx, covenantCode)
	if err != nil {
		return "", err
	}
	c.workspaces[covenantCode] = id
	return id, nil
}

// createWorkspace creates a workspace with the full descriptive payload, and on
// a validation rejection retries once with the minimal type+covenant payload.
func (c *Client) createWorkspace(ctx context.Context, covenantCode string) (string, error) {
	full := domain.CreateWorkspaceRequest{
		Type:                   workspaceType,
		Covenants:              []domain.Covenant{{Code: covenantCode}},
		Description:            fmt.Sprintf("Billing workspace for covenant %s", covenantCode),
		BankSlipBillingWebhook: false,
	}

	var created domain.Workspace
	status, body, err := c.do(ctx, http.MethodPost, c.baseURL+workspacesPath, full, &created)
	if err == nil {
		return created.ID, nil
	}
	if authErr, ok := err.(*AuthError); ok {
		return "", authErr
	}
	if status < 400 || status >= 500 {
		return "", &WorkspaceError{Status: status, Body: c.redact(body), Err: unwrapTransport(err)}
	}

	log.Printf("level=warn component=santander_client msg=\"workspace creation rejected; retrying with minimal payload\" status=%d covenant=%s", status, covenantCode)

	minimal := domain.CreateWorkspaceRequest{
		Type:      workspaceType,
		Covenants: []domain.Covenant{{Code: covenantCode}},
	}
	status, body, err = c.do(ctx, http.MethodPost, c.baseURL+workspacesPath, minimal, &created)
	if err != nil {
		if authErr, ok := err.(*AuthError); ok {
			return "", authErr
		}
		return "", &WorkspaceError{Status: status, Body: c.redact(body), Err: unwrapTransport(err)}
	}
	return created.ID, nil
}

// RegisterBankSlip submits a bank-slip registration under the given workspace.
func (c *Client) RegisterBankSlip(ctx context.Context, workspaceID string, payload domain.BoletoPayload) (*domain.RegisterBankSlipResponse, error) {
	endpoint := fmt.Sprintf("%s%s/%s/bank_slips", c.baseURL, workspacesPath, workspaceID)

	var resp domain.RegisterBankSlipResponse
	status, body, err := c.do(ctx, http.MethodPost, endpoint, payload, &resp)
	if err != nil {
		if authErr, ok := err.(*AuthError); ok {
			return nil, authErr
		}
		gwErr := &GatewayError{Status: status, Body: c.redact(body), Err: unwrapTransport(err)}
		var structured domain.GatewayErrorBody
		if body != "" && json.Unmarshal([]byte(body), &structured) == nil {
			gwErr.FieldErrors = structured.Errors
		}
		return nil, gwErr
	}
	return &resp, nil
}

// RequestSlipPDFLink asks the gateway for the time-limited PDF link of a
// registered slip. The returned link may be empty; callers decide how to treat
// its absence.
func (c *Client) RequestSlipPDFLink(ctx context.Context, digitableLine, payerDocumentNumber string) (string, error) {
	endpoint := c.baseURL + fmt.Sprintf(billsPathTemplate, url.PathEscape(digitableLine))

	var resp domain.SlipPDFResponse
	status, body, err := c.do(ctx, http.MethodPost, endpoint, domain.SlipPDFRequest{PayerDocumentNumber: payerDocumentNumber}, &resp)
	if err != nil {
		if authErr, ok := err.(*AuthError); ok {
			return "", authErr
		}
		return "", &GatewayError{Status: status, Body: c.redact(body), Err: unwrapTransport(err)}
	}
	return resp.Link, nil
}

// transportError wraps a pre-HTTP failure (dial, TLS, marshal) so callers can
// attach their own typed error kind around it.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func unwrapTransport(err error) error {
	if te, ok := err.(*transportError); ok {
		return te.err
	}
	return nil
}

// do is a helper function to make authenticated requests to the Santander API.
// It returns the upstream status and raw body alongside any error so callers
// can build their typed error kinds.
func (c *Client) do(ctx context.Context, method, endpoint string, body, target interface{}) (int, string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return 0, "", err
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, "", &transportError{err: fmt.Errorf("failed to marshal request body: %w", err)}
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, "", &transportError{err: fmt.Errorf("failed to create http request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Application-Key", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", &transportError{err: fmt.Errorf("http request failed: %w", c.redactErr(err))}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=santander_client msg=\"gateway returned non-success status\" method=%s url=%s status=%d", method, endpoint, resp.StatusCode)
		return resp.StatusCode, string(respBody), fmt.Errorf("santander API error: status %d", resp.StatusCode)
	}

	if target != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, target); err != nil {
			return resp.StatusCode, string(respBody), &transportError{err: fmt.Errorf("failed to unmarshal response body: %w", err)}
		}
	}

	return resp.StatusCode, string(respBody), nil
}

// redact strips the client secret from diagnostic payloads before they travel
// up in errors or logs.
func (c *Client) redact(s string) string {
	if c.clientSecret == "" {
		return s
	}
	return strings.ReplaceAll(s, c.clientSecret, "[redacted]")
}

func (c *Client) redactErr(err error) error {
	if err == nil || c.clientSecret == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, c.clientSecret) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(msg, c.clientSecret, "[redacted]"))
}
