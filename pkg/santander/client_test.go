package santander

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crismendesconnexions/boleto-service/internal/domain"
)

type gatewayStub struct {
	mu             sync.Mutex
	tokenRequests  int
	listRequests   int
	createRequests int
	createBodies   []string

	tokenStatus     int
	tokenBody       string
	expiresIn       int64
	workspaces      []domain.Workspace
	listDelay       time.Duration
	failFirstCreate bool
}

func newGatewayStub() *gatewayStub {
	return &gatewayStub{tokenStatus: http.StatusOK, expiresIn: 900}
}

func (g *gatewayStub) counts() (token, list, create int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tokenRequests, g.listRequests, g.createRequests
}

func (g *gatewayStub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.tokenRequests++
		n := g.tokenRequests
		status := g.tokenStatus
		body := g.tokenBody
		g.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(body))
			return
		}
		json.NewEncoder(w).Encode(domain.TokenResponse{
			AccessToken: fmt.Sprintf("token-%d", n),
			TokenType:   "Bearer",
			ExpiresIn:   g.expiresIn,
		})
	})

	mux.HandleFunc("GET /collection_bill_management/v2/workspaces", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.listRequests++
		workspaces := g.workspaces
		delay := g.listDelay
		g.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		json.NewEncoder(w).Encode(domain.WorkspaceListResponse{Content: workspaces})
	})

	mux.HandleFunc("POST /collection_bill_management/v2/workspaces", func(w http.ResponseWriter, r *http.Request) {
		var body strings.Builder
		buf := make([]byte, 4096)
		for {
			n, err := r.Body.Read(buf)
			body.Write(buf[:n])
			if err != nil {
				break
			}
		}

		g.mu.Lock()
		g.createRequests++
		g.createBodies = append(g.createBodies, body.String())
		reject := g.failFirstCreate && g.createRequests == 1
		g.mu.Unlock()

		if reject {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"_errors":[{"_field":"description","_message":"not allowed"}]}`))
			return
		}
		json.NewEncoder(w).Encode(domain.Workspace{ID: "ws-created", Type: "BILLING"})
	})

	return mux
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL:      baseURL,
		ClientID:     "client-id",
		ClientSecret: "super-secret",
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestTokenIsCachedUntilSafetyMargin(t *testing.T) {
	stub := newGatewayStub()
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(t, server.URL)
	now := time.Date(2025, time.October, 3, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	first, err := client.token(context.Background())
	if err != nil {
		t.Fatalf("token returned error: %v", err)
	}
	second, err := client.token(context.Background())
	if err != nil {
		t.Fatalf("token returned error: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached token, got %q then %q", first, second)
	}
	if tokens, _, _ := stub.counts(); tokens != 1 {
		t.Fatalf("expected one token exchange, got %d", tokens)
	}

	// Advancing to inside the safety margin must trigger a refresh.
	now = now.Add(time.Duration(stub.expiresIn)*time.Second - 30*time.Second)
	third, err := client.token(context.Background())
	if err != nil {
		t.Fatalf("token returned error: %v", err)
	}
	if third == first {
		t.Fatal("expected a refreshed token inside the safety margin")
	}
	if tokens, _, _ := stub.counts(); tokens != 2 {
		t.Fatalf("expected two token exchanges, got %d", tokens)
	}
}

func TestConcurrentTokenCallersShareOneRefresh(t *testing.T) {
	stub := newGatewayStub()
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(t, server.URL)

	const callers = 20
	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.token(context.Background()); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("%d token calls failed", failures.Load())
	}
	if tokens, _, _ := stub.counts(); tokens != 1 {
		t.Fatalf("expected concurrent callers to share one exchange, got %d", tokens)
	}
}

func TestAuthErrorRedactsClientSecret(t *testing.T) {
	stub := newGatewayStub()
	stub.tokenStatus = http.StatusUnauthorized
	stub.tokenBody = `{"error":"invalid_client","detail":"secret super-secret rejected"}`
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.token(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", authErr.Status)
	}
	if strings.Contains(authErr.Body, "super-secret") {
		t.Fatal("client secret leaked into AuthError body")
	}
	if !strings.Contains(authErr.Body, "[redacted]") {
		t.Fatalf("expected redaction marker in body, got %q", authErr.Body)
	}
}

func TestResolveWorkspaceSecondCallHitsCache(t *testing.T) {
	stub := newGatewayStub()
	stub.workspaces = []domain.Workspace{
		{ID: "ws-other", Covenants: []domain.Covenant{{Code: "999999"}}},
		{ID: "ws-match", Covenants: []domain.Covenant{{Code: "178622"}}},
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(t, server.URL)

	first, err := client.ResolveWorkspace(context.Background(), "178622")
	if err != nil {
		t.Fatalf("ResolveWorkspace returned error: %v", err)
	}
	if first != "ws-match" {
		t.Fatalf("expected ws-match, got %q", first)
	}

	second, err := client.ResolveWorkspace(context.Background(), "178622")
	if err != nil {
		t.Fatalf("ResolveWorkspace returned error: %v", err)
	}
	if second != first {
		t.Fatalf("expected cached id %q, got %q", first, second)
	}
	if _, lists, creates := stub.counts(); lists != 1 || creates != 0 {
		t.Fatalf("expected one list round trip and no create calls, got %d and %d", lists, creates)
	}
}

func TestResolveWorkspaceCreatesWhenNoneMatches(t *testing.T) {
	stub := newGatewayStub()
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(t, server.URL)

	id, err := client.ResolveWorkspace(context.Background(), "178622")
	if err != nil {
		t.Fatalf("ResolveWorkspace returned error: %v", err)
	}
	if id != "ws-created" {
		t.Fatalf("expected ws-created, got %q", id)
	}
	if _, _, creates := stub.counts(); creates != 1 {
		t.Fatalf("expected one create call, got %d", creates)
	}
	if !strings.Contains(stub.createBodies[0], "description") {
		t.Fatal("expected the first create attempt to carry the full payload")
	}
}

func TestConcurrentWorkspaceResolutionsShareOneCreate(t *testing.T) {
	stub := newGatewayStub()
	stub.listDelay = 50 * time.Millisecond
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(t, server.URL)

	const callers = 10
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = client.ResolveWorkspace(context.Background(), "178622")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if ids[i] != "ws-created" {
			t.Fatalf("caller %d resolved to %q, want ws-created", i, ids[i])
		}
	}
	if _, lists, creates := stub.counts(); lists != 1 || creates != 1 {
		t.Fatalf("expected concurrent callers to share one list and one create, got %d and %d", lists, creates)
	}
}

func TestResolveWorkspaceFallsBackToMinimalPayload(t *testing.T) {
	stub := newGatewayStub()
	stub.failFirstCreate = true
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(t, server.URL)

	id, err := client.ResolveWorkspace(context.Background(), "178622")
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if id != "ws-created" {
		t.Fatalf("expected ws-created, got %q", id)
	}
	if _, _, creates := stub.counts(); creates != 2 {
		t.Fatalf("expected full then minimal create, got %d calls", creates)
	}
	if strings.Contains(stub.createBodies[1], "description") {
		t.Fatal("expected the fallback payload to omit the description")
	}
}

func TestRegisterBankSlipParsesStructuredValidationErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.TokenResponse{AccessToken: "token-1", ExpiresIn: 900})
	})
	mux.HandleFunc("POST /collection_bill_management/v2/workspaces/ws-1/bank_slips", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Application-Key") != "client-id" {
			t.Errorf("missing X-Application-Key header")
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("missing bearer token")
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"_errors":[{"_code":"006","_field":"nsuCode","_message":"nsu already used"}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.RegisterBankSlip(context.Background(), "ws-1", domain.BoletoPayload{NsuCode: "123"})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gwErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", gwErr.Status)
	}
	if len(gwErr.FieldErrors) != 1 || gwErr.FieldErrors[0].Field != "nsuCode" {
		t.Fatalf("expected structured field errors, got %+v", gwErr.FieldErrors)
	}
}

func TestRequestSlipPDFLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.TokenResponse{AccessToken: "token-1", ExpiresIn: 900})
	})
	mux.HandleFunc("POST /collection_bill_management/v2/bills/", func(w http.ResponseWriter, r *http.Request) {
		var req domain.SlipPDFRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PayerDocumentNumber == "" {
			t.Errorf("expected payer document number in body, err=%v", err)
		}
		json.NewEncoder(w).Encode(domain.SlipPDFResponse{Link: "https://bank.example.com/tmp/slip.pdf"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)

	link, err := client.RequestSlipPDFLink(context.Background(), "03399.11111 22222", "12345678901")
	if err != nil {
		t.Fatalf("RequestSlipPDFLink returned error: %v", err)
	}
	if link != "https://bank.example.com/tmp/slip.pdf" {
		t.Fatalf("unexpected link %q", link)
	}
}

func TestNewClientRejectsBrokenCertificateMaterial(t *testing.T) {
	_, err := NewClient(ClientConfig{
		BaseURL:        "https://example.com",
		ClientID:       "client-id",
		ClientSecret:   "secret",
		CertificatePEM: []byte("not a pem"),
		PrivateKeyPEM:  []byte("not a key"),
	})
	if err == nil {
		t.Fatal("expected error for invalid certificate material")
	}
}
