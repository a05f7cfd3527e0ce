package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/crismendesconnexions/boleto-service/internal/domain"
	"github.com/crismendesconnexions/boleto-service/internal/store"
)

// fakeRepository is an in-memory store.Repository used across the app tests.
type fakeRepository struct {
	mu       sync.Mutex
	counters map[string]int64
	records  map[string]*domain.BoletoRecord

	failCounters bool
	createErr    error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		counters: make(map[string]int64),
		records:  make(map[string]*domain.BoletoRecord),
	}
}

func (r *fakeRepository) NextSequenceValue(ctx context.Context, name string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCounters {
		return 0, store.ErrCounterUnavailable
	}
	r.counters[name]++
	return r.counters[name], nil
}

func (r *fakeRepository) CreateBoleto(ctx context.Context, record *domain.BoletoRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, exists := r.records[record.NsuCode]; exists {
		return store.ErrDuplicateNsuCode
	}
	record.Status = domain.BoletoStatusPending
	clone := *record
	r.records[record.NsuCode] = &clone
	return nil
}

func (r *fakeRepository) MarkBoletoRegistered(ctx context.Context, nsuCode, digitableLine, barCode string) error {
	return r.transition(nsuCode, []string{domain.BoletoStatusPending}, func(rec *domain.BoletoRecord) {
		rec.Status = domain.BoletoStatusRegistered
		rec.DigitableLine = &digitableLine
		rec.BarCode = &barCode
	})
}

func (r *fakeRepository) MarkBoletoError(ctx context.Context, nsuCode, failureDetail string) error {
	return r.transition(nsuCode, []string{domain.BoletoStatusPending}, func(rec *domain.BoletoRecord) {
		rec.Status = domain.BoletoStatusError
		rec.FailureDetail = &failureDetail
	})
}

func (r *fakeRepository) MarkBoletoArchived(ctx context.Context, nsuCode, archivedPdfURL string) error {
	return r.transition(nsuCode, []string{domain.BoletoStatusRegistered, domain.BoletoStatusArchiveFailed}, func(rec *domain.BoletoRecord) {
		rec.Status = domain.BoletoStatusArchived
		rec.ArchivedPdfURL = &archivedPdfURL
	})
}

func (r *fakeRepository) MarkBoletoArchiveFailed(ctx context.Context, nsuCode, failureDetail string) error {
	return r.transition(nsuCode, []string{domain.BoletoStatusRegistered, domain.BoletoStatusArchiveFailed}, func(rec *domain.BoletoRecord) {
		rec.Status = domain.BoletoStatusArchiveFailed
		rec.FailureDetail = &failureDetail
	})
}

func (r *fakeRepository) transition(nsuCode string, fromStatuses []string, apply func(*domain.BoletoRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[nsuCode]
	if !ok {
		return store.ErrBoletoNotFound
	}
	for _, status := range fromStatuses {
		if rec.Status == status {
			apply(rec)
			return nil
		}
	}
	return store.ErrInvalidTransition
}

func (r *fakeRepository) FindBoletoByNsuCode(ctx context.Context, nsuCode string) (*domain.BoletoRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[nsuCode]
	if !ok {
		return nil, store.ErrBoletoNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *fakeRepository) ListBoletosByIssuer(ctx context.Context, issuerID string, opts domain.BoletoListOptions) ([]domain.BoletoRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.BoletoRecord
	for _, rec := range r.records {
		if rec.IssuerID == issuerID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeRepository) statusOf(nsuCode string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[nsuCode]; ok {
		return rec.Status
	}
	return ""
}

func (r *fakeRepository) singleRecord() (*domain.BoletoRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) != 1 {
		return nil, fmt.Errorf("expected exactly one record, got %d", len(r.records))
	}
	for _, rec := range r.records {
		clone := *rec
		return &clone, nil
	}
	return nil, errors.New("unreachable")
}

// fakeGateway is a counting GatewayClient whose behavior the tests configure.
type fakeGateway struct {
	mu sync.Mutex

	workspaceID  string
	workspaceErr error
	registerResp *domain.RegisterBankSlipResponse
	registerErr  error
	pdfLink      string
	pdfLinkErr   error

	resolveCalls  int
	registerCalls int
	pdfLinkCalls  int
}

func (g *fakeGateway) ResolveWorkspace(ctx context.Context, covenantCode string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolveCalls++
	if g.workspaceErr != nil {
		return "", g.workspaceErr
	}
	return g.workspaceID, nil
}

func (g *fakeGateway) RegisterBankSlip(ctx context.Context, workspaceID string, payload domain.BoletoPayload) (*domain.RegisterBankSlipResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registerCalls++
	if g.registerErr != nil {
		return nil, g.registerErr
	}
	return g.registerResp, nil
}

func (g *fakeGateway) RequestSlipPDFLink(ctx context.Context, digitableLine, payerDocumentNumber string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pdfLinkCalls++
	if g.pdfLinkErr != nil {
		return "", g.pdfLinkErr
	}
	return g.pdfLink, nil
}

func (g *fakeGateway) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolveCalls + g.registerCalls + g.pdfLinkCalls
}

// fakeUploader records uploads and can fail a configured number of times.
type fakeUploader struct {
	mu        sync.Mutex
	failTimes int
	uploads   int
	lastKey   string
}

func (u *fakeUploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads++
	u.lastKey = key
	if u.failTimes > 0 {
		u.failTimes--
		return "", errors.New("object store unavailable")
	}
	return "https://files.example.com/" + key, nil
}
