/**
 * @description
 * This file contains the core business logic for the boleto-service. The
 * `Service` struct orchestrates the full issuance flow: it validates payer
 * input, resolves the billing workspace, allocates the slip identifiers,
 * registers the slip with the Santander gateway, and hands the registered slip
 * to the receipt archive pipeline.
 *
 * Key features:
 * - Validation happens before any network call; malformed input never leaves
 *   the process.
 * - A pending record is persisted before the gateway submission so a failed or
 *   interrupted registration is always inspectable and reconcilable.
 * - Status transitions are forward-only; archive failures never roll back a
 *   registration.
 * - Publishes lifecycle events to RabbitMQ for downstream consumers.
 *
 * @dependencies
 * - context, errors, fmt, log, strconv, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For record identifiers.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq, pkg/storage: For event publishing and durable storage.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crismendesconnexions/boleto-service/internal/domain"
	"github.com/crismendesconnexions/boleto-service/internal/store"
	"github.com/crismendesconnexions/boleto-service/pkg/rabbitmq"
	"github.com/crismendesconnexions/boleto-service/pkg/storage"
)

const (
	// registrationTimeout bounds the gateway submission call.
	registrationTimeout = 30 * time.Second

	dateLayout = "2006-01-02"

	documentKindTradeBill = "DUPLICATA_MERCANTIL"
	paymentTypeRegistro   = "REGISTRO"
)

// GatewayClient is the subset of the Santander client the service depends on.
type GatewayClient interface {
	ResolveWorkspace(ctx context.Context, covenantCode string) (string, error)
	RegisterBankSlip(ctx context.Context, workspaceID string, payload domain.BoletoPayload) (*domain.RegisterBankSlipResponse, error)
	RequestSlipPDFLink(ctx context.Context, digitableLine, payerDocumentNumber string) (string, error)
}

// IssueRateLimiter limits how often a single issuer may register slips.
type IssueRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for boleto issuance.
type Service struct {
	repo            store.Repository
	gateway         GatewayClient
	allocator       *SequenceAllocator
	archivePipeline *ReceiptArchivePipeline
	eventProducer   rabbitmq.Publisher
	eventExchange   string
	covenantCode    string
	participantCode string
	dueDateDays     int
	loc             *time.Location
	now             func() time.Time

	rateLimiter        IssueRateLimiter
	issueRatePerMinute int
}

// NewService creates a new boleto service instance. An unknown business
// timezone falls back to UTC rather than failing the boot.
func NewService(
	repo store.Repository,
	gateway GatewayClient,
	uploader storage.Uploader,
	producer rabbitmq.Publisher,
	eventExchange string,
	covenantCode string,
	participantCode string,
	dueDateBusinessDays int,
	businessTimezone string,
) *Service {
	loc, err := time.LoadLocation(businessTimezone)
	if err != nil {
		log.Printf("level=warn component=service msg=\"unknown business timezone; falling back to UTC\" tz=%s err=%v", businessTimezone, err)
		loc = time.UTC
	}

	return &Service{
		repo:            repo,
		gateway:         gateway,
		allocator:       NewSequenceAllocator(repo, loc),
		archivePipeline: NewReceiptArchivePipeline(gateway, uploader, repo),
		eventProducer:   producer,
		eventExchange:   eventExchange,
		covenantCode:    covenantCode,
		participantCode: participantCode,
		dueDateDays:     dueDateBusinessDays,
		loc:             loc,
		now:             time.Now,
	}
}

// SetIssueRateLimiter installs a distributed rate limiter for the issue
// endpoint. Limiting stays disabled when none is set.
func (s *Service) SetIssueRateLimiter(limiter IssueRateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.issueRatePerMinute = perMinute
}

// IssueAndArchive runs the full pipeline for one issuance request. A non-nil
// result with a non-nil result.ArchiveErr means the slip is registered but its
// PDF could not be archived; the caller decides how to report that partial
// success.
func (s *Service) IssueAndArchive(ctx context.Context, issuerID string, input domain.PayerInput) (*domain.IssueResult, error) {
	if err := s.consumeIssueRateLimit(ctx, issuerID); err != nil {
		return nil, err
	}

	input = normalizePayerInput(input)
	if err := validatePayerInput(input); err != nil {
		return nil, err
	}

	workspaceID, err := s.gateway.ResolveWorkspace(ctx, s.covenantCode)
	if err != nil {
		return nil, err
	}

	bankNumber, err := s.allocator.NextBankNumber(ctx)
	if err != nil {
		return nil, err
	}
	nsuCode, degraded, err := s.allocator.NextNsu(ctx, input.ClientNumber)
	if err != nil {
		return nil, err
	}

	nowLocal := s.now().In(s.loc)
	issueDate := nowLocal.Format(dateLayout)
	dueDate := nthBusinessDayOfNextMonth(nowLocal, s.dueDateDays).Format(dateLayout)

	payload := s.buildPayload(input, nsuCode, bankNumber, issueDate, dueDate)

	record := &domain.BoletoRecord{
		ID:                  uuid.New(),
		IssuerID:            issuerID,
		NsuCode:             nsuCode,
		NsuDate:             issueDate,
		BankNumber:          bankNumber,
		WorkspaceID:         workspaceID,
		CovenantCode:        s.covenantCode,
		ClientNumber:        input.ClientNumber,
		PayerName:           input.Name,
		PayerDocumentNumber: input.DocumentNumber,
		NominalValue:        input.NominalValue,
		DueDate:             dueDate,
		IssueDate:           issueDate,
		DegradedNsu:         degraded,
	}
	if err := s.repo.CreateBoleto(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist pending boleto: %w", err)
	}

	regCtx, cancel := context.WithTimeout(ctx, registrationTimeout)
	defer cancel()

	resp, err := s.gateway.RegisterBankSlip(regCtx, workspaceID, payload)
	if err != nil {
		if markErr := s.repo.MarkBoletoError(ctx, nsuCode, err.Error()); markErr != nil {
			log.Printf("level=error component=service msg=\"failed to mark registration error\" nsu_code=%s err=%v", nsuCode, markErr)
		}
		return nil, err
	}

	if err := s.repo.MarkBoletoRegistered(ctx, nsuCode, resp.DigitableLine, resp.BarCode); err != nil {
		return nil, fmt.Errorf("failed to record registration: %w", err)
	}
	record.Status = domain.BoletoStatusRegistered
	record.DigitableLine = &resp.DigitableLine
	record.BarCode = &resp.BarCode

	s.publishEvent(ctx, rabbitmq.RoutingKeyBoletoRegistered, record, "")

	result := &domain.IssueResult{Record: record}

	archivedURL, archiveErr := s.archivePipeline.Archive(ctx, record, input.DocumentNumber)
	if archiveErr != nil {
		log.Printf("level=warn component=service msg=\"pdf archive stage failed\" nsu_code=%s err=%v", nsuCode, archiveErr)
		result.ArchiveErr = archiveErr
		return result, nil
	}

	record.Status = domain.BoletoStatusArchived
	record.ArchivedPdfURL = &archivedURL
	result.ArchivedPdfURL = archivedURL

	s.publishEvent(ctx, rabbitmq.RoutingKeyBoletoArchived, record, archivedURL)
	return result, nil
}

// RetryArchive re-runs the archive pipeline for a slip that is registered or
// whose previous archive attempt failed. Registration is never repeated.
func (s *Service) RetryArchive(ctx context.Context, issuerID, nsuCode string) (string, error) {
	record, err := s.repo.FindBoletoByNsuCode(ctx, nsuCode)
	if err != nil {
		return "", err
	}
	if record.IssuerID != issuerID {
		return "", store.ErrBoletoNotFound
	}

	switch record.Status {
	case domain.BoletoStatusArchived:
		if record.ArchivedPdfURL != nil {
			return *record.ArchivedPdfURL, nil
		}
		return "", nil
	case domain.BoletoStatusRegistered, domain.BoletoStatusArchiveFailed:
		// fall through to the pipeline
	default:
		return "", store.ErrInvalidTransition
	}

	archivedURL, err := s.archivePipeline.Archive(ctx, record, record.PayerDocumentNumber)
	if err != nil {
		return "", err
	}

	record.Status = domain.BoletoStatusArchived
	record.ArchivedPdfURL = &archivedURL
	s.publishEvent(ctx, rabbitmq.RoutingKeyBoletoArchived, record, archivedURL)
	return archivedURL, nil
}

// GetBoleto returns one of the issuer's records.
func (s *Service) GetBoleto(ctx context.Context, issuerID, nsuCode string) (*domain.BoletoRecord, error) {
	record, err := s.repo.FindBoletoByNsuCode(ctx, nsuCode)
	if err != nil {
		return nil, err
	}
	if record.IssuerID != issuerID {
		return nil, store.ErrBoletoNotFound
	}
	return record, nil
}

// ListBoletos returns the issuer's records, newest first.
func (s *Service) ListBoletos(ctx context.Context, issuerID string, opts domain.BoletoListOptions) ([]domain.BoletoRecord, error) {
	return s.repo.ListBoletosByIssuer(ctx, issuerID, opts)
}

func (s *Service) buildPayload(input domain.PayerInput, nsuCode, bankNumber, issueDate, dueDate string) domain.BoletoPayload {
	// Allow-listed assembly: only the documented fields reach the gateway.
	return domain.BoletoPayload{
		Environment:          "PRODUCAO",
		NsuCode:              nsuCode,
		NsuDate:              issueDate,
		CovenantCode:         s.covenantCode,
		BankNumber:           bankNumber,
		ClientNumber:         input.ClientNumber,
		DueDate:              dueDate,
		IssueDate:            issueDate,
		ParticipantCode:      s.participantCode,
		NominalValue:         input.NominalValue,
		DocumentKind:         documentKindTradeBill,
		DeductionValue:       "0.00",
		PaymentType:          paymentTypeRegistro,
		WriteOffQuantityDays: "30",
		Payer: domain.BoletoPayer{
			Name:           input.Name,
			DocumentType:   input.DocumentType,
			DocumentNumber: input.DocumentNumber,
			Address:        input.Address,
			Neighborhood:   input.Neighborhood,
			City:           input.City,
			State:          input.State,
			ZipCode:        input.ZipCode,
		},
	}
}

func (s *Service) publishEvent(ctx context.Context, routingKey string, record *domain.BoletoRecord, archivedURL string) {
	if s.eventProducer == nil {
		return
	}

	event := rabbitmq.BoletoEvent{
		NsuCode:        record.NsuCode,
		IssuerID:       record.IssuerID,
		Status:         record.Status,
		ArchivedPdfURL: archivedURL,
		Timestamp:      s.now(),
	}
	if record.DigitableLine != nil {
		event.DigitableLine = *record.DigitableLine
	}

	if err := s.eventProducer.Publish(ctx, s.eventExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"event publish failed\" routing_key=%s nsu_code=%s err=%v", routingKey, record.NsuCode, err)
	}
}

func (s *Service) consumeIssueRateLimit(ctx context.Context, issuerID string) error {
	if s.rateLimiter == nil || s.issueRatePerMinute <= 0 {
		return nil
	}

	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "boleto_issue", issuerID, s.issueRatePerMinute, time.Minute)
	if err != nil {
		// Rate limiting is protective, not load-bearing; an unavailable limiter
		// must not block issuance.
		log.Printf("level=warn component=service msg=\"rate limiter unavailable; allowing request\" issuer_id=%s err=%v", issuerID, err)
		return nil
	}
	if count > s.issueRatePerMinute {
		return fmt.Errorf("%w: retry after %ds", ErrRateLimited, retryAfter)
	}
	return nil
}

func normalizePayerInput(input domain.PayerInput) domain.PayerInput {
	input.Name = strings.TrimSpace(input.Name)
	input.DocumentType = strings.ToUpper(strings.TrimSpace(input.DocumentType))
	input.DocumentNumber = strings.TrimSpace(input.DocumentNumber)
	input.Address = strings.TrimSpace(input.Address)
	input.Neighborhood = strings.TrimSpace(input.Neighborhood)
	input.City = strings.TrimSpace(input.City)
	input.State = strings.ToUpper(strings.TrimSpace(input.State))
	input.ZipCode = strings.TrimSpace(input.ZipCode)
	input.ClientNumber = strings.TrimSpace(input.ClientNumber)
	input.NominalValue = strings.TrimSpace(input.NominalValue)
	return input
}

func validatePayerInput(input domain.PayerInput) error {
	if input.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if input.DocumentType != domain.DocumentTypeCPF && input.DocumentType != domain.DocumentTypeCNPJ {
		return &ValidationError{Field: "document_type", Reason: "must be CPF or CNPJ"}
	}
	if input.DocumentNumber == "" {
		return &ValidationError{Field: "document_number", Reason: "is required"}
	}
	if !isDigits(input.DocumentNumber) {
		return &ValidationError{Field: "document_number", Reason: "must contain only digits"}
	}
	if input.Address == "" {
		return &ValidationError{Field: "address", Reason: "is required"}
	}
	if input.City == "" {
		return &ValidationError{Field: "city", Reason: "is required"}
	}
	if len(input.State) != 2 {
		return &ValidationError{Field: "state", Reason: "must be a two-letter state code"}
	}
	if input.ZipCode == "" || !isDigits(input.ZipCode) {
		return &ValidationError{Field: "zip_code", Reason: "must contain only digits"}
	}
	if input.ClientNumber == "" || !isDigits(input.ClientNumber) {
		return &ValidationError{Field: "client_number", Reason: "must contain only digits"}
	}
	value, err := strconv.ParseFloat(input.NominalValue, 64)
	if err != nil {
		return &ValidationError{Field: "nominal_value", Reason: "must be a decimal amount"}
	}
	if value <= 0 {
		return &ValidationError{Field: "nominal_value", Reason: "must be greater than zero"}
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsNotFound reports whether err represents a missing record, for API mapping.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrBoletoNotFound)
}
