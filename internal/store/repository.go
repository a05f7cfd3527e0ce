/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the boleto-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/crismendesconnexions/boleto-service/internal/domain"
)

var (
	ErrBoletoNotFound     = errors.New("boleto not found")
	ErrDuplicateNsuCode   = errors.New("duplicate nsu code")
	ErrInvalidTransition  = errors.New("invalid boleto status transition")
	ErrCounterUnavailable = errors.New("sequence counter unavailable")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Sequence counter methods. NextSequenceValue performs an atomic
	// increment-and-read; two concurrent calls never observe the same value.
	NextSequenceValue(ctx context.Context, name string) (int64, error)

	// Boleto record methods. Status transitions are forward-only; the Mark*
	// methods fail with ErrInvalidTransition when the record is not in the
	// expected prior state.
	CreateBoleto(ctx context.Context, record *domain.BoletoRecord) error
	MarkBoletoRegistered(ctx context.Context, nsuCode, digitableLine, barCode string) error
	MarkBoletoError(ctx context.Context, nsuCode, failureDetail string) error
	MarkBoletoArchived(ctx context.Context, nsuCode, archivedPdfURL string) error
	MarkBoletoArchiveFailed(ctx context.Context, nsuCode, failureDetail string) error
	FindBoletoByNsuCode(ctx context.Context, nsuCode string) (*domain.BoletoRecord, error)
	ListBoletosByIssuer(ctx context.Context, issuerID string, opts domain.BoletoListOptions) ([]domain.BoletoRecord, error)
}
