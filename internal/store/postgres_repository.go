/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to boleto records and sequence counters.
 *
 * The sequence counter uses a single INSERT .. ON CONFLICT .. RETURNING statement
 * so that concurrent allocations are serialized by the database row lock and
 * never return the same value. Status transitions on boleto records are guarded
 * in SQL (`WHERE status = ...`) to keep the lifecycle forward-only.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crismendesconnexions/boleto-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// NextSequenceValue atomically increments the named counter and returns the new
// value. The counter row is created on first use starting at 1.
func (r *PostgresRepository) NextSequenceValue(ctx context.Context, name string) (int64, error) {
	query := `
		INSERT INTO sequence_counters (name, last_value)
		VALUES ($1, 1)
		ON CONFLICT (name)
		DO UPDATE SET last_value = sequence_counters.last_value + 1, updated_at = now()
		RETURNING last_value`

	var value int64
	if err := r.db.QueryRow(ctx, query, name).Scan(&value); err != nil {
		return 0, errors.Join(ErrCounterUnavailable, err)
	}
	return value, nil
}

// CreateBoleto inserts a new record in the `pending` state.
func (r *PostgresRepository) CreateBoleto(ctx context.Context, record *domain.BoletoRecord) error {
	query := `
		INSERT INTO boletos (
			id, issuer_id, nsu_code, nsu_date, bank_number, workspace_id,
			covenant_code, client_number, payer_name, payer_document_number,
			nominal_value, due_date, issue_date, status, degraded_nsu,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)`

	now := time.Now().UTC()
	record.Status = domain.BoletoStatusPending
	record.CreatedAt = now
	record.UpdatedAt = now

	_, err := r.db.Exec(ctx, query,
		record.ID, record.IssuerID, record.NsuCode, record.NsuDate, record.BankNumber,
		record.WorkspaceID, record.CovenantCode, record.ClientNumber, record.PayerName,
		record.PayerDocumentNumber, record.NominalValue, record.DueDate, record.IssueDate,
		record.Status, record.DegradedNsu, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505: unique_violation on the nsu_code constraint
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateNsuCode
		}
		return err
	}
	return nil
}

// MarkBoletoRegistered transitions a pending record to registered and attaches
// the gateway-returned identifiers.
func (r *PostgresRepository) MarkBoletoRegistered(ctx context.Context, nsuCode, digitableLine, barCode string) error {
	query := `
		UPDATE boletos
		SET status = $2, digitable_line = $3, bar_code = $4, updated_at = now()
		WHERE nsu_code = $1 AND status = $5`

	return r.transition(ctx, query, nsuCode, domain.BoletoStatusRegistered, digitableLine, barCode, domain.BoletoStatusPending)
}

// MarkBoletoError transitions a pending record to error with the gateway's
// failure detail preserved for reconciliation.
func (r *PostgresRepository) MarkBoletoError(ctx context.Context, nsuCode, failureDetail string) error {
	query := `
		UPDATE boletos
		SET status = $2, failure_detail = $3, updated_at = now()
		WHERE nsu_code = $1 AND status = $4`

	return r.transition(ctx, query, nsuCode, domain.BoletoStatusError, failureDetail, domain.BoletoStatusPending)
}

// MarkBoletoArchived transitions a registered or archive_failed record to
// archived with the durable PDF location. archive_failed is allowed so that a
// later archive retry can complete the lifecycle.
func (r *PostgresRepository) MarkBoletoArchived(ctx context.Context, nsuCode, archivedPdfURL string) error {
	query := `
		UPDATE boletos
		SET status = $2, archived_pdf_url = $3, failure_detail = NULL, updated_at = now()
		WHERE nsu_code = $1 AND status = ANY($4)`

	return r.transition(ctx, query, nsuCode, domain.BoletoStatusArchived, archivedPdfURL,
		[]string{domain.BoletoStatusRegistered, domain.BoletoStatusArchiveFailed})
}

// MarkBoletoArchiveFailed records a failed archive attempt without touching the
// registration itself.
func (r *PostgresRepository) MarkBoletoArchiveFailed(ctx context.Context, nsuCode, failureDetail string) error {
	query := `
		UPDATE boletos
		SET status = $2, failure_detail = $3, updated_at = now()
		WHERE nsu_code = $1 AND status = ANY($4)`

	return r.transition(ctx, query, nsuCode, domain.BoletoStatusArchiveFailed, failureDetail,
		[]string{domain.BoletoStatusRegistered, domain.BoletoStatusArchiveFailed})
}

func (r *PostgresRepository) transition(ctx context.Context, query string, args ...interface{}) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing record from a record in the wrong state.
		nsuCode, _ := args[0].(string)
		var exists bool
		if checkErr := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM boletos WHERE nsu_code = $1)", nsuCode).Scan(&exists); checkErr == nil && !exists {
			return ErrBoletoNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

// FindBoletoByNsuCode retrieves a single record by its NSU code.
func (r *PostgresRepository) FindBoletoByNsuCode(ctx context.Context, nsuCode string) (*domain.BoletoRecord, error) {
	query := `
		SELECT id, issuer_id, nsu_code, nsu_date, bank_number, workspace_id,
		       covenant_code, client_number, payer_name, payer_document_number,
		       nominal_value, due_date, issue_date, status, digitable_line,
		       bar_code, archived_pdf_url, failure_detail,
		       degraded_nsu, created_at, updated_at
		FROM boletos
		WHERE nsu_code = $1`

	record, err := scanBoleto(r.db.QueryRow(ctx, query, nsuCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBoletoNotFound
		}
		return nil, err
	}
	return record, nil
}

// ListBoletosByIssuer returns the issuer's records, newest first.
func (r *PostgresRepository) ListBoletosByIssuer(ctx context.Context, issuerID string, opts domain.BoletoListOptions) ([]domain.BoletoRecord, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, issuer_id, nsu_code, nsu_date, bank_number, workspace_id,
		       covenant_code, client_number, payer_name, payer_document_number,
		       nominal_value, due_date, issue_date, status, digitable_line,
		       bar_code, archived_pdf_url, failure_detail,
		       degraded_nsu, created_at, updated_at
		FROM boletos
		WHERE issuer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, issuerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.BoletoRecord, 0, limit)
	for rows.Next() {
		record, err := scanBoleto(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBoleto(row rowScanner) (*domain.BoletoRecord, error) {
	var record domain.BoletoRecord
	err := row.Scan(
		&record.ID, &record.IssuerID, &record.NsuCode, &record.NsuDate, &record.BankNumber,
		&record.WorkspaceID, &record.CovenantCode, &record.ClientNumber, &record.PayerName,
		&record.PayerDocumentNumber, &record.NominalValue, &record.DueDate, &record.IssueDate,
		&record.Status, &record.DigitableLine, &record.BarCode,
		&record.ArchivedPdfURL, &record.FailureDetail, &record.DegradedNsu,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
