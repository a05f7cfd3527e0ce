/**
 * @description
 * This file defines the core domain models for the boleto-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Monetary values travel as decimal strings (e.g. "150.00") because that is
 *   the representation the Santander collection API consumes; they are never
 *   used for in-process arithmetic.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Boleto record lifecycle statuses. Transitions are forward-only:
// pending -> registered -> archived | archive_failed, or pending -> error.
const (
	BoletoStatusPending       = "pending"
	BoletoStatusRegistered    = "registered"
	BoletoStatusError         = "error"
	BoletoStatusArchived      = "archived"
	BoletoStatusArchiveFailed = "archive_failed"
)

// Payer document types accepted by the bank gateway.
const (
	DocumentTypeCPF  = "CPF"
	DocumentTypeCNPJ = "CNPJ"
)

// BoletoRecord is the persistent record of one bank-slip issuance attempt.
// This struct maps directly to the `boletos` table in the database.
type BoletoRecord struct {
	ID                  uuid.UUID `json:"id"`
	IssuerID            string    `json:"issuer_id"`
	NsuCode             string    `json:"nsu_code"`
	NsuDate             string    `json:"nsu_date"`
	BankNumber          string    `json:"bank_number"`
	WorkspaceID         string    `json:"workspace_id"`
	CovenantCode        string    `json:"covenant_code"`
	ClientNumber        string    `json:"client_number"`
	PayerName           string    `json:"payer_name"`
	PayerDocumentNumber string    `json:"payer_document_number"`
	NominalValue        string    `json:"nominal_value"`
	DueDate             string    `json:"due_date"`
	IssueDate           string    `json:"issue_date"`
	Status              string    `json:"status"`
	DigitableLine       *string   `json:"digitable_line,omitempty"`
	BarCode             *string   `json:"bar_code,omitempty"`
	ArchivedPdfURL      *string   `json:"archived_pdf_url,omitempty"`
	FailureDetail       *string   `json:"failure_detail,omitempty"`
	DegradedNsu         bool      `json:"degraded_nsu"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// PayerInput is the DTO for an incoming boleto issuance API request. Only the
// fields listed here are ever forwarded to the bank gateway; arbitrary caller
// fields are dropped at the API boundary.
type PayerInput struct {
	Name           string `json:"name"`
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	Address        string `json:"address"`
	Neighborhood   string `json:"neighborhood"`
	City           string `json:"city"`
	State          string `json:"state"`
	ZipCode        string `json:"zip_code"`
	ClientNumber   string `json:"client_number"`
	NominalValue   string `json:"nominal_value"`
}

// IssueResult is what the service returns to the API layer after a full
// issue-and-archive run. ArchiveErr is non-nil when registration succeeded but
// the PDF archive stage failed; the registration is never rolled back for it.
type IssueResult struct {
	Record         *BoletoRecord
	ArchivedPdfURL string
	ArchiveErr     error
}

// BoletoListOptions controls pagination for issuer-scoped record listings.
type BoletoListOptions struct {
	Limit  int
	Offset int
}
