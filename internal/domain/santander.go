/**
 * @description
 * This file defines the Go structs that map to the request and response shapes
 * of the Santander collection-management API (token exchange, workspaces,
 * bank-slip registration and PDF retrieval).
 *
 * @notes
 * - These structs are used by the Santander API client to serialize requests
 *   and deserialize responses; field names follow the upstream JSON contract.
 */
package domain

// --- Token Exchange ---

// TokenResponse is the body returned by the client-credentials exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// --- Workspaces ---

// Workspace is one workspace resource as returned by the gateway.
type Workspace struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Covenants []Covenant `json:"covenants"`
}

// Covenant identifies one covenant bound to a workspace.
type Covenant struct {
	Code string `json:"code"`
}

// WorkspaceListResponse is the envelope of GET /workspaces.
type WorkspaceListResponse struct {
	Content []Workspace `json:"content"`
}

// CreateWorkspaceRequest is the body of POST /workspaces. The minimal fallback
// variant carries only Type and Covenants.
type CreateWorkspaceRequest struct {
	Type                   string     `json:"type"`
	Covenants              []Covenant `json:"covenants"`
	Description            string     `json:"description,omitempty"`
	BankSlipBillingWebhook bool       `json:"bankSlipBillingWebhookActive,omitempty"`
}

// --- Bank Slip Registration ---

// BoletoPayload is the registration body submitted to
// POST /workspaces/{id}/bank_slips. Assembled exclusively by the issuer from
// allocator output plus allow-listed payer input.
type BoletoPayload struct {
	Environment          string      `json:"environment"`
	NsuCode              string      `json:"nsuCode"`
	NsuDate              string      `json:"nsuDate"`
	CovenantCode         string      `json:"covenantCode"`
	BankNumber           string      `json:"bankNumber"`
	ClientNumber         string      `json:"clientNumber"`
	DueDate              string      `json:"dueDate"`
	IssueDate            string      `json:"issueDate"`
	ParticipantCode      string      `json:"participantCode"`
	NominalValue         string      `json:"nominalValue"`
	Payer                BoletoPayer `json:"payer"`
	DocumentKind         string      `json:"documentKind"`
	DeductionValue       string      `json:"deductionValue"`
	PaymentType          string      `json:"paymentType"`
	WriteOffQuantityDays string      `json:"writeOffQuantityDays"`
	Messages             []string    `json:"messages,omitempty"`
}

// BoletoPayer is the payer block inside a registration payload.
type BoletoPayer struct {
	Name           string `json:"name"`
	DocumentType   string `json:"documentType"`
	DocumentNumber string `json:"documentNumber"`
	Address        string `json:"address"`
	Neighborhood   string `json:"neighborhood"`
	City           string `json:"city"`
	State          string `json:"state"`
	ZipCode        string `json:"zipCode"`
}

// RegisterBankSlipResponse is the gateway's answer to a successful registration.
type RegisterBankSlipResponse struct {
	NsuCode       string `json:"nsuCode"`
	NsuDate       string `json:"nsuDate"`
	BankNumber    string `json:"bankNumber"`
	DigitableLine string `json:"digitableLine"`
	BarCode       string `json:"barCode"`
	QrCodePix     string `json:"qrCodePix"`
	Status        string `json:"status"`
}

// GatewayErrorBody is the structured validation-error envelope the gateway
// returns on 4xx responses.
type GatewayErrorBody struct {
	Errors []GatewayFieldError `json:"_errors"`
}

// GatewayFieldError is one field-level validation failure.
type GatewayFieldError struct {
	Code    string `json:"_code"`
	Field   string `json:"_field"`
	Message string `json:"_message"`
}

// --- Bank Slip PDF ---

// SlipPDFRequest is the body of POST /bills/{digitableLine}/bank_slips.
type SlipPDFRequest struct {
	PayerDocumentNumber string `json:"payerDocumentNumber"`
}

// SlipPDFResponse carries the time-limited link to the bank-rendered PDF.
type SlipPDFResponse struct {
	Link string `json:"link"`
}
