/**
 * @description
 * This file contains the HTTP handlers for the boleto-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer, mapping the service's typed error kinds onto status codes.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For URL parameter extraction.
 * - internal/app, internal/domain, internal/store, pkg/santander: For service
 *   logic, models, and typed errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crismendesconnexions/boleto-service/internal/app"
	"github.com/crismendesconnexions/boleto-service/internal/domain"
	"github.com/crismendesconnexions/boleto-service/internal/store"
	"github.com/crismendesconnexions/boleto-service/pkg/santander"
)

// BoletoHandlers holds the application service that handlers will use.
type BoletoHandlers struct {
	service *app.Service
}

// NewBoletoHandlers creates a new instance of BoletoHandlers.
func NewBoletoHandlers(service *app.Service) *BoletoHandlers {
	return &BoletoHandlers{service: service}
}

// issueResponse is sent back to the client after an issuance run. ArchiveError
// is set when the slip registered but the PDF archive stage failed; the slip is
// still valid and the archive can be retried.
type issueResponse struct {
	Status         string               `json:"status"`
	Boleto         *domain.BoletoRecord `json:"boleto"`
	ArchivedPdfURL string               `json:"archived_pdf_url,omitempty"`
	ArchiveError   string               `json:"archive_error,omitempty"`
}

// errorResponse carries a machine-readable kind plus the upstream gateway body
// where one exists, for support diagnosis. Credentials are redacted upstream.
type errorResponse struct {
	Kind         string `json:"kind"`
	Error        string `json:"error"`
	UpstreamBody string `json:"upstream_body,omitempty"`
}

// IssueBoletoHandler handles requests to issue and archive a new bank slip.
func (h *BoletoHandlers) IssueBoletoHandler(w http.ResponseWriter, r *http.Request) {
	issuerID, ok := GetIssuerID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var input domain.PayerInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		log.Printf("level=warn component=api endpoint=issue_boleto outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.service.IssueAndArchive(r.Context(), issuerID, input)
	if err != nil {
		h.writeServiceError(w, "issue_boleto", issuerID, err)
		return
	}

	response := issueResponse{
		Status:         result.Record.Status,
		Boleto:         result.Record,
		ArchivedPdfURL: result.ArchivedPdfURL,
	}
	if result.ArchiveErr != nil {
		response.ArchiveError = result.ArchiveErr.Error()
	}

	log.Printf("level=info component=api endpoint=issue_boleto outcome=success issuer_id=%s nsu_code=%s status=%s", issuerID, result.Record.NsuCode, result.Record.Status)
	h.writeJSON(w, http.StatusCreated, response)
}

// ListBoletosHandler returns the authenticated issuer's records, newest first.
func (h *BoletoHandlers) ListBoletosHandler(w http.ResponseWriter, r *http.Request) {
	issuerID, ok := GetIssuerID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	opts := domain.BoletoListOptions{}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		fmt.Sscanf(limit, "%d", &opts.Limit)
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		fmt.Sscanf(offset, "%d", &opts.Offset)
	}

	records, err := h.service.ListBoletos(r.Context(), issuerID, opts)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_boletos issuer_id=%s err=%v", issuerID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list boletos")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"boletos": records})
}

// GetBoletoHandler returns a single record by NSU code.
func (h *BoletoHandlers) GetBoletoHandler(w http.ResponseWriter, r *http.Request) {
	issuerID, ok := GetIssuerID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	nsuCode := chi.URLParam(r, "nsuCode")
	record, err := h.service.GetBoleto(r.Context(), issuerID, nsuCode)
	if err != nil {
		if app.IsNotFound(err) {
			h.writeError(w, http.StatusNotFound, "Boleto not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_boleto issuer_id=%s nsu_code=%s err=%v", issuerID, nsuCode, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch boleto")
		return
	}

	h.writeJSON(w, http.StatusOK, record)
}

// RetryArchiveHandler re-runs the PDF archive stage for a registered slip.
func (h *BoletoHandlers) RetryArchiveHandler(w http.ResponseWriter, r *http.Request) {
	issuerID, ok := GetIssuerID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	nsuCode := chi.URLParam(r, "nsuCode")
	archivedURL, err := h.service.RetryArchive(r.Context(), issuerID, nsuCode)
	if err != nil {
		if app.IsNotFound(err) {
			h.writeError(w, http.StatusNotFound, "Boleto not found")
			return
		}
		if errors.Is(err, store.ErrInvalidTransition) {
			h.writeError(w, http.StatusConflict, "Boleto is not in an archivable state")
			return
		}
		h.writeServiceError(w, "retry_archive", issuerID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"archived_pdf_url": archivedURL})
}

// writeServiceError maps the service's typed error kinds onto HTTP responses.
func (h *BoletoHandlers) writeServiceError(w http.ResponseWriter, endpoint, issuerID string, err error) {
	log.Printf("level=warn component=api endpoint=%s outcome=failed issuer_id=%s err=%v", endpoint, issuerID, err)

	var validationErr *app.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Kind: "validation", Error: validationErr.Error()})
		return
	}
	if errors.Is(err, app.ErrRateLimited) {
		h.writeJSON(w, http.StatusTooManyRequests, errorResponse{Kind: "rate_limited", Error: err.Error()})
		return
	}

	var authErr *santander.AuthError
	if errors.As(err, &authErr) {
		h.writeJSON(w, http.StatusBadGateway, errorResponse{Kind: "auth", Error: authErr.Error(), UpstreamBody: authErr.Body})
		return
	}
	var wsErr *santander.WorkspaceError
	if errors.As(err, &wsErr) {
		h.writeJSON(w, http.StatusBadGateway, errorResponse{Kind: "workspace", Error: wsErr.Error(), UpstreamBody: wsErr.Body})
		return
	}
	var gwErr *santander.GatewayError
	if errors.As(err, &gwErr) {
		h.writeJSON(w, http.StatusBadGateway, errorResponse{Kind: "gateway", Error: gwErr.Error(), UpstreamBody: gwErr.Body})
		return
	}
	var retrievalErr *app.RetrievalError
	if errors.As(err, &retrievalErr) {
		h.writeJSON(w, http.StatusBadGateway, errorResponse{Kind: "retrieval", Error: retrievalErr.Error()})
		return
	}
	var archiveErr *app.ArchiveError
	if errors.As(err, &archiveErr) {
		h.writeJSON(w, http.StatusBadGateway, errorResponse{Kind: "archive", Error: archiveErr.Error()})
		return
	}

	h.writeJSON(w, http.StatusInternalServerError, errorResponse{Kind: "internal", Error: "Internal server error"})
}

// writeJSON is a helper for writing JSON responses.
func (h *BoletoHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *BoletoHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
