/**
 * @description
 * This file defines the typed errors returned by the Santander API client.
 * Each error kind carries the upstream status code and raw body for support
 * diagnosis; the client secret is redacted before any body is attached.
 *
 * @dependencies
 * - fmt: Standard Go library.
 * - internal/domain: For the structured gateway validation-error shape.
 */
package santander

import (
	"fmt"

	"github.com/crismendesconnexions/boleto-service/internal/domain"
)

// AuthError indicates a failed client-credentials exchange or mTLS transport
// failure. It is fatal for the request and never retried silently.
type AuthError struct {
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("santander auth failed: %v", e.Err)
	}
	return fmt.Sprintf("santander auth failed: status %d, body: %s", e.Status, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// WorkspaceError indicates that workspace lookup and creation (including the
// minimal-payload fallback) failed.
type WorkspaceError struct {
	Status int
	Body   string
	Err    error
}

func (e *WorkspaceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("santander workspace resolution failed: %v", e.Err)
	}
	return fmt.Sprintf("santander workspace resolution failed: status %d, body: %s", e.Status, e.Body)
}

func (e *WorkspaceError) Unwrap() error { return e.Err }

// GatewayError indicates that the bank-slip registration or PDF-link call was
// rejected or failed in transit. FieldErrors is populated when the gateway
// returned its structured `_errors` envelope.
type GatewayError struct {
	Status      int
	Body        string
	FieldErrors []domain.GatewayFieldError
	Err         error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("santander gateway call failed: %v", e.Err)
	}
	return fmt.Sprintf("santander gateway call failed: status %d, body: %s", e.Status, e.Body)
}

func (e *GatewayError) Unwrap() error { return e.Err }
