/**
 * @description
 * This file defines the error kinds owned by the application layer:
 * caller-input validation failures and the two PDF-archival stage failures.
 * Gateway-side kinds (AuthError, WorkspaceError, GatewayError) live with the
 * Santander client and pass through this layer untouched.
 *
 * @dependencies
 * - errors, fmt: Standard Go libraries.
 */

package app

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned when the issuer has exceeded the configured
// issuance rate limit.
var ErrRateLimited = errors.New("issuance rate limit exceeded")

// ValidationError reports malformed caller-supplied payer data. It is returned
// before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payer input: field %q %s", e.Field, e.Reason)
}

// RetrievalError reports a failure to obtain the bank-issued PDF (missing
// link, link request failure, or download failure). The slip stays registered.
type RetrievalError struct {
	Reason string
	Err    error
}

func (e *RetrievalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pdf retrieval failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("pdf retrieval failed: %s", e.Reason)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// ArchiveError reports a failure to persist an already-downloaded PDF to the
// durable store after the retry. The slip stays registered; only the archive
// state is marked failed.
type ArchiveError struct {
	Err error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("pdf archive failed: %v", e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }
