/**
 * @description
 * This file implements the sequence allocator that issues the two
 * globally-unique identifiers a bank-slip registration needs: the monotonic
 * zero-padded bank number and the fixed-width NSU code. Both are backed by the
 * repository's atomic increment-and-read, so concurrent allocations never
 * return the same value.
 *
 * The NSU allocator carries a deterministic degraded fallback for counter
 * outages: the timestamp prefix plus the low digits of the client number. The
 * fallback cannot guarantee global uniqueness, so it is surfaced to callers
 * through the degraded flag rather than substituted silently.
 *
 * @dependencies
 * - context, fmt, log, strings, time: Standard Go libraries.
 * - internal/store: For the sequence counter persistence.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/crismendesconnexions/boleto-service/internal/store"
)

const (
	counterBankNumber = "bank_number"
	counterNsu        = "nsu"

	// bankNumberWidth is the fixed width of the zero-padded "nosso numero".
	bankNumberWidth = 13

	// nsuTimeLayout renders YYMMDDHHMMSS in the business timezone.
	nsuTimeLayout = "060102150405"
)

// SequenceAllocator issues bank numbers and NSU codes from persisted counters.
type SequenceAllocator struct {
	repo store.Repository
	loc  *time.Location
	now  func() time.Time
}

// NewSequenceAllocator creates an allocator anchored to the business timezone.
func NewSequenceAllocator(repo store.Repository, loc *time.Location) *SequenceAllocator {
	return &SequenceAllocator{
		repo: repo,
		loc:  loc,
		now:  time.Now,
	}
}

// NextBankNumber returns the next monotonic bank number, zero-padded to fixed
// width. Counter failure is fatal here: a duplicate bank number would collide
// at the gateway, so there is no degraded path.
func (a *SequenceAllocator) NextBankNumber(ctx context.Context) (string, error) {
	value, err := a.repo.NextSequenceValue(ctx, counterBankNumber)
	if err != nil {
		return "", fmt.Errorf("failed to allocate bank number: %w", err)
	}
	return fmt.Sprintf("%0*d", bankNumberWidth, value), nil
}

// NextNsu returns the next NSU code: the current timestamp in the business
// timezone concatenated with a 3-digit wrapping sequence. When the counter is
// unavailable it falls back to a timestamp-plus-client-number derivation and
// reports degraded=true so the caller can record the hazard.
func (a *SequenceAllocator) NextNsu(ctx context.Context, clientNumber string) (nsu string, degraded bool, err error) {
	prefix := a.now().In(a.loc).Format(nsuTimeLayout)

	value, err := a.repo.NextSequenceValue(ctx, counterNsu)
	if err != nil {
		fallback := prefix + lowDigits(clientNumber, 3)
		log.Printf("level=warn component=sequence_allocator msg=\"counter unavailable; using degraded nsu\" degraded=true nsu=%s err=%v", fallback, err)
		return fallback, true, nil
	}

	return fmt.Sprintf("%s%03d", prefix, value%1000), false, nil
}

// lowDigits extracts the last n digits of s, left-padded with zeros.
func lowDigits(s string, n int) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > n {
		digits = digits[len(digits)-n:]
	}
	for len(digits) < n {
		digits = "0" + digits
	}
	return digits
}
