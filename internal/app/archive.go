/**
 * @description
 * This file implements the receipt archive pipeline: it requests the
 * bank-issued, time-limited PDF link for a registered slip, downloads the
 * bytes, re-uploads them to the durable object store, and records the durable
 * URL on the boleto record.
 *
 * Failure semantics: link and download problems are RetrievalError and leave
 * the record registered; a store write that fails after the single retry is
 * ArchiveError and marks the record archive_failed so the stage can be retried
 * independently without re-registering the slip.
 *
 * @dependencies
 * - context, fmt, io, log, net/http, time: Standard Go libraries.
 * - internal/domain, internal/store: Domain models and persistence.
 * - pkg/storage: Durable object store uploader.
 */

package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/crismendesconnexions/boleto-service/internal/domain"
	"github.com/crismendesconnexions/boleto-service/internal/store"
	"github.com/crismendesconnexions/boleto-service/pkg/storage"
)

// ReceiptArchivePipeline moves a registered slip's PDF from the bank's
// temporary link into durable storage.
type ReceiptArchivePipeline struct {
	gateway    GatewayClient
	uploader   storage.Uploader
	repo       store.Repository
	httpClient *http.Client
	now        func() time.Time
}

// NewReceiptArchivePipeline wires the pipeline's collaborators.
func NewReceiptArchivePipeline(gateway GatewayClient, uploader storage.Uploader, repo store.Repository) *ReceiptArchivePipeline {
	return &ReceiptArchivePipeline{
		gateway:    gateway,
		uploader:   uploader,
		repo:       repo,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

// Archive runs the full retrieve-download-upload sequence for a registered
// record and returns the durable PDF URL.
func (p *ReceiptArchivePipeline) Archive(ctx context.Context, record *domain.BoletoRecord, payerDocumentNumber string) (string, error) {
	if record.DigitableLine == nil || *record.DigitableLine == "" {
		return "", &RetrievalError{Reason: "record has no digitable line"}
	}

	link, err := p.gateway.RequestSlipPDFLink(ctx, *record.DigitableLine, payerDocumentNumber)
	if err != nil {
		return "", &RetrievalError{Reason: "pdf link request failed", Err: err}
	}
	if link == "" {
		return "", &RetrievalError{Reason: "gateway response has no pdf link"}
	}

	pdfBytes, err := p.download(ctx, link)
	if err != nil {
		return "", &RetrievalError{Reason: "pdf download failed", Err: err}
	}

	key := storage.ReceiptKey(record.NsuCode, p.now())
	durableURL, err := p.uploader.Upload(ctx, key, pdfBytes, "application/pdf")
	if err != nil {
		log.Printf("level=warn component=archive_pipeline msg=\"durable upload failed; retrying once\" nsu_code=%s err=%v", record.NsuCode, err)
		durableURL, err = p.uploader.Upload(ctx, key, pdfBytes, "application/pdf")
	}
	if err != nil {
		archiveErr := &ArchiveError{Err: err}
		if markErr := p.repo.MarkBoletoArchiveFailed(ctx, record.NsuCode, archiveErr.Error()); markErr != nil {
			log.Printf("level=error component=archive_pipeline msg=\"failed to mark archive failure\" nsu_code=%s err=%v", record.NsuCode, markErr)
		}
		return "", archiveErr
	}

	if err := p.repo.MarkBoletoArchived(ctx, record.NsuCode, durableURL); err != nil {
		return "", &ArchiveError{Err: fmt.Errorf("failed to record archived url: %w", err)}
	}
	return durableURL, nil
}

func (p *ReceiptArchivePipeline) download(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	pdfBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf body: %w", err)
	}
	if len(pdfBytes) == 0 {
		return nil, fmt.Errorf("download returned empty body")
	}
	return pdfBytes, nil
}
