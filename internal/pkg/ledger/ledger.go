// Package ledger is the client for the coordination ledger: read-only
// assignment queries plus signed submissions. The wire format is
// explicitly out of scope (spec §1 Non-goals); this implements the four
// consumed RPCs over plain JSON/HTTP rather than reusing any
// crawl-frontier-shaped dependency from the example pack (see
// DESIGN.md).
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/archivetheweb/atwworker/internal/pkg/models"
)

// Ledger is the interface the scheduler and archive worker depend on.
type Ledger interface {
	ArchivingRequestsFor(ctx context.Context, identity string) ([]models.ArchiveAssignment, error)
	Uploaders(ctx context.Context) (map[string]models.UploaderMeta, error)
	DeleteArchiveRequest(ctx context.Context, id string) error
	SubmitArchive(ctx context.Context, sub models.ArchiveSubmission) error
}

// HTTPLedger is the concrete, process-wide ledger client.
type HTTPLedger struct {
	baseURL string
	client  *http.Client
}

// New returns an HTTPLedger talking to baseURL.
func New(baseURL string) *HTTPLedger {
	return &HTTPLedger{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type archivingRequestsResponse struct {
	Requests []ledgerAssignment `json:"requests"`
}

type ledgerAssignment struct {
	ID               string   `json:"id"`
	URLs             []string `json:"urls"`
	Depth            int      `json:"depth"`
	Scope            string   `json:"scope"`
	Cron             string   `json:"cron"`
	EndTimestamp     int64    `json:"end_timestamp"`
	LastArchivedTime int64    `json:"last_archived_timestamp"`
	UploaderAddress  string   `json:"uploader_address"`
}

func (l *HTTPLedger) ArchivingRequestsFor(ctx context.Context, identity string) ([]models.ArchiveAssignment, error) {
	url := fmt.Sprintf("%s/archiving_requests_for/%s", l.baseURL, identity)

	var body archivingRequestsResponse
	if err := l.getJSON(ctx, url, &body); err != nil {
		return nil, &models.ErrContractInteraction{Op: "archiving_requests_for", Err: err}
	}

	out := make([]models.ArchiveAssignment, 0, len(body.Requests))
	for _, r := range body.Requests {
		out = append(out, models.ArchiveAssignment{
			ID:               r.ID,
			URLs:             r.URLs,
			Depth:            r.Depth,
			Scope:            models.ParseCrawlScope(r.Scope),
			Cron:             r.Cron,
			EndTimestamp:     r.EndTimestamp,
			LastArchivedTime: r.LastArchivedTime,
			UploaderAddress:  r.UploaderAddress,
		})
	}
	return out, nil
}

type uploaderEntry struct {
	Address      string `json:"address"`
	PublicKey    string `json:"public_key"`
	RegisteredAt int64  `json:"registered_at"`
}

func (l *HTTPLedger) Uploaders(ctx context.Context) (map[string]models.UploaderMeta, error) {
	var entries map[string]uploaderEntry
	if err := l.getJSON(ctx, l.baseURL+"/uploaders", &entries); err != nil {
		return nil, &models.ErrContractInteraction{Op: "uploaders", Err: err}
	}

	out := make(map[string]models.UploaderMeta, len(entries))
	for k, v := range entries {
		out[k] = models.UploaderMeta{
			Address:      v.Address,
			PublicKey:    v.PublicKey,
			RegisteredAt: time.Unix(v.RegisteredAt, 0).UTC(),
		}
	}
	return out, nil
}

func (l *HTTPLedger) DeleteArchiveRequest(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, l.baseURL+"/archive_requests/"+id, nil)
	if err != nil {
		return &models.ErrContractInteraction{Op: "delete_archive_request", Err: err}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return &models.ErrContractInteraction{Op: "delete_archive_request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &models.ErrContractInteraction{Op: "delete_archive_request", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

type archiveSubmissionBody struct {
	FullURL          string `json:"full_url"`
	Size             int64  `json:"size"`
	UploaderAddress  string `json:"uploader_address"`
	ArchiveRequestID string `json:"archive_request_id"`
	Timestamp        int64  `json:"timestamp"`
	ArweaveTx        string `json:"arweave_tx"`
	Depth            int    `json:"depth"`
	Scope            string `json:"scope"`
	ScreenshotTx     string `json:"screenshot_tx"`
	Title            string `json:"title"`
}

func (l *HTTPLedger) SubmitArchive(ctx context.Context, sub models.ArchiveSubmission) error {
	payload := archiveSubmissionBody{
		FullURL:          sub.FullURL,
		Size:             sub.Size,
		UploaderAddress:  sub.UploaderAddress,
		ArchiveRequestID: sub.ArchiveRequestID,
		Timestamp:        sub.Timestamp,
		ArweaveTx:        sub.ArweaveTx,
		Depth:            sub.Depth,
		Scope:            sub.Scope.String(),
		ScreenshotTx:     sub.ScreenshotTx,
		Title:            sub.Title,
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return &models.ErrContractInteraction{Op: "submit_archive", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/submit_archive", bytes.NewReader(buf))
	if err != nil {
		return &models.ErrContractInteraction{Op: "submit_archive", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return &models.ErrContractInteraction{Op: "submit_archive", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &models.ErrContractInteraction{Op: "submit_archive", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

func (l *HTTPLedger) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
