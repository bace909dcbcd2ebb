package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	humanize "github.com/dustin/go-humanize"

	"github.com/archivetheweb/atwworker/internal/pkg/log"
	"github.com/archivetheweb/atwworker/internal/pkg/models"
	"github.com/archivetheweb/atwworker/internal/pkg/stats"
)

// chunkingThreshold is the size at or above which an upload takes the
// chunked path; exactly at the threshold it is chunked.
const chunkingThreshold = 50_000_000

// Uploader drives the two-path upload contract against the storage
// network's HTTP API.
type Uploader struct {
	baseURL    string
	appName    string
	appVersion string
	client     *http.Client
	logger     *log.FieldedLogger
}

// New returns an Uploader targeting baseURL, tagging every upload with
// appName/appVersion.
func New(baseURL, appName, appVersion string) *Uploader {
	return &Uploader{
		baseURL:    baseURL,
		appName:    appName,
		appVersion: appVersion,
		client:     &http.Client{},
		logger:     log.NewFieldedLogger(&log.Fields{"component": "uploader"}),
	}
}

// UploadCrawlFiles uploads every WARC file in order, then the screenshot,
// returning identifiers for all of them.
func (u *Uploader) UploadCrawlFiles(ctx context.Context, result models.ArchivingResult) (models.UploadResult, error) {
	var out models.UploadResult

	for _, path := range result.WARCFiles {
		payload, err := os.ReadFile(path)
		if err != nil {
			return models.UploadResult{}, fmt.Errorf("uploader: read %s: %w", path, err)
		}

		tags := warcTags(u.appName, u.appVersion, result.ArchiveInfo, result.OriginalURL)
		id, err := u.uploadOne(ctx, payload, tags)
		if err != nil {
			return models.UploadResult{}, fmt.Errorf("uploader: upload %s: %w", path, err)
		}
		out.WARCTxIDs = append(out.WARCTxIDs, id)
	}

	screenshot, err := os.ReadFile(result.ScreenshotFile)
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("uploader: read screenshot: %w", err)
	}

	tags := screenshotTags(u.appName, u.appVersion, result.ArchiveInfo, result.OriginalURL)
	screenshotID, err := u.uploadOne(ctx, screenshot, tags)
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("uploader: upload screenshot: %w", err)
	}
	out.ScreenshotID = screenshotID

	return out, nil
}

// uploadOne builds the signed data item, computes its identifier before
// sending anything, and dispatches via the small or chunked path
// depending on serialized size.
func (u *Uploader) uploadOne(ctx context.Context, payload []byte, tags []Tag) (string, error) {
	item := DataItem{Payload: payload, Tags: tags}
	serialized := item.Serialize()
	id := item.Identifier()

	u.logger.Info("uploading artifact", "size", humanize.Bytes(uint64(len(serialized))), "id", id)

	if len(serialized) < chunkingThreshold {
		if err := u.uploadSmall(ctx, serialized); err != nil {
			return "", err
		}
		stats.BytesUploadedAdd(int64(len(serialized)))
		return id, nil
	}

	if err := u.uploadChunked(ctx, serialized); err != nil {
		return "", err
	}
	stats.BytesUploadedAdd(int64(len(serialized)))
	return id, nil
}

func (u *Uploader) uploadSmall(ctx context.Context, serialized []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/tx/arweave", bytes.NewReader(serialized))
	if err != nil {
		return err
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("small upload: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("small upload: status %d", resp.StatusCode)
	}
	return nil
}

// balance is the BundlrBalance precheck consumed by the CLI's -b/--balance
// mode and the startup fatal check.
func (u *Uploader) Balance(ctx context.Context, address string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+"/account/balance/arweave?address="+address, nil)
	if err != nil {
		return "", err
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Balance string `json:"balance"`
	}
	if err := decodeJSON(resp.Body, &body); err != nil {
		return "", err
	}
	return body.Balance, nil
}

func decodeJSON(r io.Reader, out interface{}) error {
	return json.NewDecoder(r).Decode(out)
}
