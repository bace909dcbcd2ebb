package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"
)

const (
	maxConcurrentChunks = 10
	chunkMaxAttempts    = 6
	chunkAttemptTimeout = 20 * time.Second
	finalizeTimeout     = 40 * time.Second
)

type chunkSession struct {
	ID  string `json:"id"`
	Min int    `json:"min"`
	Max int    `json:"max"`
}

// uploadChunked runs the init/stream-chunks/finalize protocol described
// in §4.4 step 4.
func (u *Uploader) uploadChunked(ctx context.Context, serialized []byte) error {
	session, err := u.initChunkSession(ctx)
	if err != nil {
		return fmt.Errorf("chunked upload: init: %w", err)
	}

	if len(serialized) < session.Min {
		return fmt.Errorf("chunked upload: chunk size out of allowed range (size=%d, min=%d)", len(serialized), session.Min)
	}

	offsets := chunkOffsets(len(serialized), session.Min)

	if err := u.uploadChunksConcurrently(ctx, session.ID, serialized, offsets); err != nil {
		return fmt.Errorf("chunked upload: %w", err)
	}

	if err := u.finalizeChunkSession(ctx, session.ID); err != nil {
		return fmt.Errorf("chunked upload: finalize: %w", err)
	}

	return nil
}

func (u *Uploader) initChunkSession(ctx context.Context) (chunkSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+"/chunks/arweave/-1/-1", nil)
	if err != nil {
		return chunkSession{}, err
	}
	req.Header.Set("x-chunking-version", "2")

	resp, err := u.client.Do(req)
	if err != nil {
		return chunkSession{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return chunkSession{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var session chunkSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return chunkSession{}, err
	}
	return session, nil
}

// chunkOffset pairs a byte offset with the chunk's exclusive-of-the-
// offset slice bounds.
type chunkOffset struct {
	offset int
	start  int
	end    int
}

// chunkOffsets splits [0, size) into consecutive chunkSize-byte pieces
// keyed by byte offset, the last piece possibly shorter — covering
// [0, size) exactly once, with no gaps or overlap.
func chunkOffsets(size, chunkSize int) []chunkOffset {
	var offsets []chunkOffset
	for start := 0; start < size; start += chunkSize {
		end := start + chunkSize
		if end > size {
			end = size
		}
		offsets = append(offsets, chunkOffset{offset: start, start: start, end: end})
	}
	return offsets
}

func (u *Uploader) uploadChunksConcurrently(ctx context.Context, sessionID string, serialized []byte, offsets []chunkOffset) error {
	swg := sizedwaitgroup.New(maxConcurrentChunks)

	var (
		mu      sync.Mutex
		firstFn error
	)

	for _, o := range offsets {
		swg.Add()
		go func(o chunkOffset) {
			defer swg.Done()

			err := retryChunk(chunkMaxAttempts, func() error {
				return u.postChunk(ctx, sessionID, o.offset, serialized[o.start:o.end])
			})

			if err != nil {
				mu.Lock()
				if firstFn == nil {
					firstFn = err
				}
				mu.Unlock()
			}
		}(o)
	}

	swg.Wait()
	return firstFn
}

func (u *Uploader) postChunk(ctx context.Context, sessionID string, offset int, data []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, chunkAttemptTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/chunks/arweave/%s/%d", u.baseURL, sessionID, offset)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("x-chunking-version", "2")

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chunk at offset %d: status %d", offset, resp.StatusCode)
	}
	return nil
}

func (u *Uploader) finalizeChunkSession(ctx context.Context, sessionID string) error {
	finalizeCtx, cancel := context.WithTimeout(ctx, finalizeTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/chunks/arweave/%s/-1", u.baseURL, sessionID)
	req, err := http.NewRequestWithContext(finalizeCtx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-chunking-version", "2")

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
