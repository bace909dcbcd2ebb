package uploader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataItemIdentifierIsStableAndComputableBeforeSend(t *testing.T) {
	item := DataItem{Payload: []byte("hello"), Tags: []Tag{{Name: "Url", Value: "https://example.com/"}}}
	id1 := item.Identifier()
	id2 := item.Identifier()
	assert.Equal(t, id1, id2)
	assert.NotEmpty(t, id1)
}

func TestUploadOneTakesSmallPathUnderThreshold(t *testing.T) {
	var hitSmall bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tx/arweave" {
			hitSmall = true
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	u := New(srv.URL, "atw-worker", "1.0.0")
	id, err := u.uploadOne(context.Background(), []byte("small payload"), []Tag{{Name: "Url", Value: "https://example.com/"}})
	require.NoError(t, err)
	assert.True(t, hitSmall)
	assert.NotEmpty(t, id)
}

func TestUploadOneTakesChunkedPathAtThreshold(t *testing.T) {
	tags := []Tag{{Name: "Url", Value: "https://example.com/"}}
	// Size the payload so the serialized data item, tag envelope included,
	// is exactly chunkingThreshold bytes: 50 chunks of 1,000,000.
	envelope := len(DataItem{Tags: tags}.Serialize())
	payload := make([]byte, chunkingThreshold-envelope)

	var initHit, finalizeHit bool
	var chunkCount int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/chunks/arweave/-1/-1":
			initHit = true
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":"sess-1","min":1000000,"max":10000000}`)
		case r.URL.Path == "/chunks/arweave/sess-1/-1":
			finalizeHit = true
			w.WriteHeader(http.StatusOK)
		default:
			atomic.AddInt32(&chunkCount, 1)
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	u := New(srv.URL, "atw-worker", "1.0.0")
	id, err := u.uploadOne(context.Background(), payload, tags)
	require.NoError(t, err)
	assert.True(t, initHit)
	assert.True(t, finalizeHit)
	assert.Equal(t, int32(50), chunkCount)
	assert.NotEmpty(t, id)
}

func TestUploadChunkedFailsWhenPayloadSmallerThanMin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"sess-1","min":100,"max":1000}`)
	}))
	defer srv.Close()

	u := New(srv.URL, "atw-worker", "1.0.0")
	err := u.uploadChunked(context.Background(), []byte("too short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of allowed range")
}

func TestUploadChunkedRetriesFlakyChunkThenSucceeds(t *testing.T) {
	payload := make([]byte, 30)

	var attemptsForOffset0 int32
	var mu sync.Mutex
	seenOffsets := map[int]bool{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/chunks/arweave/-1/-1":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":"sess-1","min":10,"max":100}`)
		case r.URL.Path == "/chunks/arweave/sess-1/-1":
			w.WriteHeader(http.StatusOK)
		default:
			var offset int
			fmt.Sscanf(r.URL.Path, "/chunks/arweave/sess-1/%d", &offset)
			mu.Lock()
			seenOffsets[offset] = true
			mu.Unlock()

			if offset == 0 {
				n := atomic.AddInt32(&attemptsForOffset0, 1)
				if n < 3 {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
			}
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	u := New(srv.URL, "atw-worker", "1.0.0")
	err := u.uploadChunked(context.Background(), payload)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&attemptsForOffset0)), 3)
	assert.Len(t, seenOffsets, 3)
}

func TestChunkOffsetsCoverPayloadExactlyOnce(t *testing.T) {
	offsets := chunkOffsets(25, 10)
	require.Len(t, offsets, 3)
	assert.Equal(t, chunkOffset{offset: 0, start: 0, end: 10}, offsets[0])
	assert.Equal(t, chunkOffset{offset: 10, start: 10, end: 20}, offsets[1])
	assert.Equal(t, chunkOffset{offset: 20, start: 20, end: 25}, offsets[2])
}

func TestRetryChunkGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int
	err := retryChunk(3, func() error {
		calls++
		return fmt.Errorf("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestBalanceDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"balance":"12345"}`)
	}))
	defer srv.Close()

	u := New(srv.URL, "atw-worker", "1.0.0")
	balance, err := u.Balance(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "12345", balance)
}
