package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivetheweb/atwworker/internal/pkg/models"
)

type fakeLedger struct {
	uploaders map[string]models.UploaderMeta
	err       error
}

func (f *fakeLedger) ArchivingRequestsFor(ctx context.Context, identity string) ([]models.ArchiveAssignment, error) {
	return nil, nil
}

func (f *fakeLedger) Uploaders(ctx context.Context) (map[string]models.UploaderMeta, error) {
	return f.uploaders, f.err
}

func (f *fakeLedger) DeleteArchiveRequest(ctx context.Context, id string) error { return nil }

func (f *fakeLedger) SubmitArchive(ctx context.Context, sub models.ArchiveSubmission) error {
	return nil
}

type fakeBalanceChecker struct {
	balance string
	err     error
}

func (f *fakeBalanceChecker) Balance(ctx context.Context, address string) (string, error) {
	return f.balance, f.err
}

func TestEnsureFundedAcceptsNonZeroBalance(t *testing.T) {
	b := &fakeBalanceChecker{balance: "42"}
	require.NoError(t, ensureFunded(context.Background(), "0xabc", b))
}

func TestEnsureFundedRejectsZeroBalance(t *testing.T) {
	b := &fakeBalanceChecker{balance: "0"}
	err := ensureFunded(context.Background(), "0xabc", b)
	assert.Error(t, err)
}

func TestEnsureFundedPropagatesTransportError(t *testing.T) {
	b := &fakeBalanceChecker{err: assert.AnError}
	err := ensureFunded(context.Background(), "0xabc", b)
	assert.Error(t, err)
}

func TestEnsureRegisteredAcceptsKnownIdentity(t *testing.T) {
	l := &fakeLedger{uploaders: map[string]models.UploaderMeta{
		"0xabc": {Address: "0xabc", RegisteredAt: time.Now()},
	}}
	require.NoError(t, ensureRegistered("0xabc", l))
}

func TestEnsureRegisteredRejectsUnknownIdentity(t *testing.T) {
	l := &fakeLedger{uploaders: map[string]models.UploaderMeta{
		"0xabc": {Address: "0xabc"},
	}}
	err := ensureRegistered("0xdef", l)
	assert.Error(t, err)
}

func TestEnsureRegisteredPropagatesTransportError(t *testing.T) {
	l := &fakeLedger{err: assert.AnError}
	err := ensureRegistered("0xabc", l)
	assert.Error(t, err)
}
