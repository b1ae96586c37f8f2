package signature

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalautobrokers/dealerdocs/internal/db"
)

type fakeBlobs struct {
	uploaded map[string][]byte
	deleted  []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{uploaded: make(map[string][]byte)}
}

func (b *fakeBlobs) Upload(_ context.Context, key string, data []byte, _ string) error {
	b.uploaded[key] = data
	return nil
}

func (b *fakeBlobs) Delete(_ context.Context, key string) error {
	delete(b.uploaded, key)
	b.deleted = append(b.deleted, key)
	return nil
}

func signatureImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 600, 200))
	for x := 0; x < 600; x++ {
		img.Set(x, 100, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testService(t *testing.T, blobs Blobs) *Service {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	gdb, err := db.OpenMemory()
	require.NoError(t, err)

	svc, err := NewService(gdb, blobs, 24*time.Hour, log)
	require.NoError(t, err)
	return svc
}

func createReq(role Role) CreateRequest {
	return CreateRequest{
		DealID:      "deal-1",
		DocumentID:  "doc-1",
		SignerRole:  role,
		SignerName:  "John Smith",
		SignerEmail: "john@example.com",
		TTL:         15 * time.Minute,
	}
}

func TestService_CreateAndSubmit(t *testing.T) {
	blobs := newFakeBlobs()
	svc := testService(t, blobs)
	ctx := context.Background()

	session, err := svc.Create(ctx, createReq(RoleBuyer))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, session.Status)
	assert.True(t, session.ExpiresAt.After(session.CreatedAt))

	sig, err := svc.Submit(ctx, SubmitRequest{
		Token:     session.Token,
		Consent:   true,
		Image:     signatureImage(t),
		IPAddress: "203.0.113.7",
		UserAgent: "tablet-kiosk/2.1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sig.StorageKey)
	assert.Contains(t, blobs.uploaded, sig.StorageKey)
	assert.NotEmpty(t, sig.DisplayKey, "a display copy is rendered for valid images")
	assert.Contains(t, blobs.uploaded, sig.DisplayKey)
	assert.True(t, sig.ScheduledDeletionAt.After(sig.CreatedAt))

	signed, err := svc.Get(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, StatusSigned, signed.Status)
	assert.True(t, signed.ConsentGiven)
	require.NotNil(t, signed.SignedAt)
	require.NotNil(t, signed.ConsentTimestamp)
	assert.Equal(t, "203.0.113.7", signed.IPAddress)
}

func TestService_SubmitWithoutConsent(t *testing.T) {
	svc := testService(t, newFakeBlobs())
	ctx := context.Background()

	session, err := svc.Create(ctx, createReq(RoleBuyer))
	require.NoError(t, err)

	_, err = svc.Submit(ctx, SubmitRequest{Token: session.Token, Consent: false, Image: signatureImage(t)})
	var consentErr *ConsentMissingError
	require.ErrorAs(t, err, &consentErr)

	// The session stays pending and can still be completed.
	current, err := svc.Get(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, current.Status)
}

func TestService_ExpiryIsAStateCheck(t *testing.T) {
	svc := testService(t, newFakeBlobs())
	ctx := context.Background()

	base := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	session, err := svc.Create(ctx, createReq(RoleBuyer))
	require.NoError(t, err)
	assert.Equal(t, base.Add(15*time.Minute), session.ExpiresAt)

	// Sixteen minutes later the pending session reads as expired.
	svc.now = func() time.Time { return base.Add(16 * time.Minute) }

	current, err := svc.Get(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, current.Status)

	_, err = svc.Submit(ctx, SubmitRequest{Token: session.Token, Consent: true, Image: signatureImage(t)})
	var expiredErr *SessionExpiredError
	require.ErrorAs(t, err, &expiredErr)
	assert.Equal(t, session.Token, expiredErr.Token)
}

func TestService_TerminalStatesRejectFurtherTransitions(t *testing.T) {
	svc := testService(t, newFakeBlobs())
	ctx := context.Background()

	session, err := svc.Create(ctx, createReq(RoleBuyer))
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, session.Token)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, SubmitRequest{Token: session.Token, Consent: true, Image: signatureImage(t)})
	assert.ErrorIs(t, err, ErrTerminal)

	_, err = svc.Cancel(ctx, session.Token)
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestService_UnknownRoleAndToken(t *testing.T) {
	svc := testService(t, newFakeBlobs())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{SignerRole: Role("witness"), TTL: time.Hour})
	assert.Error(t, err)

	_, err = svc.Get(ctx, "no-such-token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_AllCollected(t *testing.T) {
	svc := testService(t, newFakeBlobs())
	ctx := context.Background()
	required := []Role{RoleBuyer, RoleSeller}

	buyer, err := svc.Create(ctx, createReq(RoleBuyer))
	require.NoError(t, err)
	seller, err := svc.Create(ctx, createReq(RoleSeller))
	require.NoError(t, err)

	collected, err := svc.AllCollected(ctx, "doc-1", required)
	require.NoError(t, err)
	assert.False(t, collected)

	_, err = svc.Submit(ctx, SubmitRequest{Token: buyer.Token, Consent: true, Image: signatureImage(t)})
	require.NoError(t, err)

	collected, err = svc.AllCollected(ctx, "doc-1", required)
	require.NoError(t, err)
	assert.False(t, collected, "one of two required roles signed")

	_, err = svc.Submit(ctx, SubmitRequest{Token: seller.Token, Consent: true, Image: signatureImage(t)})
	require.NoError(t, err)

	collected, err = svc.AllCollected(ctx, "doc-1", required)
	require.NoError(t, err)
	assert.True(t, collected)
}

func TestService_AllCollectedRecomputedAfterRecreation(t *testing.T) {
	svc := testService(t, newFakeBlobs())
	ctx := context.Background()

	base := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	expiring, err := svc.Create(ctx, createReq(RoleBuyer))
	require.NoError(t, err)

	// The first session expires unsigned; a fresh one replaces it.
	svc.now = func() time.Time { return base.Add(time.Hour) }
	_, err = svc.Get(ctx, expiring.Token)
	require.NoError(t, err)

	replacement, err := svc.Create(ctx, createReq(RoleBuyer))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, SubmitRequest{Token: replacement.Token, Consent: true, Image: signatureImage(t)})
	require.NoError(t, err)

	collected, err := svc.AllCollected(ctx, "doc-1", []Role{RoleBuyer})
	require.NoError(t, err)
	assert.True(t, collected)
}
