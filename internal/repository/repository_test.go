package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/clientdesk/internal/database"
	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/model"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("CLIENTDESK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CLIENTDESK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.EnsureSchema(ctx, pool))
	return New(pool)
}

func TestRepositoryDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	docs := lifecycle.NewDocumentService(repo, nil, lifecycle.Options{})
	client := "client-" + uuid.NewString()

	req, err := docs.CreateRequest(ctx, lifecycle.NewRequest{
		ConsultantID: "consultant-1",
		ClientID:     client,
		Document:     model.DocumentSpec{Name: "Passport", Category: model.CategoryIdentity},
	})
	require.NoError(t, err)

	rec, err := docs.AttachUpload(ctx, req.ID, lifecycle.StoredFile{Path: client + "/a/passport.pdf", Name: "passport.pdf", SizeBytes: 10})
	require.NoError(t, err)

	// Stale guard: the request already left requested.
	stale := req
	stale.Status = model.RequestUploaded
	err = repo.AttachRecord(ctx, model.DocumentRecord{ID: uuid.NewString(), ClientID: client, Category: model.CategoryIdentity, FileRef: "x", UploadedAt: time.Now()}, stale, model.RequestRequested)
	require.ErrorIs(t, err, lifecycle.ErrConflict)

	reviewed, err := docs.Review(ctx, rec.ID, lifecycle.Review{Outcome: model.OutcomeApproved, ReviewerID: "consultant-1"})
	require.NoError(t, err)
	assert.Equal(t, model.DocumentApproved, reviewed.Status)

	got, err := docs.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestApproved, got.Status)
	assert.Equal(t, rec.ID, got.RecordID)

	records, err := docs.ListRecords(ctx, client)
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = repo.GetRecord(ctx, "missing")
	require.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestRepositoryMailboxGuards(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	mailbox := lifecycle.NewMailboxService(repo, nil, nil, lifecycle.Options{})
	client := "client-" + uuid.NewString()

	item, err := mailbox.Create(ctx, lifecycle.NewMailboxItem{
		ConsultantID: "consultant-1", ClientID: client, DocumentName: "Lease", ShippingFeeCents: 1200,
	})
	require.NoError(t, err)
	_, err = mailbox.ConfirmPayment(ctx, item.ID, lifecycle.PaymentConfirmation{PaymentRef: "pi_1"})
	require.NoError(t, err)

	err = repo.UpdateMailboxItem(ctx, item, model.MailboxPending, model.PaymentUnpaid)
	require.ErrorIs(t, err, lifecycle.ErrConflict)

	sent, err := mailbox.ConfirmShipment(ctx, item.ID, "1 Main St")
	require.NoError(t, err)
	got, err := mailbox.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, sent.TrackingNumber, got.TrackingNumber)
	require.NotNil(t, got.PaidAt)
}

func TestRepositoryNotifications(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	recipient := "r-" + uuid.NewString()
	n := model.Notification{
		ID: uuid.NewString(), Event: model.EventDocumentRequested, RecipientID: recipient,
		Severity: model.SeverityNormal, Payload: map[string]string{"requestId": "x"}, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.SaveNotification(ctx, n))
	require.NoError(t, repo.SaveNotification(ctx, n))

	got, err := repo.ListNotifications(ctx, recipient)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Payload["requestId"])
}
