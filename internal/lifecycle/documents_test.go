package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/model"
	"github.com/dharsanguruparan/clientdesk/internal/storage"
)

func newDocs(t *testing.T) (*lifecycle.DocumentService, *faultyStore, *captureNotifier) {
	t.Helper()
	store := &faultyStore{MemoryStore: storage.NewMemoryStore()}
	notifier := &captureNotifier{}
	return lifecycle.NewDocumentService(store, notifier, testOptions()), store, notifier
}

func createRequest(t *testing.T, svc *lifecycle.DocumentService) model.DocumentRequest {
	t.Helper()
	req, err := svc.CreateRequest(context.Background(), lifecycle.NewRequest{
		ConsultantID: "consultant-1",
		ClientID:     "client-1",
		Document:     passport(),
		Priority:     model.PriorityHigh,
	})
	require.NoError(t, err)
	return req
}

func TestCreateRequestNotifiesClient(t *testing.T) {
	svc, _, notifier := newDocs(t)
	due := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	req, err := svc.CreateRequest(context.Background(), lifecycle.NewRequest{
		ConsultantID: "consultant-1",
		ClientID:     "client-1",
		Document:     passport(),
		DueDate:      &due,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RequestRequested, req.Status)
	assert.Equal(t, model.PriorityMedium, req.Priority)
	assert.Empty(t, req.RecordID)
	assert.Equal(t, fixedNow, req.CreatedAt)

	n := notifier.last()
	assert.Equal(t, model.EventDocumentRequested, n.Event)
	assert.Equal(t, "client-1", n.RecipientID)
	assert.Equal(t, req.ID, n.Payload["requestId"])
	assert.Equal(t, "2024-07-01T00:00:00Z", n.Payload["dueDate"])
}

func TestCreateRequestRejectsBadInput(t *testing.T) {
	svc, _, notifier := newDocs(t)
	cases := map[string]lifecycle.NewRequest{
		"missing client":   {ConsultantID: "c", Document: passport()},
		"missing name":     {ConsultantID: "c", ClientID: "k", Document: model.DocumentSpec{Category: model.CategoryOther}},
		"unknown category": {ConsultantID: "c", ClientID: "k", Document: model.DocumentSpec{Name: "x", Category: "secret"}},
		"unknown priority": {ConsultantID: "c", ClientID: "k", Document: passport(), Priority: "whenever"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateRequest(context.Background(), in)
			require.ErrorIs(t, err, lifecycle.ErrInvalidInput)
		})
	}
	assert.Empty(t, notifier.all())
}

func TestAttachUploadLinksRecordAndRequest(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier := newDocs(t)
	req := createRequest(t, svc)

	rec, err := svc.AttachUpload(ctx, req.ID, storedPDF())
	require.NoError(t, err)
	assert.Equal(t, model.DocumentPending, rec.Status)
	assert.Equal(t, req.ID, rec.RequestID)
	assert.Equal(t, "Passport", rec.Name)
	assert.Equal(t, "passport.pdf", rec.FileName)
	assert.Equal(t, storedPDF().Path, rec.FileRef)

	got, err := svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestUploaded, got.Status)
	assert.Equal(t, rec.ID, got.RecordID)

	n := notifier.last()
	assert.Equal(t, model.EventDocumentUploaded, n.Event)
	assert.Equal(t, "consultant-1", n.RecipientID)
	assert.Equal(t, rec.ID, n.Payload["recordId"])
}

func TestAttachUploadRequiresRequestedState(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newDocs(t)
	req := createRequest(t, svc)
	_, err := svc.AttachUpload(ctx, req.ID, storedPDF())
	require.NoError(t, err)

	_, err = svc.AttachUpload(ctx, req.ID, storedPDF())
	var terr *lifecycle.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, string(model.RequestUploaded), terr.From)

	_, err = svc.AttachUpload(ctx, "missing", storedPDF())
	require.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestAttachUploadFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	svc, store, notifier := newDocs(t)
	req := createRequest(t, svc)
	before := len(notifier.all())
	store.failAttach = true

	_, err := svc.AttachUpload(ctx, req.ID, storedPDF())
	var perr *lifecycle.PersistenceError
	require.ErrorAs(t, err, &perr)
	require.ErrorIs(t, err, errStoreDown)

	got, err := svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestRequested, got.Status)
	assert.Empty(t, got.RecordID)
	records, err := svc.ListRecords(ctx, "client-1")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Len(t, notifier.all(), before)
}

func TestPersistTimeoutBoundsStoreCalls(t *testing.T) {
	store := &faultyStore{MemoryStore: storage.NewMemoryStore()}
	opts := testOptions()
	opts.PersistTimeout = 20 * time.Millisecond
	svc := lifecycle.NewDocumentService(store, nil, opts)
	req := createRequest(t, svc)
	store.block = true

	_, err := svc.AttachUpload(context.Background(), req.ID, storedPDF())
	var perr *lifecycle.PersistenceError
	require.ErrorAs(t, err, &perr)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReviewOutcomes(t *testing.T) {
	cases := []struct {
		outcome  model.ReviewOutcome
		record   model.DocumentStatus
		request  model.RequestStatus
		event    model.EventType
		severity model.Severity
	}{
		{model.OutcomeApproved, model.DocumentApproved, model.RequestApproved, model.EventDocumentApproved, model.SeverityNormal},
		{model.OutcomeRejected, model.DocumentRejected, model.RequestRejected, model.EventDocumentRejected, model.SeverityHigh},
		{model.OutcomeNeedsRevision, model.DocumentNeedsRevision, model.RequestNeedsRevision, model.EventDocumentNeedsRevision, model.SeverityNormal},
	}
	for _, tc := range cases {
		t.Run(string(tc.outcome), func(t *testing.T) {
			ctx := context.Background()
			svc, _, notifier := newDocs(t)
			req := createRequest(t, svc)
			rec, err := svc.AttachUpload(ctx, req.ID, storedPDF())
			require.NoError(t, err)

			reviewed, err := svc.Review(ctx, rec.ID, lifecycle.Review{Outcome: tc.outcome, ReviewerID: "consultant-1", Notes: "checked"})
			require.NoError(t, err)
			assert.Equal(t, tc.record, reviewed.Status)
			assert.Equal(t, "consultant-1", reviewed.ReviewedBy)
			require.NotNil(t, reviewed.ReviewedAt)
			assert.Equal(t, fixedNow, *reviewed.ReviewedAt)

			got, err := svc.GetRequest(ctx, req.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.request, got.Status)

			n := notifier.last()
			assert.Equal(t, tc.event, n.Event)
			assert.Equal(t, tc.severity, n.Severity)
			assert.Equal(t, "client-1", n.RecipientID)
			assert.Equal(t, "checked", n.Payload["notes"])
		})
	}
}

func TestReviewApprovedIsTerminal(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newDocs(t)
	req := createRequest(t, svc)
	rec, err := svc.AttachUpload(ctx, req.ID, storedPDF())
	require.NoError(t, err)
	_, err = svc.Review(ctx, rec.ID, lifecycle.Review{Outcome: model.OutcomeApproved, ReviewerID: "c"})
	require.NoError(t, err)

	_, err = svc.Review(ctx, rec.ID, lifecycle.Review{Outcome: model.OutcomeRejected, ReviewerID: "c"})
	var terr *lifecycle.TransitionError
	require.ErrorAs(t, err, &terr)

	got, err := svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentApproved, got.Status)
}

func TestReviewRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newDocs(t)
	_, err := svc.Review(ctx, "rec", lifecycle.Review{Outcome: "maybe", ReviewerID: "c"})
	require.ErrorIs(t, err, lifecycle.ErrInvalidInput)
	_, err = svc.Review(ctx, "rec", lifecycle.Review{Outcome: model.OutcomeApproved})
	require.ErrorIs(t, err, lifecycle.ErrInvalidInput)
	_, err = svc.Review(ctx, "rec", lifecycle.Review{Outcome: model.OutcomeApproved, ReviewerID: "c"})
	require.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestReviewFailureKeepsBothEntities(t *testing.T) {
	ctx := context.Background()
	svc, store, notifier := newDocs(t)
	req := createRequest(t, svc)
	rec, err := svc.AttachUpload(ctx, req.ID, storedPDF())
	require.NoError(t, err)
	before := len(notifier.all())
	store.failReview = true

	_, err = svc.Review(ctx, rec.ID, lifecycle.Review{Outcome: model.OutcomeApproved, ReviewerID: "c"})
	require.Error(t, err)

	gotRec, err := svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentPending, gotRec.Status)
	assert.Nil(t, gotRec.ReviewedAt)
	gotReq, err := svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestUploaded, gotReq.Status)
	assert.Len(t, notifier.all(), before)
}

func TestResubmitRelinksRequest(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newDocs(t)
	req := createRequest(t, svc)
	first, err := svc.AttachUpload(ctx, req.ID, storedPDF())
	require.NoError(t, err)

	_, err = svc.Resubmit(ctx, req.ID, storedPDF())
	require.Error(t, err, "resubmit is only valid after a negative review")

	_, err = svc.Review(ctx, first.ID, lifecycle.Review{Outcome: model.OutcomeNeedsRevision, ReviewerID: "c"})
	require.NoError(t, err)

	second, err := svc.Resubmit(ctx, req.ID, storedPDF())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	got, err := svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestUploaded, got.Status)
	assert.Equal(t, second.ID, got.RecordID)

	// Reviewing the superseded record leaves the request alone.
	_, err = svc.Review(ctx, first.ID, lifecycle.Review{Outcome: model.OutcomeRejected, ReviewerID: "c"})
	require.NoError(t, err)
	got, err = svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestUploaded, got.Status)

	_, err = svc.Review(ctx, second.ID, lifecycle.Review{Outcome: model.OutcomeApproved, ReviewerID: "c"})
	require.NoError(t, err)
	got, err = svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestApproved, got.Status)

	records, err := svc.ListRecords(ctx, "client-1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSubmitUnrequested(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier := newDocs(t)

	rec, err := svc.SubmitUnrequested(ctx, lifecycle.NewSubmission{
		ClientID:     "client-1",
		ConsultantID: "consultant-1",
		Document:     model.DocumentSpec{Name: "Tax return 2023", Category: model.CategoryFinancial},
	}, storedPDF())
	require.NoError(t, err)
	assert.Empty(t, rec.RequestID)
	assert.Equal(t, model.DocumentPending, rec.Status)
	assert.Equal(t, "consultant-1", notifier.last().RecipientID)

	reviewed, err := svc.Review(ctx, rec.ID, lifecycle.Review{Outcome: model.OutcomeApproved, ReviewerID: "consultant-1"})
	require.NoError(t, err)
	assert.Equal(t, model.DocumentApproved, reviewed.Status)
}

func TestNotifierFailureDoesNotFailTransition(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	notifier := &captureNotifier{err: errors.New("smtp down")}
	recorder := newCountingRecorder()
	opts := testOptions()
	opts.Recorder = recorder
	svc := lifecycle.NewDocumentService(store, notifier, opts)

	req := createRequest(t, svc)
	_, err := svc.AttachUpload(ctx, req.ID, storedPDF())
	require.NoError(t, err)

	got, err := svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestUploaded, got.Status)
	assert.Equal(t, 2, recorder.notifications["failed"])
	assert.Equal(t, 1, recorder.transitions["document request:uploaded"])
}

func TestRecordInspection(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newDocs(t)
	req := createRequest(t, svc)
	rec, err := svc.AttachUpload(ctx, req.ID, storedPDF())
	require.NoError(t, err)

	require.NoError(t, svc.RecordInspection(ctx, rec.ID, 3, "client-1/preview.jpg"))
	got, err := svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.PageCount)
	assert.Equal(t, "client-1/preview.jpg", got.PreviewRef)

	require.ErrorIs(t, svc.RecordInspection(ctx, "missing", 1, ""), lifecycle.ErrNotFound)
}
