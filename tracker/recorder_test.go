package tracker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edufeq03/app-ponto-sub000/ledger"
	"github.com/edufeq03/app-ponto-sub000/tracker"
)

func newRecorder(m ledger.EventStore) *tracker.Recorder {
	r := tracker.NewRecorder(m, saoPaulo)
	r.NewID = sequentialIDs("p")
	return r
}

func TestRecorder_RecordPhoto_RejectsSecondInsert(t *testing.T) {
	// GIVEN: a candidate {10/05/2024, 08:00, X} already stored
	// WHEN: the same candidate is recorded again for the same user
	// THEN: the second insert is rejected and nothing is written

	ctx := context.Background()
	m := newStore()
	r := newRecorder(m)
	p := tracker.PhotoPunch{Candidate: ledger.Candidate{Date: "10/05/2024", Time: "08:00", Name: "X"}, ImageRef: "img-1"}

	first, err := r.RecordPhoto(ctx, "user-1", p)
	require.NoError(t, err)
	assert.Equal(t, ledger.OriginPhoto, first.Origin)
	assert.True(t, first.Timestamp.Equal(at("2024-05-10 08:00")))
	assert.Equal(t, "X", first.ExtractedName)

	_, err = r.RecordPhoto(ctx, "user-1", p)
	require.ErrorIs(t, err, ledger.ErrDuplicateEvent)
	var dupErr *ledger.DuplicateEventError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, first.ID, dupErr.ExistingID)

	events, _ := m.Query(ctx, "user-1", nil)
	assert.Len(t, events, 1)
}

func TestRecorder_RecordPhoto_OtherUserIsNotDuplicate(t *testing.T) {
	ctx := context.Background()
	r := newRecorder(newStore())
	p := tracker.PhotoPunch{Candidate: ledger.Candidate{Date: "10/05/2024", Time: "08:00", Name: "X"}}

	_, err := r.RecordPhoto(ctx, "user-1", p)
	require.NoError(t, err)
	_, err = r.RecordPhoto(ctx, "user-2", p)
	assert.NoError(t, err)
}

func TestRecorder_RecordPhoto_UnreadableCandidate(t *testing.T) {
	r := newRecorder(newStore())

	_, err := r.RecordPhoto(context.Background(), "user-1", tracker.PhotoPunch{Candidate: ledger.Candidate{Date: "10/05/2024"}})

	assert.ErrorIs(t, err, ledger.ErrInvalidEvent)
}

func TestRecorder_RecordPhoto_StoreFailureIsNetworkFailure(t *testing.T) {
	f := &flakyStore{Memory: newStore()}
	f.setFailures(false, true)
	r := newRecorder(f)

	_, err := r.RecordPhoto(context.Background(), "user-1", tracker.PhotoPunch{Candidate: ledger.Candidate{Date: "10/05/2024", Time: "08:00"}})

	assert.ErrorIs(t, err, ledger.ErrNetworkFailure)
	assert.ErrorIs(t, err, errUnreachable)
}

func TestRecorder_RecordManual(t *testing.T) {
	ctx := context.Background()
	m := newStore()
	r := newRecorder(m)

	e, err := r.RecordManual(ctx, "user-1", at("2024-05-10 08:00").Add(42*time.Second), "forgot badge")
	require.NoError(t, err)

	assert.Equal(t, ledger.EventID("p-1"), e.ID)
	assert.Equal(t, ledger.OriginManual, e.Origin)
	assert.True(t, e.Timestamp.Equal(at("2024-05-10 08:00")), "seconds are dropped")
	assert.Equal(t, "forgot badge", e.Justification)

	_, err = r.RecordManual(ctx, "user-1", time.Time{}, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidEvent)
}

func TestRecorder_StoresWholeMinutes(t *testing.T) {
	// Seconds are dropped before storage so segment lengths are exact.
	ctx := context.Background()
	m := newStore()
	r := newRecorder(m)

	for _, ts := range []time.Time{
		at("2024-05-10 08:00").Add(59 * time.Second),
		at("2024-05-10 12:00"),
		at("2024-05-10 13:05").Add(30 * time.Second),
		at("2024-05-10 17:00"),
	} {
		_, err := r.RecordManual(ctx, "user-1", ts, "")
		require.NoError(t, err)
	}
	e, err := r.RecordManual(ctx, "user-2", at("2024-05-10 08:00"), "")
	require.NoError(t, err)
	corrected, err := r.Correct(ctx, e.ID, at("2024-05-10 08:01").Add(15*time.Second), "wrong clock")
	require.NoError(t, err)
	assert.True(t, corrected.Timestamp.Equal(at("2024-05-10 08:01")))

	events, err := m.Query(ctx, "user-1", nil)
	require.NoError(t, err)
	for _, e := range events {
		assert.Zero(t, e.Timestamp.Second(), e.ID)
	}

	s := ledger.Summarize(events, 480)
	assert.Equal(t, 240+235, s.WorkedMinutes)
	assert.Equal(t, 65, s.BreakMinutes)
	assert.Equal(t, ledger.BreakNormal, s.BreakStatus)
}

func TestRecorder_Correct_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	m := newStore()
	r := newRecorder(m)

	e, err := r.RecordManual(ctx, "user-1", at("2024-05-10 12:00"), "")
	require.NoError(t, err)

	corrected, err := r.Correct(ctx, e.ID, at("2024-05-10 12:10"), "wrong clock")
	require.NoError(t, err)
	assert.True(t, corrected.IsEdited)
	assert.Equal(t, "wrong clock", corrected.Justification)
	require.NotNil(t, corrected.OriginalPayload)
	assert.True(t, corrected.OriginalPayload.Timestamp.Equal(at("2024-05-10 12:00")))

	stored, err := m.Event(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, stored.Timestamp.Equal(at("2024-05-10 12:10")))

	_, err = r.Correct(ctx, e.ID, at("2024-05-10 12:20"), "again")
	assert.ErrorIs(t, err, ledger.ErrAlreadyCorrected)

	_, err = r.Correct(ctx, e.ID, at("2024-05-10 12:20"), "  ")
	assert.ErrorIs(t, err, ledger.ErrInvalidEvent)

	_, err = r.Correct(ctx, "missing", at("2024-05-10 12:20"), "x")
	assert.ErrorIs(t, err, ledger.ErrEventNotFound)
	assert.NotErrorIs(t, err, ledger.ErrNetworkFailure)
}

func TestRecorder_DeleteBatch(t *testing.T) {
	ctx := context.Background()
	m := newStore()
	r := newRecorder(m)

	a, _ := r.RecordManual(ctx, "user-1", at("2024-05-10 08:00"), "")
	b, _ := r.RecordManual(ctx, "user-1", at("2024-05-10 12:00"), "")
	c, _ := r.RecordManual(ctx, "user-1", at("2024-05-10 13:00"), "")

	require.NoError(t, r.DeleteBatch(ctx, nil))
	require.NoError(t, r.DeleteBatch(ctx, []ledger.EventID{a.ID, b.ID}))
	require.NoError(t, r.Delete(ctx, c.ID))
	assert.ErrorIs(t, r.Delete(ctx, c.ID), ledger.ErrEventNotFound)

	events, _ := m.Query(ctx, "user-1", nil)
	assert.Empty(t, events)
}
