/*
recorder.go - Punch ingestion with duplicate protection

PURPOSE:
  Wraps the event store with the punch-specific business rules.
  The critical invariant: a photo receipt cannot be registered twice.

INVARIANT:
  No two photo punches for the same user at the same date and minute
  (and the same normalized name, when both carry one).

  Manual punches skip the check. A user may legitimately re-enter a
  time by hand; the photo path is where accidental re-uploads happen.

CORRECTIONS:
  A stored punch can be corrected once. The first correction keeps the
  pre-edit values in OriginalPayload and marks the punch IsEdited.
  Later corrections are rejected with ErrAlreadyCorrected.

ERROR HANDLING:
  DuplicateEventError names the existing punch. Store failures are
  wrapped with ErrNetworkFailure and never retried here.

SEE ALSO:
  - ledger/duplicate.go: Candidate parsing and matching
  - draft.go: Photo punch lifecycle that ends in RecordPhoto
*/
package tracker

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edufeq03/app-ponto-sub000/ledger"
	"github.com/edufeq03/app-ponto-sub000/metrics"
)

// =============================================================================
// RECORDER - Event store wrapper with ingestion rules
// =============================================================================

// Recorder persists punches for users.
type Recorder struct {
	Store    ledger.EventStore
	Location *time.Location

	// Now and NewID default to time.Now and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

func NewRecorder(store ledger.EventStore, loc *time.Location) *Recorder {
	return &Recorder{
		Store:    store,
		Location: loc,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

// PhotoPunch is a punch read from a receipt photo.
type PhotoPunch struct {
	Candidate     ledger.Candidate
	ImageRef      string
	Justification string
}

// RecordManual stores a punch typed in by the user.
func (r *Recorder) RecordManual(ctx context.Context, userID ledger.UserID, ts time.Time, justification string) (ledger.PunchEvent, error) {
	if ts.IsZero() {
		return ledger.PunchEvent{}, &ledger.InvalidEventError{Reason: "missing timestamp"}
	}
	return r.append(ctx, ledger.PunchEvent{
		UserID:        userID,
		Timestamp:     ts.Truncate(time.Minute),
		Origin:        ledger.OriginManual,
		Justification: strings.TrimSpace(justification),
	})
}

// RecordPhoto stores a punch parsed from a receipt, unless an existing punch
// for the same user already matches it.
func (r *Recorder) RecordPhoto(ctx context.Context, userID ledger.UserID, p PhotoPunch) (ledger.PunchEvent, error) {
	ts, err := p.Candidate.Timestamp(r.Location)
	if err != nil {
		return ledger.PunchEvent{}, err
	}

	if err := r.checkDuplicate(ctx, userID, p.Candidate, ts); err != nil {
		return ledger.PunchEvent{}, err
	}

	return r.append(ctx, ledger.PunchEvent{
		UserID:        userID,
		Timestamp:     ts,
		Origin:        ledger.OriginPhoto,
		Justification: strings.TrimSpace(p.Justification),
		ImageRef:      p.ImageRef,
		ExtractedName: strings.TrimSpace(p.Candidate.Name),
	})
}

// checkDuplicate loads the candidate's calendar day and runs the detector.
func (r *Recorder) checkDuplicate(ctx context.Context, userID ledger.UserID, c ledger.Candidate, ts time.Time) error {
	day := ledger.DateOnly(ts, r.Location)
	existing, err := r.Store.Query(ctx, userID, &ledger.DateRange{
		From: day,
		To:   day.AddDate(0, 0, 1).Add(-time.Nanosecond),
	})
	if err != nil {
		return ledger.WrapGateway("query punches", err)
	}

	if dup, found := ledger.FindDuplicate(c, existing, r.Location); found {
		metrics.DuplicatesRejected.Inc()
		log.Printf("[Recorder] Duplicate photo punch for %s at %s (existing %s)", userID, ts.Format(time.RFC3339), dup.ID)
		return &ledger.DuplicateEventError{UserID: userID, At: ts, ExistingID: dup.ID}
	}
	return nil
}

func (r *Recorder) append(ctx context.Context, e ledger.PunchEvent) (ledger.PunchEvent, error) {
	e.ID = ledger.EventID(r.newID())
	e.CreatedAt = r.now()

	if err := r.Store.Append(ctx, e); err != nil {
		return ledger.PunchEvent{}, ledger.WrapGateway("append punch", err)
	}
	metrics.PunchesRecorded.WithLabelValues(string(e.Origin)).Inc()
	return e, nil
}

// =============================================================================
// CORRECTIONS AND DELETION
// =============================================================================

// Correct moves a punch to ts and records why. Only the first correction is
// accepted; the original values are kept in OriginalPayload.
func (r *Recorder) Correct(ctx context.Context, id ledger.EventID, ts time.Time, justification string) (ledger.PunchEvent, error) {
	justification = strings.TrimSpace(justification)
	if justification == "" {
		return ledger.PunchEvent{}, &ledger.InvalidEventError{EventID: id, Reason: "justification is required"}
	}
	if ts.IsZero() {
		return ledger.PunchEvent{}, &ledger.InvalidEventError{EventID: id, Reason: "missing timestamp"}
	}

	e, err := r.Store.Event(ctx, id)
	if err != nil {
		return ledger.PunchEvent{}, ledger.WrapGateway("load punch", err)
	}
	if e.IsEdited {
		return ledger.PunchEvent{}, ledger.ErrAlreadyCorrected
	}

	e.OriginalPayload = &ledger.OriginalPayload{
		Timestamp:     e.Timestamp,
		Justification: e.Justification,
	}
	e.Timestamp = ts.Truncate(time.Minute)
	e.Justification = justification
	e.IsEdited = true

	if err := r.Store.Update(ctx, e); err != nil {
		return ledger.PunchEvent{}, ledger.WrapGateway("update punch", err)
	}
	metrics.PunchesCorrected.Inc()
	return e, nil
}

func (r *Recorder) Delete(ctx context.Context, id ledger.EventID) error {
	return ledger.WrapGateway("delete punch", r.Store.Delete(ctx, id))
}

// DeleteBatch removes all ids or none.
func (r *Recorder) DeleteBatch(ctx context.Context, ids []ledger.EventID) error {
	if len(ids) == 0 {
		return nil
	}
	return ledger.WrapGateway("batch delete punches", r.Store.BatchDelete(ctx, ids))
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Recorder) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}
