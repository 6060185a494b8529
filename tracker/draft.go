package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/edufeq03/app-ponto-sub000/ledger"
)

// =============================================================================
// DRAFT - Photo punch lifecycle before persistence
// =============================================================================
//
//	Captured ──Validate──▶ Validated ──CheckIdentity──▶ checked ──Persist──▶ Persisted
//	                                          │
//	                                      (mismatch)
//	                                          ▼
//	                                    needs reason ──Justify──▶ Justified ──Persist──▶ Persisted
//
//	Persist is rejected until CheckIdentity has run on the validated fields.
//
//	Any non-terminal state ──Discard──▶ Discarded

type DraftState string

const (
	DraftCaptured  DraftState = "captured"
	DraftValidated DraftState = "validated"
	DraftJustified DraftState = "justified"
	DraftPersisted DraftState = "persisted"
	DraftDiscarded DraftState = "discarded"
)

// Terminal reports whether no further transition is possible.
func (s DraftState) Terminal() bool {
	return s == DraftPersisted || s == DraftDiscarded
}

// PhotoRecorder persists a confirmed photo punch.
type PhotoRecorder interface {
	RecordPhoto(ctx context.Context, userID ledger.UserID, p PhotoPunch) (ledger.PunchEvent, error)
}

// Draft holds a punch read from a receipt until the user confirms it.
// A Draft is not safe for concurrent use.
type Draft struct {
	UserID    ledger.UserID
	Candidate ledger.Candidate
	ImageRef  string

	state           DraftState
	identityChecked bool
	needsReason     bool
	justification string
	event         ledger.PunchEvent
}

// NewDraft starts a draft in the Captured state with the raw extracted fields.
func NewDraft(userID ledger.UserID, raw ledger.Candidate, imageRef string) *Draft {
	return &Draft{
		UserID:    userID,
		Candidate: raw,
		ImageRef:  imageRef,
		state:     DraftCaptured,
	}
}

func (d *Draft) State() DraftState { return d.state }

// NeedsJustification reports whether the identity check found a mismatch.
func (d *Draft) NeedsJustification() bool { return d.needsReason }

// Event returns the stored punch once the draft is Persisted.
func (d *Draft) Event() (ledger.PunchEvent, bool) {
	return d.event, d.state == DraftPersisted
}

// Validate records the user-confirmed date (dd/MM/yyyy) and time (HH:mm).
func (d *Draft) Validate(date, clock string) error {
	if d.state != DraftCaptured && d.state != DraftValidated {
		return d.invalid(DraftValidated)
	}
	c := ledger.Candidate{
		Date: strings.TrimSpace(date),
		Time: strings.TrimSpace(clock),
		Name: d.Candidate.Name,
	}
	if _, err := c.Timestamp(time.UTC); err != nil {
		return err
	}
	d.Candidate = c
	d.state = DraftValidated
	d.identityChecked = false
	d.needsReason = false
	return nil
}

// CheckIdentity compares the extracted name with the profile name. On a
// mismatch the draft cannot be persisted until Justify is called.
func (d *Draft) CheckIdentity(profileName string) (mismatch bool, err error) {
	if d.state != DraftValidated {
		return false, d.invalid(DraftValidated)
	}
	extracted := ledger.NormalizeName(d.Candidate.Name)
	profile := ledger.NormalizeName(profileName)
	d.needsReason = extracted != "" && profile != "" && extracted != profile
	d.identityChecked = true
	return d.needsReason, nil
}

// Justify attaches the free-text reason required after an identity mismatch.
func (d *Draft) Justify(reason string) error {
	if d.state != DraftValidated || !d.needsReason {
		return d.invalid(DraftJustified)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return &ledger.InvalidEventError{Reason: "justification is required"}
	}
	d.justification = reason
	d.state = DraftJustified
	return nil
}

// Persist hands the draft to the recorder. A duplicate leaves the draft in
// its current state so the user can discard it.
func (d *Draft) Persist(ctx context.Context, r PhotoRecorder) (ledger.PunchEvent, error) {
	switch {
	case d.state == DraftJustified:
	case d.state == DraftValidated && d.identityChecked && !d.needsReason:
	default:
		return ledger.PunchEvent{}, d.invalid(DraftPersisted)
	}

	e, err := r.RecordPhoto(ctx, d.UserID, PhotoPunch{
		Candidate:     d.Candidate,
		ImageRef:      d.ImageRef,
		Justification: d.justification,
	})
	if err != nil {
		return ledger.PunchEvent{}, err
	}
	d.event = e
	d.state = DraftPersisted
	return e, nil
}

// Discard cancels the draft before persistence.
func (d *Draft) Discard() error {
	if d.state.Terminal() {
		return d.invalid(DraftDiscarded)
	}
	d.state = DraftDiscarded
	return nil
}

func (d *Draft) invalid(to DraftState) error {
	return fmt.Errorf("%w: %s -> %s", ledger.ErrInvalidTransition, d.state, to)
}
