/*
handlers.go - HTTP API handlers for the attendance time bank

PURPOSE:
  Exposes punches, withdrawals, settings and the computed time bank via
  REST. Handles HTTP request/response and JSON, and delegates to the
  tracker services and the ledger engine.

ENDPOINTS:
  Settings:
    GET    /api/users/{id}/settings               Current settings (defaults on first access)
    PUT    /api/users/{id}/settings               Partial update

  Punches:
    GET    /api/users/{id}/punches                List, optional ?from&to (YYYY-MM-DD)
    POST   /api/users/{id}/punches                Manual punch
    POST   /api/users/{id}/punches/photo          Punch read from a receipt (duplicate-guarded)
    PUT    /api/users/{id}/punches/{punchID}      One-time correction
    DELETE /api/users/{id}/punches/{punchID}      Delete one
    POST   /api/users/{id}/punches/batch-delete   Delete several, all or nothing

  Withdrawals:
    GET    /api/users/{id}/withdrawals
    POST   /api/users/{id}/withdrawals
    DELETE /api/users/{id}/withdrawals/{wid}

  Time bank:
    GET    /api/users/{id}/workdays               Daily summaries, optional ?from&to
    GET    /api/users/{id}/balance                Live balance (stale flag on gateway failure)
    GET    /api/users/{id}/export?from&to         Summaries and total for a range

  Admin:
    POST   /api/admin/settlements/run             Advance elapsed settlement windows

ERROR HANDLING:
  Errors are returned as JSON with a localized message and a stable code:
  - 400: Unreadable input, invalid range, invalid lifecycle transition
  - 404: Punch or withdrawal not found
  - 409: Duplicate punch, punch already corrected
  - 412: Settings not loaded
  - 422: Invalid withdrawal, invalid settings, justification required
  - 503: Event store or settings provider unreachable

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edufeq03/app-ponto-sub000/i18n"
	"github.com/edufeq03/app-ponto-sub000/ledger"
	"github.com/edufeq03/app-ponto-sub000/tracker"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Gateway     ledger.Gateway
	Engine      ledger.Engine
	Recorder    *tracker.Recorder
	Withdrawals *tracker.WithdrawalService
	Monitor     *tracker.Monitor
	Exporter    *tracker.Exporter
	Scheduler   *tracker.SettlementScheduler

	// Now is the request clock. Defaults to time.Now.
	Now func() time.Time
}

// NewHandler wires the tracker services over gw. loc is the ledger timezone.
func NewHandler(gw ledger.Gateway, loc *time.Location) *Handler {
	engine := ledger.Engine{Location: loc}
	return &Handler{
		Gateway:     gw,
		Engine:      engine,
		Recorder:    tracker.NewRecorder(gw, loc),
		Withdrawals: tracker.NewWithdrawalService(gw, loc),
		Monitor:     tracker.NewMonitor(gw, engine),
		Exporter:    &tracker.Exporter{Source: gw, Engine: engine},
		Scheduler:   tracker.NewSettlementScheduler(gw, loc),
		Now:         time.Now,
	}
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().In(h.location())
	}
	return time.Now().In(h.location())
}

func (h *Handler) location() *time.Location {
	if h.Engine.Location != nil {
		return h.Engine.Location
	}
	return time.Local
}

func userIDParam(r *http.Request) ledger.UserID {
	return ledger.UserID(chi.URLParam(r, "id"))
}

// =============================================================================
// SETTINGS
// =============================================================================

// GetSettings returns the user's settings, creating defaults on first access.
// GET /api/users/{id}/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Gateway.Get(r.Context(), userIDParam(r))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", ledger.ErrMissingSettings, ledger.WrapGateway("get settings", err)))
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings, h.now()))
}

// UpdateSettings applies a partial update.
// PUT /api/users/{id}/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	patch := ledger.SettingsPatch{
		DailyStandardMinutes: req.DailyStandardMinutes,
		NightCutoffHour:      req.NightCutoffHour,
	}
	if req.SettlementDate != nil {
		d, err := time.ParseInLocation(time.DateOnly, *req.SettlementDate, h.location())
		if err != nil {
			writeError(w, r, &ledger.SettingsValidationError{Field: "settlement_date", Reason: "must be YYYY-MM-DD"})
			return
		}
		patch.SettlementDate = &d
	}
	if req.SettlementPolicy != nil {
		p := ledger.SettlementPolicy(*req.SettlementPolicy)
		patch.SettlementPolicy = &p
	}
	if req.SummaryStrategy != nil {
		s := ledger.StrategyName(*req.SummaryStrategy)
		patch.SummaryStrategy = &s
	}
	if req.IncompleteDayPolicy != nil {
		p := ledger.IncompleteDayPolicy(*req.IncompleteDayPolicy)
		patch.IncompleteDayPolicy = &p
	}

	settings, err := h.Gateway.Set(r.Context(), userIDParam(r), patch)
	if err != nil {
		writeError(w, r, ledger.WrapGateway("set settings", err))
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings, h.now()))
}

// =============================================================================
// PUNCHES
// =============================================================================

// ListPunches returns the user's punches, optionally for [from, to].
// GET /api/users/{id}/punches?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) ListPunches(w http.ResponseWriter, r *http.Request) {
	var dateRange *ledger.DateRange
	from, to, ok, err := h.optionalRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ok {
		dateRange = &ledger.DateRange{From: from, To: to.AddDate(0, 0, 1).Add(-time.Nanosecond)}
	}

	events, err := h.Gateway.Query(r.Context(), userIDParam(r), dateRange)
	if err != nil {
		writeError(w, r, ledger.WrapGateway("query punches", err))
		return
	}
	writeJSON(w, http.StatusOK, toPunchDTOs(events))
}

// CreatePunch registers a manual punch.
// POST /api/users/{id}/punches
func (h *Handler) CreatePunch(w http.ResponseWriter, r *http.Request) {
	var req CreatePunchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ts, err := h.parseTimestamp(req.Timestamp)
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := h.Recorder.RecordManual(r.Context(), userIDParam(r), ts, req.Justification)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPunchDTO(e))
}

// CreatePhotoPunch runs a receipt punch through the draft lifecycle:
// validate the confirmed date/time, check the name against the profile,
// require a justification on mismatch, then persist unless it duplicates
// an existing punch.
// POST /api/users/{id}/punches/photo
func (h *Handler) CreatePhotoPunch(w http.ResponseWriter, r *http.Request) {
	var req PhotoPunchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	draft := tracker.NewDraft(userIDParam(r), ledger.Candidate{Date: req.Date, Time: req.Time, Name: req.Name}, req.ImageRef)
	if err := draft.Validate(req.Date, req.Time); err != nil {
		writeError(w, r, err)
		return
	}
	mismatch, err := draft.CheckIdentity(req.ProfileName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if mismatch {
		if strings.TrimSpace(req.Justification) == "" {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error:              i18n.T(r.Context(), "identity_mismatch"),
				Code:               "identity_mismatch",
				NeedsJustification: true,
			})
			return
		}
		if err := draft.Justify(req.Justification); err != nil {
			writeError(w, r, err)
			return
		}
	}

	e, err := draft.Persist(r.Context(), h.Recorder)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPunchDTO(e))
}

// CorrectPunch moves a punch once and records why.
// PUT /api/users/{id}/punches/{punchID}
func (h *Handler) CorrectPunch(w http.ResponseWriter, r *http.Request) {
	id := ledger.EventID(chi.URLParam(r, "punchID"))
	if err := h.ownPunches(r.Context(), userIDParam(r), id); err != nil {
		writeError(w, r, err)
		return
	}

	var req CorrectPunchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ts, err := h.parseTimestamp(req.Timestamp)
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := h.Recorder.Correct(r.Context(), id, ts, req.Justification)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPunchDTO(e))
}

// DeletePunch removes one punch.
// DELETE /api/users/{id}/punches/{punchID}
func (h *Handler) DeletePunch(w http.ResponseWriter, r *http.Request) {
	id := ledger.EventID(chi.URLParam(r, "punchID"))
	if err := h.ownPunches(r.Context(), userIDParam(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Recorder.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BatchDeletePunches removes every listed punch or none.
// POST /api/users/{id}/punches/batch-delete
func (h *Handler) BatchDeletePunches(w http.ResponseWriter, r *http.Request) {
	var req BatchDeleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ids := make([]ledger.EventID, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = ledger.EventID(id)
	}
	if err := h.ownPunches(r.Context(), userIDParam(r), ids...); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Recorder.DeleteBatch(r.Context(), ids); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownPunches reports ErrEventNotFound unless every id is a punch of userID.
func (h *Handler) ownPunches(ctx context.Context, userID ledger.UserID, ids ...ledger.EventID) error {
	for _, id := range ids {
		e, err := h.Gateway.Event(ctx, id)
		if err != nil {
			return ledger.WrapGateway("load punch", err)
		}
		if e.UserID != userID {
			return ledger.ErrEventNotFound
		}
	}
	return nil
}

// =============================================================================
// WITHDRAWALS
// =============================================================================

// ListWithdrawals returns the user's withdrawals by date.
// GET /api/users/{id}/withdrawals
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	ws, err := h.Withdrawals.List(r.Context(), userIDParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalDTOs(ws))
}

// CreateWithdrawal debits the balance.
// POST /api/users/{id}/withdrawals
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req CreateWithdrawalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(w, r, &ledger.InvalidWithdrawalError{Minutes: req.Minutes, Reason: "invalid_date"})
		return
	}

	wd, err := h.Withdrawals.Withdraw(r.Context(), userIDParam(r), date, req.Minutes, req.Justification, h.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWithdrawalDTO(wd))
}

// DeleteWithdrawal removes one withdrawal.
// DELETE /api/users/{id}/withdrawals/{wid}
func (h *Handler) DeleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	id := ledger.WithdrawalID(chi.URLParam(r, "wid"))

	ws, err := h.Withdrawals.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	owned := false
	for _, wd := range ws {
		if wd.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		writeError(w, r, ledger.ErrEventNotFound)
		return
	}

	if err := h.Withdrawals.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TIME BANK
// =============================================================================

// GetBalance returns the live balance. When the latest recompute failed but
// an earlier one succeeded, the earlier figures are returned flagged stale.
// GET /api/users/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	snap, ok := h.snapshot(w, r, userID)
	if !ok {
		return
	}

	dto := toBalanceDTO(userID, snap)
	if snap.Stale {
		dto.Warning = i18n.T(r.Context(), "stale_balance")
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListWorkdays returns daily summaries, optionally for keys in [from, to].
// GET /api/users/{id}/workdays?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) ListWorkdays(w http.ResponseWriter, r *http.Request) {
	from, to, ranged, err := h.optionalRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, ok := h.snapshot(w, r, userIDParam(r))
	if !ok {
		return
	}

	summaries := snap.Report.Summaries
	if ranged {
		fromKey, toKey := ledger.KeyOf(from, h.location()), ledger.KeyOf(to, h.location())
		summaries = nil
		for _, s := range snap.Report.Summaries {
			if s.Key >= fromKey && s.Key <= toKey {
				summaries = append(summaries, s)
			}
		}
	}
	writeJSON(w, http.StatusOK, toWorkdayDTOs(summaries))
}

// snapshot watches the user and returns the latest snapshot. It writes the
// error response itself when there is nothing to show.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request, userID ledger.UserID) (tracker.Snapshot, bool) {
	snap, err := h.Monitor.Watch(r.Context(), userID)
	if err != nil && !snap.Loaded {
		writeError(w, r, err)
		return tracker.Snapshot{}, false
	}
	return snap, true
}

// Export returns summaries, withdrawals and the total for [from, to].
// GET /api/users/{id}/export?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	from, to, ok, err := h.optionalRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, fmt.Errorf("%w: from and to are required", ledger.ErrInvalidRange))
		return
	}

	x, err := h.Exporter.Export(r.Context(), userIDParam(r), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExportDTO(x))
}

// =============================================================================
// ADMIN
// =============================================================================

// RunSettlements advances every user whose settlement window has elapsed.
// POST /api/admin/settlements/run
func (h *Handler) RunSettlements(w http.ResponseWriter, r *http.Request) {
	n, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		writeError(w, r, ledger.WrapGateway("run settlements", err))
		return
	}
	writeJSON(w, http.StatusOK, SettlementRunDTO{Advanced: n})
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   i18n.T(r.Context(), "invalid_request"),
			Code:    "invalid_request",
			Details: err.Error(),
		})
		return false
	}
	return true
}

// parseTimestamp accepts RFC 3339 or "YYYY-MM-DD HH:MM" in the ledger zone.
func (h *Handler) parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04", s, h.location())
	if err != nil {
		return time.Time{}, &ledger.InvalidEventError{Reason: fmt.Sprintf("unreadable timestamp %q", s)}
	}
	return ts, nil
}

func (h *Handler) parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), h.location())
}

// optionalRange reads ?from and ?to. Both or neither must be set.
func (h *Handler) optionalRange(r *http.Request) (from, to time.Time, ok bool, err error) {
	q := r.URL.Query()
	rawFrom, rawTo := q.Get("from"), q.Get("to")
	if rawFrom == "" && rawTo == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	if from, err = h.parseDate(rawFrom); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("%w: from %q", ledger.ErrInvalidRange, rawFrom)
	}
	if to, err = h.parseDate(rawTo); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("%w: to %q", ledger.ErrInvalidRange, rawTo)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, false, fmt.Errorf("%w: %s is after %s", ledger.ErrInvalidRange, rawFrom, rawTo)
	}
	return from, to, true, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps err to a status and a localized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, data := classify(err)
	writeJSON(w, status, ErrorResponse{
		Error:   i18n.T(r.Context(), code, data),
		Code:    code,
		Details: err.Error(),
	})
}

// classify returns the HTTP status, message id and template data for err.
// Network failures are checked before missing settings, since a settings
// fetch failure wraps both.
func classify(err error) (int, string, map[string]any) {
	var dup *ledger.DuplicateEventError
	var wd *ledger.InvalidWithdrawalError
	var sv *ledger.SettingsValidationError

	switch {
	case errors.As(err, &dup):
		return http.StatusConflict, "duplicate_punch", map[string]any{"At": dup.At.Format("02/01/2006 15:04")}
	case errors.Is(err, ledger.ErrAlreadyCorrected):
		return http.StatusConflict, "already_corrected", nil
	case errors.As(err, &wd):
		switch wd.Reason {
		case "non_positive_amount":
			return http.StatusUnprocessableEntity, "withdrawal_non_positive", nil
		case "future_date":
			return http.StatusUnprocessableEntity, "withdrawal_future_date", nil
		}
		return http.StatusUnprocessableEntity, "invalid_withdrawal", nil
	case errors.As(err, &sv):
		return http.StatusUnprocessableEntity, "invalid_settings", map[string]any{"Field": sv.Field, "Reason": sv.Reason}
	case errors.Is(err, ledger.ErrInvalidTransition):
		return http.StatusBadRequest, "invalid_transition", nil
	case errors.Is(err, ledger.ErrInvalidRange):
		return http.StatusBadRequest, "invalid_range", nil
	case errors.Is(err, ledger.ErrInvalidEvent):
		return http.StatusBadRequest, "invalid_punch", nil
	case ledger.IsNotFound(err):
		return http.StatusNotFound, "not_found", nil
	case ledger.IsNetworkFailure(err):
		return http.StatusServiceUnavailable, "network_failure", nil
	case errors.Is(err, ledger.ErrMissingSettings):
		return http.StatusPreconditionFailed, "missing_settings", nil
	}
	return http.StatusInternalServerError, "internal_error", nil
}
