/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  ledger types so the engine can change without breaking clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  Timestamps are RFC 3339 with the original offset. Calendar dates are
  YYYY-MM-DD. Durations are integer minutes, with an exact decimal hours
  companion rounded to two places.

VALIDATION:
  Validation is done in handlers and the tracker services, not in DTOs.
*/
package api

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edufeq03/app-ponto-sub000/ledger"
	"github.com/edufeq03/app-ponto-sub000/tracker"
)

// =============================================================================
// SETTINGS
// =============================================================================

type SettingsDTO struct {
	DailyStandardMinutes int        `json:"daily_standard_minutes"`
	NightCutoffHour      int        `json:"night_cutoff_hour"`
	SettlementDate       string     `json:"settlement_date"`
	SettlementPolicy     string     `json:"settlement_policy"`
	SummaryStrategy      string     `json:"summary_strategy"`
	IncompleteDayPolicy  string     `json:"incomplete_day_policy"`
	CurrentPeriod        *PeriodDTO `json:"current_period,omitempty"`
	NextSettlement       string     `json:"next_settlement,omitempty"`
}

type PeriodDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// UpdateSettingsRequest is a partial update. Omitted fields are unchanged.
type UpdateSettingsRequest struct {
	DailyStandardMinutes *int    `json:"daily_standard_minutes,omitempty"`
	NightCutoffHour      *int    `json:"night_cutoff_hour,omitempty"`
	SettlementDate       *string `json:"settlement_date,omitempty"`
	SettlementPolicy     *string `json:"settlement_policy,omitempty"`
	SummaryStrategy      *string `json:"summary_strategy,omitempty"`
	IncompleteDayPolicy  *string `json:"incomplete_day_policy,omitempty"`
}

// =============================================================================
// PUNCHES
// =============================================================================

type PunchDTO struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	Timestamp     string       `json:"timestamp"`
	Origin        string       `json:"origin"`
	Justification string       `json:"justification,omitempty"`
	IsEdited      bool         `json:"is_edited"`
	Original      *OriginalDTO `json:"original,omitempty"`
	ImageRef      string       `json:"image_ref,omitempty"`
	ExtractedName string       `json:"extracted_name,omitempty"`
	CreatedAt     string       `json:"created_at,omitempty"`
}

type OriginalDTO struct {
	Timestamp     string `json:"timestamp"`
	Justification string `json:"justification,omitempty"`
}

// CreatePunchRequest registers a manual punch. Timestamp accepts RFC 3339 or
// "YYYY-MM-DD HH:MM" in the ledger timezone.
type CreatePunchRequest struct {
	Timestamp     string `json:"timestamp"`
	Justification string `json:"justification,omitempty"`
}

// PhotoPunchRequest carries the fields read from a receipt photo, as
// confirmed by the user.
type PhotoPunchRequest struct {
	Date          string `json:"date"` // dd/MM/yyyy
	Time          string `json:"time"` // HH:mm
	Name          string `json:"name,omitempty"`
	ImageRef      string `json:"image_ref,omitempty"`
	ProfileName   string `json:"profile_name,omitempty"`
	Justification string `json:"justification,omitempty"`
}

// CorrectPunchRequest moves a punch once, with a mandatory reason.
type CorrectPunchRequest struct {
	Timestamp     string `json:"timestamp"`
	Justification string `json:"justification"`
}

type BatchDeleteRequest struct {
	IDs []string `json:"ids"`
}

// =============================================================================
// WITHDRAWALS
// =============================================================================

type WithdrawalDTO struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Date          string          `json:"date"`
	Minutes       int             `json:"minutes"`
	Hours         decimal.Decimal `json:"hours"`
	Justification string          `json:"justification,omitempty"`
	CreatedAt     string          `json:"created_at,omitempty"`
}

// CreateWithdrawalRequest takes a positive amount; it is stored negated.
type CreateWithdrawalRequest struct {
	Date          string `json:"date"`
	Minutes       int    `json:"minutes"`
	Justification string `json:"justification,omitempty"`
}

// =============================================================================
// WORKDAYS / BALANCE / EXPORT
// =============================================================================

type WorkdayDTO struct {
	Key           string          `json:"key"`
	WorkedMinutes int             `json:"worked_minutes"`
	WorkedHours   decimal.Decimal `json:"worked_hours"`
	BreakMinutes  int             `json:"break_minutes"`
	BreakStatus   string          `json:"break_status"`
	IsComplete    bool            `json:"is_complete"`
	DailyBalance  *int            `json:"daily_balance"`
	Warning       string          `json:"warning,omitempty"` // "incomplete_workday"
	Punches       []PunchDTO      `json:"punches"`
}

type BalanceDTO struct {
	UserID            string          `json:"user_id"`
	TotalMinutes      int             `json:"total_minutes"`
	TotalHours        decimal.Decimal `json:"total_hours"`
	WorkdayMinutes    int             `json:"workday_minutes"`
	WithdrawalMinutes int             `json:"withdrawal_minutes"`
	CountedWorkdays   int             `json:"counted_workdays"`
	SkippedWorkdays   int             `json:"skipped_workdays"`
	SettlementDate    string          `json:"settlement_date"`
	Incomplete        []WorkdayDTO    `json:"incomplete"`
	Stale             bool            `json:"stale"`
	Warning           string          `json:"warning,omitempty"`
	UpdatedAt         string          `json:"updated_at,omitempty"`
}

type ExportDTO struct {
	UserID       string          `json:"user_id"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	Workdays     []WorkdayDTO    `json:"daily_summaries"`
	Withdrawals  []WithdrawalDTO `json:"withdrawals"`
	TotalMinutes int             `json:"total_minutes"`
	TotalHours   decimal.Decimal `json:"total_hours"`
}

type SettlementRunDTO struct {
	Advanced int `json:"advanced"`
}

// ErrorResponse is the error body. Error is localized for display; Code is
// stable for clients.
type ErrorResponse struct {
	Error              string `json:"error"`
	Code               string `json:"code"`
	Details            string `json:"details,omitempty"`
	NeedsJustification bool   `json:"needs_justification,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toSettingsDTO(s ledger.UserSettings, now time.Time) SettingsDTO {
	period := s.SettlementPolicy.PeriodFor(s.SettlementDate, now)
	return SettingsDTO{
		DailyStandardMinutes: s.DailyStandardMinutes,
		NightCutoffHour:      s.NightCutoffHour,
		SettlementDate:       s.SettlementDate.Format(time.DateOnly),
		SettlementPolicy:     string(s.SettlementPolicy),
		SummaryStrategy:      string(s.SummaryStrategy),
		IncompleteDayPolicy:  string(s.IncompleteDayPolicy),
		CurrentPeriod: &PeriodDTO{
			Start: period.Start.Format(time.DateOnly),
			End:   period.End.Format(time.DateOnly),
		},
		NextSettlement: s.SettlementPolicy.NextSettlement(s.SettlementDate, now).Format(time.DateOnly),
	}
}

func toPunchDTO(e ledger.PunchEvent) PunchDTO {
	dto := PunchDTO{
		ID:            string(e.ID),
		UserID:        string(e.UserID),
		Timestamp:     e.Timestamp.Format(time.RFC3339),
		Origin:        string(e.Origin),
		Justification: e.Justification,
		IsEdited:      e.IsEdited,
		ImageRef:      e.ImageRef,
		ExtractedName: e.ExtractedName,
	}
	if !e.CreatedAt.IsZero() {
		dto.CreatedAt = e.CreatedAt.Format(time.RFC3339)
	}
	if e.OriginalPayload != nil {
		dto.Original = &OriginalDTO{
			Timestamp:     e.OriginalPayload.Timestamp.Format(time.RFC3339),
			Justification: e.OriginalPayload.Justification,
		}
	}
	return dto
}

func toPunchDTOs(events []ledger.PunchEvent) []PunchDTO {
	dtos := make([]PunchDTO, len(events))
	for i, e := range events {
		dtos[i] = toPunchDTO(e)
	}
	return dtos
}

func toWithdrawalDTO(w ledger.WithdrawalEvent) WithdrawalDTO {
	dto := WithdrawalDTO{
		ID:            string(w.ID),
		UserID:        string(w.UserID),
		Date:          w.Date.Format(time.DateOnly),
		Minutes:       w.Minutes,
		Hours:         tracker.MinutesToHours(w.Minutes),
		Justification: w.Justification,
	}
	if !w.CreatedAt.IsZero() {
		dto.CreatedAt = w.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toWithdrawalDTOs(ws []ledger.WithdrawalEvent) []WithdrawalDTO {
	dtos := make([]WithdrawalDTO, len(ws))
	for i, w := range ws {
		dtos[i] = toWithdrawalDTO(w)
	}
	return dtos
}

func toWorkdayDTO(s ledger.DailySummary) WorkdayDTO {
	dto := WorkdayDTO{
		Key:           string(s.Key),
		WorkedMinutes: s.WorkedMinutes,
		WorkedHours:   tracker.MinutesToHours(s.WorkedMinutes),
		BreakMinutes:  s.BreakMinutes,
		BreakStatus:   string(s.BreakStatus),
		IsComplete:    s.IsComplete,
		DailyBalance:  s.DailyBalance,
		Punches:       toPunchDTOs(s.Events),
	}
	if errors.Is(s.Err(), ledger.ErrIncompleteWorkday) {
		dto.Warning = "incomplete_workday"
	}
	return dto
}

func toWorkdayDTOs(summaries []ledger.DailySummary) []WorkdayDTO {
	dtos := make([]WorkdayDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toWorkdayDTO(s)
	}
	return dtos
}

func toBalanceDTO(userID ledger.UserID, snap tracker.Snapshot) BalanceDTO {
	b := snap.Report.Balance
	dto := BalanceDTO{
		UserID:            string(userID),
		TotalMinutes:      b.TotalMinutes,
		TotalHours:        tracker.MinutesToHours(b.TotalMinutes),
		WorkdayMinutes:    b.WorkdayMinutes,
		WithdrawalMinutes: b.WithdrawalMinutes,
		CountedWorkdays:   b.CountedWorkdays,
		SkippedWorkdays:   b.SkippedWorkdays,
		SettlementDate:    snap.Report.Settings.SettlementDate.Format(time.DateOnly),
		Incomplete:        toWorkdayDTOs(snap.Report.Incomplete()),
		Stale:             snap.Stale,
	}
	if !snap.UpdatedAt.IsZero() {
		dto.UpdatedAt = snap.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toExportDTO(x tracker.Export) ExportDTO {
	return ExportDTO{
		UserID:       string(x.UserID),
		From:         string(x.From),
		To:           string(x.To),
		Workdays:     toWorkdayDTOs(x.DailySummaries),
		Withdrawals:  toWithdrawalDTOs(x.Withdrawals),
		TotalMinutes: x.TotalMinutes,
		TotalHours:   x.TotalHours(),
	}
}
