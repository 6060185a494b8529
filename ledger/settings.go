package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// USER SETTINGS
// =============================================================================

const (
	MinDailyStandardMinutes = 60
	MaxDailyStandardMinutes = 1440

	DefaultDailyStandardMinutes = 480
	DefaultNightCutoffHour      = 5
)

// UserSettings holds one user's ledger configuration.
type UserSettings struct {
	DailyStandardMinutes int
	NightCutoffHour      int
	SettlementDate       time.Time
	SettlementPolicy     SettlementPolicy
	SummaryStrategy      StrategyName
	IncompleteDayPolicy  IncompleteDayPolicy
}

// DefaultSettings returns the settings a user gets on first access.
func DefaultSettings(now time.Time) UserSettings {
	return UserSettings{
		DailyStandardMinutes: DefaultDailyStandardMinutes,
		NightCutoffHour:      DefaultNightCutoffHour,
		SettlementDate:       now,
		SettlementPolicy:     SettlementAnnual,
		SummaryStrategy:      StrategyThreshold,
		IncompleteDayPolicy:  IncompleteExclude,
	}
}

// Validate checks ranges and enums.
func (s UserSettings) Validate() error {
	if s.DailyStandardMinutes < MinDailyStandardMinutes || s.DailyStandardMinutes > MaxDailyStandardMinutes {
		return &SettingsValidationError{
			Field:  "daily_standard_minutes",
			Reason: fmt.Sprintf("must be between %d and %d", MinDailyStandardMinutes, MaxDailyStandardMinutes),
		}
	}
	if s.NightCutoffHour < MinNightCutoffHour || s.NightCutoffHour > MaxNightCutoffHour {
		return &SettingsValidationError{
			Field:  "night_cutoff_hour",
			Reason: fmt.Sprintf("must be between %d and %d", MinNightCutoffHour, MaxNightCutoffHour),
		}
	}
	if s.SettlementDate.IsZero() {
		return &SettingsValidationError{Field: "settlement_date", Reason: "is required"}
	}
	if !s.SettlementPolicy.Valid() {
		return &SettingsValidationError{Field: "settlement_policy", Reason: fmt.Sprintf("unknown policy %q", s.SettlementPolicy)}
	}
	if !s.SummaryStrategy.Valid() {
		return &SettingsValidationError{Field: "summary_strategy", Reason: fmt.Sprintf("unknown strategy %q", s.SummaryStrategy)}
	}
	if !s.IncompleteDayPolicy.Valid() {
		return &SettingsValidationError{Field: "incomplete_day_policy", Reason: fmt.Sprintf("unknown policy %q", s.IncompleteDayPolicy)}
	}
	return nil
}

// SettingsPatch is a partial update. Nil fields are left unchanged.
type SettingsPatch struct {
	DailyStandardMinutes *int
	NightCutoffHour      *int
	SettlementDate       *time.Time
	SettlementPolicy     *SettlementPolicy
	SummaryStrategy      *StrategyName
	IncompleteDayPolicy  *IncompleteDayPolicy
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.DailyStandardMinutes == nil && p.NightCutoffHour == nil && p.SettlementDate == nil &&
		p.SettlementPolicy == nil && p.SummaryStrategy == nil && p.IncompleteDayPolicy == nil
}

// Merge applies p on top of s and validates the result. s is not modified.
func (s UserSettings) Merge(p SettingsPatch) (UserSettings, error) {
	merged := s
	if p.DailyStandardMinutes != nil {
		merged.DailyStandardMinutes = *p.DailyStandardMinutes
	}
	if p.NightCutoffHour != nil {
		merged.NightCutoffHour = *p.NightCutoffHour
	}
	if p.SettlementDate != nil {
		merged.SettlementDate = *p.SettlementDate
	}
	if p.SettlementPolicy != nil {
		merged.SettlementPolicy = *p.SettlementPolicy
	}
	if p.SummaryStrategy != nil {
		merged.SummaryStrategy = *p.SummaryStrategy
	}
	if p.IncompleteDayPolicy != nil {
		merged.IncompleteDayPolicy = *p.IncompleteDayPolicy
	}
	if err := merged.Validate(); err != nil {
		return s, err
	}
	return merged, nil
}

// WithDefaults fills enum fields left empty by older records.
func (s UserSettings) WithDefaults() UserSettings {
	if s.SettlementPolicy == "" {
		s.SettlementPolicy = SettlementAnnual
	}
	if s.SummaryStrategy == "" {
		s.SummaryStrategy = StrategyThreshold
	}
	if s.IncompleteDayPolicy == "" {
		s.IncompleteDayPolicy = IncompleteExclude
	}
	return s
}
