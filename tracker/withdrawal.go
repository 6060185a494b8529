package tracker

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edufeq03/app-ponto-sub000/ledger"
	"github.com/edufeq03/app-ponto-sub000/metrics"
)

// =============================================================================
// WITHDRAWALS - Manual time-bank debits ("saque")
// =============================================================================

// WithdrawalService validates and stores withdrawals.
type WithdrawalService struct {
	Store    ledger.WithdrawalStore
	Location *time.Location
	NewID    func() string
}

func NewWithdrawalService(store ledger.WithdrawalStore, loc *time.Location) *WithdrawalService {
	return &WithdrawalService{Store: store, Location: loc, NewID: uuid.NewString}
}

// Withdraw debits minutes from the user's balance on date. The amount is
// entered as a positive number and stored negated. Dates after now's
// calendar date are rejected.
func (s *WithdrawalService) Withdraw(ctx context.Context, userID ledger.UserID, date time.Time, minutes int, justification string, now time.Time) (ledger.WithdrawalEvent, error) {
	day := ledger.DateOnly(date, s.Location)

	if minutes <= 0 {
		metrics.WithdrawalsRecorded.WithLabelValues("rejected").Inc()
		return ledger.WithdrawalEvent{}, &ledger.InvalidWithdrawalError{Minutes: minutes, Date: day, Reason: "non_positive_amount"}
	}
	if day.After(ledger.DateOnly(now, s.Location)) {
		metrics.WithdrawalsRecorded.WithLabelValues("rejected").Inc()
		return ledger.WithdrawalEvent{}, &ledger.InvalidWithdrawalError{Minutes: minutes, Date: day, Reason: "future_date"}
	}

	newID := s.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	w := ledger.WithdrawalEvent{
		ID:            ledger.WithdrawalID(newID()),
		UserID:        userID,
		Date:          day,
		Minutes:       -minutes,
		Justification: strings.TrimSpace(justification),
		CreatedAt:     now,
	}
	if err := s.Store.AppendWithdrawal(ctx, w); err != nil {
		return ledger.WithdrawalEvent{}, ledger.WrapGateway("append withdrawal", err)
	}
	metrics.WithdrawalsRecorded.WithLabelValues("accepted").Inc()
	return w, nil
}

func (s *WithdrawalService) List(ctx context.Context, userID ledger.UserID) ([]ledger.WithdrawalEvent, error) {
	ws, err := s.Store.Withdrawals(ctx, userID)
	if err != nil {
		return nil, ledger.WrapGateway("query withdrawals", err)
	}
	return ws, nil
}

func (s *WithdrawalService) Delete(ctx context.Context, id ledger.WithdrawalID) error {
	return ledger.WrapGateway("delete withdrawal", s.Store.DeleteWithdrawal(ctx, id))
}
