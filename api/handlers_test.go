/*
handlers_test.go - HTTP tests for the API handlers

Runs the full router over the in-memory gateway:
- Settings defaults and validation
- Manual and photo punches (duplicates, identity mismatch)
- Corrections, deletion, batch deletion
- Withdrawals and localized rejections
- Balance (including the stale flag), workdays and export
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edufeq03/app-ponto-sub000/i18n"
	"github.com/edufeq03/app-ponto-sub000/ledger"
	"github.com/edufeq03/app-ponto-sub000/ledger/store"
)

func TestMain(m *testing.M) {
	i18n.Init("pt-BR")
	os.Exit(m.Run())
}

var saoPaulo = func() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}()

// flakyGateway fails settings reads on demand.
type flakyGateway struct {
	*store.Memory

	mu   sync.Mutex
	fail bool
}

func (f *flakyGateway) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *flakyGateway) Get(ctx context.Context, userID ledger.UserID) (ledger.UserSettings, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return ledger.UserSettings{}, errors.New("connection refused")
	}
	return f.Memory.Get(ctx, userID)
}

type testServer struct {
	router  *chi.Mux
	handler *Handler
	gw      *flakyGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	mem.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, saoPaulo) }
	gw := &flakyGateway{Memory: mem}

	h := NewHandler(gw, saoPaulo)
	h.Now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, saoPaulo) }
	t.Cleanup(h.Monitor.Close)

	return &testServer{router: NewRouter(h, []string{"*"}), handler: h, gw: gw}
}

// do sends a request with Accept-Language: en unless lang overrides it.
func (s *testServer) do(t *testing.T, method, path string, body any, lang ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if len(lang) > 0 {
		req.Header.Set("Accept-Language", lang[0])
	} else {
		req.Header.Set("Accept-Language", "en")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) punch(t *testing.T, userID, ts string) PunchDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/users/"+userID+"/punches", CreatePunchRequest{Timestamp: ts})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto PunchDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	return dto
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings_DefaultsOnFirstAccess(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/users/u1/settings", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	dto := decodeAs[SettingsDTO](t, rec)
	assert.Equal(t, 480, dto.DailyStandardMinutes)
	assert.Equal(t, 5, dto.NightCutoffHour)
	assert.Equal(t, "2024-01-01", dto.SettlementDate)
	assert.Equal(t, "annual", dto.SettlementPolicy)
	assert.Equal(t, "threshold", dto.SummaryStrategy)
	assert.Equal(t, "exclude", dto.IncompleteDayPolicy)
	require.NotNil(t, dto.CurrentPeriod)
	assert.Equal(t, PeriodDTO{Start: "2024-01-01", End: "2024-12-31"}, *dto.CurrentPeriod)
	assert.Equal(t, "2025-01-01", dto.NextSettlement)
}

func TestSettings_Update(t *testing.T) {
	s := newTestServer(t)

	standard := 440
	date := "2024-03-15"
	rec := s.do(t, http.MethodPut, "/api/users/u1/settings", UpdateSettingsRequest{
		DailyStandardMinutes: &standard,
		SettlementDate:       &date,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decodeAs[SettingsDTO](t, rec)
	assert.Equal(t, 440, dto.DailyStandardMinutes)
	assert.Equal(t, "2024-03-15", dto.SettlementDate)

	cutoff := 9
	rec = s.do(t, http.MethodPut, "/api/users/u1/settings", UpdateSettingsRequest{NightCutoffHour: &cutoff})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errResp := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "invalid_settings", errResp.Code)
	assert.Contains(t, errResp.Error, "night_cutoff_hour")

	bad := "15/03/2024"
	rec = s.do(t, http.MethodPut, "/api/users/u1/settings", UpdateSettingsRequest{SettlementDate: &bad})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// =============================================================================
// PUNCHES
// =============================================================================

func TestPunches_ManualAndBalance(t *testing.T) {
	// GIVEN: a day with a 70 minute lunch (5 minutes over the long-break limit)
	s := newTestServer(t)
	for _, ts := range []string{"2024-05-10 08:00", "2024-05-10 12:00", "2024-05-10 13:10", "2024-05-10 17:00"} {
		s.punch(t, "u1", ts)
	}

	// WHEN: reading the balance
	rec := s.do(t, http.MethodGet, "/api/users/u1/balance", nil)

	// THEN: 470 - 480 - 5 = -15
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decodeAs[BalanceDTO](t, rec)
	assert.Equal(t, -15, dto.TotalMinutes)
	assert.Equal(t, "-0.25", dto.TotalHours.String())
	assert.Equal(t, 1, dto.CountedWorkdays)
	assert.False(t, dto.Stale)
	assert.Empty(t, dto.Incomplete)

	rec = s.do(t, http.MethodGet, "/api/users/u1/punches?from=2024-05-10&to=2024-05-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]PunchDTO](t, rec), 4)
}

func TestPunches_UnreadableTimestamp(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/users/u1/punches", CreatePunchRequest{Timestamp: "yesterday"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_punch", decodeAs[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/users/u1/punches", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeAs[ErrorResponse](t, rec).Code)
}

func TestPhotoPunch_DuplicateRejected(t *testing.T) {
	s := newTestServer(t)
	req := PhotoPunchRequest{Date: "10/05/2024", Time: "08:00", ImageRef: "img-1"}

	rec := s.do(t, http.MethodPost, "/api/users/u1/punches/photo", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "photo", decodeAs[PunchDTO](t, rec).Origin)

	rec = s.do(t, http.MethodPost, "/api/users/u1/punches/photo", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	errResp := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "duplicate_punch", errResp.Code)
	assert.Equal(t, "A punch was already registered on 10/05/2024 08:00.", errResp.Error)

	// Another user is unaffected.
	rec = s.do(t, http.MethodPost, "/api/users/u2/punches/photo", req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestPhotoPunch_IdentityMismatchNeedsJustification(t *testing.T) {
	s := newTestServer(t)
	req := PhotoPunchRequest{Date: "10/05/2024", Time: "08:00", Name: "Maria Souza", ProfileName: "João Lima"}

	rec := s.do(t, http.MethodPost, "/api/users/u1/punches/photo", req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errResp := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "identity_mismatch", errResp.Code)
	assert.True(t, errResp.NeedsJustification)

	req.Justification = "shared terminal"
	rec = s.do(t, http.MethodPost, "/api/users/u1/punches/photo", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dto := decodeAs[PunchDTO](t, rec)
	assert.Equal(t, "shared terminal", dto.Justification)
	assert.Equal(t, "Maria Souza", dto.ExtractedName)
}

func TestPhotoPunch_AccentsDoNotCountAsMismatch(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/users/u1/punches/photo", PhotoPunchRequest{
		Date: "10/05/2024", Time: "08:00", Name: "JOAO  LIMA", ProfileName: "João Lima",
	})

	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCorrectPunch_OnlyOnce(t *testing.T) {
	s := newTestServer(t)
	p := s.punch(t, "u1", "2024-05-10 08:00")
	path := "/api/users/u1/punches/" + p.ID

	rec := s.do(t, http.MethodPut, path, CorrectPunchRequest{Timestamp: "2024-05-10 07:55", Justification: "clock drift"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decodeAs[PunchDTO](t, rec)
	assert.True(t, dto.IsEdited)
	require.NotNil(t, dto.Original)
	assert.Equal(t, "2024-05-10T08:00:00-03:00", dto.Original.Timestamp)
	assert.Equal(t, "2024-05-10T07:55:00-03:00", dto.Timestamp)

	rec = s.do(t, http.MethodPut, path, CorrectPunchRequest{Timestamp: "2024-05-10 07:50", Justification: "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_corrected", decodeAs[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPut, "/api/users/u2/punches/"+p.ID, CorrectPunchRequest{Timestamp: "2024-05-10 07:50", Justification: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "punches of other users are invisible")
}

func TestCorrectPunch_RequiresJustification(t *testing.T) {
	s := newTestServer(t)
	p := s.punch(t, "u1", "2024-05-10 08:00")

	rec := s.do(t, http.MethodPut, "/api/users/u1/punches/"+p.ID, CorrectPunchRequest{Timestamp: "2024-05-10 07:55"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeletePunches(t *testing.T) {
	s := newTestServer(t)
	a := s.punch(t, "u1", "2024-05-10 08:00")
	b := s.punch(t, "u1", "2024-05-10 12:00")
	c := s.punch(t, "u1", "2024-05-10 13:00")

	rec := s.do(t, http.MethodPost, "/api/users/u1/punches/batch-delete", BatchDeleteRequest{IDs: []string{a.ID, "missing"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/users/u1/punches", nil)
	assert.Len(t, decodeAs[[]PunchDTO](t, rec), 3, "nothing deleted")

	rec = s.do(t, http.MethodPost, "/api/users/u1/punches/batch-delete", BatchDeleteRequest{IDs: []string{a.ID, b.ID}})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/users/u1/punches/"+c.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/users/u1/punches/"+c.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/users/u1/punches", nil)
	assert.Empty(t, decodeAs[[]PunchDTO](t, rec))
}

// =============================================================================
// WITHDRAWALS
// =============================================================================

func TestWithdrawals(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/users/u1/withdrawals", CreateWithdrawalRequest{Date: "2024-05-20", Minutes: 60, Justification: "dentist"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeAs[WithdrawalDTO](t, rec)
	assert.Equal(t, -60, created.Minutes)
	assert.Equal(t, "-1", created.Hours.String())

	rec = s.do(t, http.MethodGet, "/api/users/u1/balance", nil)
	assert.Equal(t, -60, decodeAs[BalanceDTO](t, rec).TotalMinutes)

	rec = s.do(t, http.MethodDelete, "/api/users/u2/withdrawals/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/users/u1/withdrawals/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/users/u1/withdrawals", nil)
	assert.Empty(t, decodeAs[[]WithdrawalDTO](t, rec))
}

func TestWithdrawals_RejectedWithLocalizedMessage(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		req     CreateWithdrawalRequest
		lang    string
		code    string
		message string
	}{
		{"zero amount pt-BR", CreateWithdrawalRequest{Date: "2024-05-20", Minutes: 0}, "pt-BR", "withdrawal_non_positive", "O valor do saque deve ser maior que zero."},
		{"negative amount en", CreateWithdrawalRequest{Date: "2024-05-20", Minutes: -5}, "en", "withdrawal_non_positive", "The withdrawal amount must be greater than zero."},
		{"future date", CreateWithdrawalRequest{Date: "2024-06-02", Minutes: 30}, "en", "withdrawal_future_date", "Withdrawals cannot be dated in the future."},
		{"unreadable date", CreateWithdrawalRequest{Date: "20/05/2024", Minutes: 30}, "en", "invalid_withdrawal", "The withdrawal is not valid."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/users/u1/withdrawals", tt.req, tt.lang)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			errResp := decodeAs[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, errResp.Code)
			assert.Equal(t, tt.message, errResp.Error)
		})
	}
}

// =============================================================================
// TIME BANK
// =============================================================================

func TestBalance_StaleAfterGatewayFailure(t *testing.T) {
	s := newTestServer(t)

	// No snapshot yet: nothing to show.
	s.gw.setFail(true)
	rec := s.do(t, http.MethodGet, "/api/users/u1/balance", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "network_failure", decodeAs[ErrorResponse](t, rec).Code)

	s.gw.setFail(false)
	for _, ts := range []string{"2024-05-10 08:00", "2024-05-10 12:00", "2024-05-10 12:40", "2024-05-10 17:00"} {
		s.punch(t, "u1", ts)
	}
	rec = s.do(t, http.MethodGet, "/api/users/u1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, decodeAs[BalanceDTO](t, rec).TotalMinutes)

	// Later failures keep the last good figures, flagged.
	s.gw.setFail(true)
	rec = s.do(t, http.MethodGet, "/api/users/u1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decodeAs[BalanceDTO](t, rec)
	assert.True(t, dto.Stale)
	assert.Equal(t, 20, dto.TotalMinutes)
	assert.Equal(t, "The balance may be out of date.", dto.Warning)
}

func TestWorkdays_FlagsIncomplete(t *testing.T) {
	s := newTestServer(t)
	for _, ts := range []string{"2024-05-10 08:00", "2024-05-10 12:00", "2024-05-10 12:40", "2024-05-10 17:00"} {
		s.punch(t, "u1", ts)
	}
	s.punch(t, "u1", "2024-05-13 08:00")
	s.punch(t, "u1", "2024-05-13 12:00")
	s.punch(t, "u1", "2024-05-13 13:00")

	rec := s.do(t, http.MethodGet, "/api/users/u1/workdays", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	days := decodeAs[[]WorkdayDTO](t, rec)
	require.Len(t, days, 2)
	assert.True(t, days[0].IsComplete)
	require.NotNil(t, days[0].DailyBalance)
	assert.Equal(t, 20, *days[0].DailyBalance)
	assert.Empty(t, days[0].Warning)
	assert.False(t, days[1].IsComplete)
	assert.Nil(t, days[1].DailyBalance)
	assert.Equal(t, "incomplete_workday", days[1].Warning)

	rec = s.do(t, http.MethodGet, "/api/users/u1/workdays?from=2024-05-11&to=2024-05-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	days = decodeAs[[]WorkdayDTO](t, rec)
	require.Len(t, days, 1)
	assert.Equal(t, "2024-05-13", days[0].Key)

	rec = s.do(t, http.MethodGet, "/api/users/u1/balance", nil)
	bal := decodeAs[BalanceDTO](t, rec)
	assert.Equal(t, 20, bal.TotalMinutes)
	require.Len(t, bal.Incomplete, 1)
	assert.Equal(t, "incomplete_workday", bal.Incomplete[0].Warning)
}

func TestExport(t *testing.T) {
	s := newTestServer(t)
	for _, ts := range []string{"2024-05-10 08:00", "2024-05-10 12:00", "2024-05-10 13:10", "2024-05-10 17:00"} {
		s.punch(t, "u1", ts)
	}
	rec := s.do(t, http.MethodPost, "/api/users/u1/withdrawals", CreateWithdrawalRequest{Date: "2024-05-10", Minutes: 30})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/users/u1/export?from=2024-05-01&to=2024-05-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decodeAs[ExportDTO](t, rec)
	assert.Equal(t, "2024-05-01", dto.From)
	assert.Equal(t, "2024-05-31", dto.To)
	assert.Len(t, dto.Workdays, 1)
	assert.Len(t, dto.Withdrawals, 1)
	assert.Equal(t, -45, dto.TotalMinutes)
	assert.Equal(t, "-0.75", dto.TotalHours.String())

	rec = s.do(t, http.MethodGet, "/api/users/u1/export", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/users/u1/export?from=2024-05-31&to=2024-05-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_range", decodeAs[ErrorResponse](t, rec).Code)
}

// =============================================================================
// ADMIN / METRICS
// =============================================================================

func TestRunSettlements(t *testing.T) {
	s := newTestServer(t)
	policy := "semiannual"
	rec := s.do(t, http.MethodPut, "/api/users/u1/settings", UpdateSettingsRequest{SettlementPolicy: &policy})
	require.Equal(t, http.StatusOK, rec.Code)
	s.handler.Scheduler.Now = s.handler.Now

	rec = s.do(t, http.MethodPost, "/api/admin/settlements/run", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0, decodeAs[SettlementRunDTO](t, rec).Advanced, "June 1 is still in the first semester")

	s.handler.Scheduler.Now = func() time.Time { return time.Date(2024, 7, 2, 9, 0, 0, 0, saoPaulo) }
	rec = s.do(t, http.MethodPost, "/api/admin/settlements/run", nil)
	assert.Equal(t, 1, decodeAs[SettlementRunDTO](t, rec).Advanced)

	rec = s.do(t, http.MethodGet, "/api/users/u1/settings", nil)
	assert.Equal(t, "2024-07-01", decodeAs[SettingsDTO](t, rec).SettlementDate)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.punch(t, "u1", "2024-05-10 08:00")

	rec := s.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ponto_punches_recorded_total")
}
