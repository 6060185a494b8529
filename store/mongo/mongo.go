// Package mongo provides a MongoDB-backed implementation of the ledger gateways.
//
// Collections: punches, withdrawals, settings. MongoDB keeps times in UTC,
// so each punch also stores its original UTC offset and is returned in that
// zone, keeping workday keys stable across a round-trip.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/edufeq03/app-ponto-sub000/ledger"
)

// Store implements ledger.Gateway on MongoDB.
type Store struct {
	ledger.Broadcaster

	// Now stamps default settings on first access. Defaults to time.Now.
	Now func() time.Time

	client      *mongo.Client
	punches     *mongo.Collection
	withdrawals *mongo.Collection
	settings    *mongo.Collection

	// Serializes multi-step writes (batch delete, settings merge) in this
	// process. Standalone servers have no multi-document transactions.
	mu sync.Mutex
}

var _ ledger.Gateway = (*Store)(nil)

// New connects to uri, pings the primary and ensures indexes.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		Now:         time.Now,
		client:      client,
		punches:     db.Collection("punches"),
		withdrawals: db.Collection("withdrawals"),
		settings:    db.Collection("settings"),
	}

	if _, err := s.punches.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "punched_at", Value: 1}},
	}); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("create punches indexes: %w", err)
	}
	if _, err := s.withdrawals.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "date", Value: 1}},
	}); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("create withdrawals indexes: %w", err)
	}

	log.Printf("Connected to MongoDB: %s", database)
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// =============================================================================
// DOCUMENTS
// =============================================================================

type punchDoc struct {
	ID            string       `bson:"_id"`
	UserID        string       `bson:"user_id"`
	PunchedAt     time.Time    `bson:"punched_at"`
	Offset        int          `bson:"tz_offset"`
	Origin        string       `bson:"origin"`
	Justification string       `bson:"justification,omitempty"`
	IsEdited      bool         `bson:"is_edited"`
	Original      *originalDoc `bson:"original,omitempty"`
	ImageRef      string       `bson:"image_ref,omitempty"`
	ExtractedName string       `bson:"extracted_name,omitempty"`
	CreatedAt     time.Time    `bson:"created_at"`
}

type originalDoc struct {
	PunchedAt     time.Time `bson:"punched_at"`
	Offset        int       `bson:"tz_offset"`
	Justification string    `bson:"justification,omitempty"`
}

func toPunchDoc(e ledger.PunchEvent) punchDoc {
	_, offset := e.Timestamp.Zone()
	d := punchDoc{
		ID:            string(e.ID),
		UserID:        string(e.UserID),
		PunchedAt:     e.Timestamp,
		Offset:        offset,
		Origin:        string(e.Origin),
		Justification: e.Justification,
		IsEdited:      e.IsEdited,
		ImageRef:      e.ImageRef,
		ExtractedName: e.ExtractedName,
		CreatedAt:     e.CreatedAt,
	}
	if e.OriginalPayload != nil {
		_, origOffset := e.OriginalPayload.Timestamp.Zone()
		d.Original = &originalDoc{
			PunchedAt:     e.OriginalPayload.Timestamp,
			Offset:        origOffset,
			Justification: e.OriginalPayload.Justification,
		}
	}
	return d
}

func (d punchDoc) event() ledger.PunchEvent {
	e := ledger.PunchEvent{
		ID:            ledger.EventID(d.ID),
		UserID:        ledger.UserID(d.UserID),
		Timestamp:     inOffset(d.PunchedAt, d.Offset),
		Origin:        ledger.Origin(d.Origin),
		Justification: d.Justification,
		IsEdited:      d.IsEdited,
		ImageRef:      d.ImageRef,
		ExtractedName: d.ExtractedName,
		CreatedAt:     d.CreatedAt,
	}
	if d.Original != nil {
		e.OriginalPayload = &ledger.OriginalPayload{
			Timestamp:     inOffset(d.Original.PunchedAt, d.Original.Offset),
			Justification: d.Original.Justification,
		}
	}
	return e
}

type withdrawalDoc struct {
	ID            string    `bson:"_id"`
	UserID        string    `bson:"user_id"`
	Date          time.Time `bson:"date"`
	Offset        int       `bson:"tz_offset"`
	Minutes       int       `bson:"minutes"`
	Justification string    `bson:"justification,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
}

type settingsDoc struct {
	UserID               string    `bson:"_id"`
	DailyStandardMinutes int       `bson:"daily_standard_minutes"`
	NightCutoffHour      int       `bson:"night_cutoff_hour"`
	SettlementDate       time.Time `bson:"settlement_date"`
	Offset               int       `bson:"tz_offset"`
	SettlementPolicy     string    `bson:"settlement_policy"`
	SummaryStrategy      string    `bson:"summary_strategy"`
	IncompleteDayPolicy  string    `bson:"incomplete_day_policy"`
	UpdatedAt            time.Time `bson:"updated_at"`
}

func inOffset(t time.Time, offset int) time.Time {
	return t.In(time.FixedZone("", offset))
}

// =============================================================================
// PUNCHES (ledger.EventStore)
// =============================================================================

func (s *Store) Append(ctx context.Context, e ledger.PunchEvent) error {
	if _, err := s.punches.InsertOne(ctx, toPunchDoc(e)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &ledger.InvalidEventError{EventID: e.ID, Reason: "id already exists"}
		}
		return fmt.Errorf("insert punch: %w", err)
	}
	s.Publish(ledger.Change{UserID: e.UserID, Kind: ledger.ChangePunches})
	return nil
}

func (s *Store) Query(ctx context.Context, userID ledger.UserID, r *ledger.DateRange) ([]ledger.PunchEvent, error) {
	filter := bson.M{"user_id": string(userID)}
	if r != nil {
		window := bson.M{}
		if !r.From.IsZero() {
			window["$gte"] = r.From
		}
		if !r.To.IsZero() {
			window["$lte"] = r.To
		}
		if len(window) > 0 {
			filter["punched_at"] = window
		}
	}

	cursor, err := s.punches.Find(ctx, filter, options.Find().SetSort(bson.D{
		{Key: "punched_at", Value: 1}, {Key: "created_at", Value: 1},
	}))
	if err != nil {
		return nil, fmt.Errorf("find punches: %w", err)
	}
	var docs []punchDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode punches: %w", err)
	}

	events := make([]ledger.PunchEvent, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.event())
	}
	return events, nil
}

func (s *Store) Event(ctx context.Context, id ledger.EventID) (ledger.PunchEvent, error) {
	var d punchDoc
	err := s.punches.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ledger.PunchEvent{}, ledger.ErrEventNotFound
	}
	if err != nil {
		return ledger.PunchEvent{}, fmt.Errorf("find punch: %w", err)
	}
	return d.event(), nil
}

func (s *Store) Update(ctx context.Context, e ledger.PunchEvent) error {
	res, err := s.punches.ReplaceOne(ctx, bson.M{"_id": string(e.ID)}, toPunchDoc(e))
	if err != nil {
		return fmt.Errorf("replace punch: %w", err)
	}
	if res.MatchedCount == 0 {
		return ledger.ErrEventNotFound
	}
	s.Publish(ledger.Change{UserID: e.UserID, Kind: ledger.ChangePunches})
	return nil
}

func (s *Store) Delete(ctx context.Context, id ledger.EventID) error {
	return s.BatchDelete(ctx, []ledger.EventID{id})
}

// BatchDelete removes the punches only when every id exists.
func (s *Store) BatchDelete(ctx context.Context, ids []ledger.EventID) error {
	keys := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[string(id)] {
			seen[string(id)] = true
			keys = append(keys, string(id))
		}
	}
	filter := bson.M{"_id": bson.M{"$in": keys}}

	s.mu.Lock()
	touched, err := s.deletePunches(ctx, filter, len(keys))
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for userID := range touched {
		s.Publish(ledger.Change{UserID: ledger.UserID(userID), Kind: ledger.ChangePunches})
	}
	return nil
}

func (s *Store) deletePunches(ctx context.Context, filter bson.M, want int) (map[string]bool, error) {
	cursor, err := s.punches.Find(ctx, filter, options.Find().SetProjection(bson.M{"user_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("find punches: %w", err)
	}
	var owners []struct {
		UserID string `bson:"user_id"`
	}
	if err := cursor.All(ctx, &owners); err != nil {
		return nil, fmt.Errorf("decode punches: %w", err)
	}
	if len(owners) != want {
		return nil, ledger.ErrEventNotFound
	}

	if _, err := s.punches.DeleteMany(ctx, filter); err != nil {
		return nil, fmt.Errorf("delete punches: %w", err)
	}

	touched := make(map[string]bool)
	for _, o := range owners {
		touched[o.UserID] = true
	}
	return touched, nil
}

// =============================================================================
// WITHDRAWALS (ledger.WithdrawalStore)
// =============================================================================

func (s *Store) AppendWithdrawal(ctx context.Context, w ledger.WithdrawalEvent) error {
	_, offset := w.Date.Zone()
	_, err := s.withdrawals.InsertOne(ctx, withdrawalDoc{
		ID:            string(w.ID),
		UserID:        string(w.UserID),
		Date:          w.Date,
		Offset:        offset,
		Minutes:       w.Minutes,
		Justification: w.Justification,
		CreatedAt:     w.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &ledger.InvalidWithdrawalError{Minutes: w.Minutes, Date: w.Date, Reason: "id already exists"}
		}
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	s.Publish(ledger.Change{UserID: w.UserID, Kind: ledger.ChangeWithdrawals})
	return nil
}

func (s *Store) Withdrawals(ctx context.Context, userID ledger.UserID) ([]ledger.WithdrawalEvent, error) {
	cursor, err := s.withdrawals.Find(ctx, bson.M{"user_id": string(userID)},
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find withdrawals: %w", err)
	}
	var docs []withdrawalDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode withdrawals: %w", err)
	}

	out := make([]ledger.WithdrawalEvent, 0, len(docs))
	for _, d := range docs {
		out = append(out, ledger.WithdrawalEvent{
			ID:            ledger.WithdrawalID(d.ID),
			UserID:        ledger.UserID(d.UserID),
			Date:          inOffset(d.Date, d.Offset),
			Minutes:       d.Minutes,
			Justification: d.Justification,
			CreatedAt:     d.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) DeleteWithdrawal(ctx context.Context, id ledger.WithdrawalID) error {
	var d withdrawalDoc
	err := s.withdrawals.FindOneAndDelete(ctx, bson.M{"_id": string(id)}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ledger.ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("delete withdrawal: %w", err)
	}
	s.Publish(ledger.Change{UserID: ledger.UserID(d.UserID), Kind: ledger.ChangeWithdrawals})
	return nil
}

// =============================================================================
// SETTINGS (ledger.SettingsProvider)
// =============================================================================

func (s *Store) Get(ctx context.Context, userID ledger.UserID) (ledger.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadOrCreateSettings(ctx, userID)
}

func (s *Store) Set(ctx context.Context, userID ledger.UserID, patch ledger.SettingsPatch) (ledger.UserSettings, error) {
	s.mu.Lock()
	merged, err := s.setSettings(ctx, userID, patch)
	s.mu.Unlock()
	if err != nil {
		return ledger.UserSettings{}, err
	}

	s.Publish(ledger.Change{UserID: userID, Kind: ledger.ChangeSettings})
	return merged, nil
}

func (s *Store) setSettings(ctx context.Context, userID ledger.UserID, patch ledger.SettingsPatch) (ledger.UserSettings, error) {
	current, err := s.loadOrCreateSettings(ctx, userID)
	if err != nil {
		return ledger.UserSettings{}, err
	}
	merged, err := current.Merge(patch)
	if err != nil {
		return ledger.UserSettings{}, err
	}
	return merged, s.saveSettings(ctx, userID, merged)
}

func (s *Store) Users(ctx context.Context) ([]ledger.UserID, error) {
	cursor, err := s.settings.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find settings: %w", err)
	}
	var docs []struct {
		UserID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	users := make([]ledger.UserID, 0, len(docs))
	for _, d := range docs {
		users = append(users, ledger.UserID(d.UserID))
	}
	return users, nil
}

func (s *Store) loadOrCreateSettings(ctx context.Context, userID ledger.UserID) (ledger.UserSettings, error) {
	var d settingsDoc
	err := s.settings.FindOne(ctx, bson.M{"_id": string(userID)}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		settings := ledger.DefaultSettings(now())
		return settings, s.saveSettings(ctx, userID, settings)
	}
	if err != nil {
		return ledger.UserSettings{}, fmt.Errorf("find settings: %w", err)
	}

	return ledger.UserSettings{
		DailyStandardMinutes: d.DailyStandardMinutes,
		NightCutoffHour:      d.NightCutoffHour,
		SettlementDate:       inOffset(d.SettlementDate, d.Offset),
		SettlementPolicy:     ledger.SettlementPolicy(d.SettlementPolicy),
		SummaryStrategy:      ledger.StrategyName(d.SummaryStrategy),
		IncompleteDayPolicy:  ledger.IncompleteDayPolicy(d.IncompleteDayPolicy),
	}.WithDefaults(), nil
}

func (s *Store) saveSettings(ctx context.Context, userID ledger.UserID, settings ledger.UserSettings) error {
	_, offset := settings.SettlementDate.Zone()
	_, err := s.settings.ReplaceOne(ctx, bson.M{"_id": string(userID)}, settingsDoc{
		UserID:               string(userID),
		DailyStandardMinutes: settings.DailyStandardMinutes,
		NightCutoffHour:      settings.NightCutoffHour,
		SettlementDate:       settings.SettlementDate,
		Offset:               offset,
		SettlementPolicy:     string(settings.SettlementPolicy),
		SummaryStrategy:      string(settings.SummaryStrategy),
		IncompleteDayPolicy:  string(settings.IncompleteDayPolicy),
		UpdatedAt:            time.Now(),
	}, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
