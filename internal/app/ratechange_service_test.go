package app

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"rate_change_notifier/internal/app/progress"
	"rate_change_notifier/internal/domain/clio"
	"rate_change_notifier/internal/domain/ratechange"
	"rate_change_notifier/internal/infra/database"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRecordRepo mirrors the Postgres upsert semantics in memory: keyed on
// (year, client_id), COALESCE merge for the contact snapshot, mutual
// exclusivity of sent_date and the na_* fields.
type memoryRecordRepo struct {
	records map[string]*ratechange.Record
}

func newMemoryRecordRepo() *memoryRecordRepo {
	return &memoryRecordRepo{records: make(map[string]*ratechange.Record)}
}

func recordKey(year int, clientID string) string {
	return fmt.Sprintf("%d/%s", year, clientID)
}

func (r *memoryRecordRepo) getOrCreate(year int, clientID string) *ratechange.Record {
	key := recordKey(year, clientID)
	rec, ok := r.records[key]
	if !ok {
		rec = &ratechange.Record{
			ClientID:       clientID,
			RateChangeYear: year,
			EffectiveDate:  time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			Status:         ratechange.StatusPending,
		}
		r.records[key] = rec
	}
	return rec
}

func coalesce(existing sql.NullString, in *string) sql.NullString {
	if in != nil {
		return sql.NullString{String: *in, Valid: true}
	}
	return existing
}

func (r *memoryRecordRepo) UpsertSent(ctx context.Context, p ratechange.SentParams) (*ratechange.Record, error) {
	rec := r.getOrCreate(p.Year, p.ClientID)
	rec.ClientFirstName = coalesce(rec.ClientFirstName, p.FirstName)
	rec.ClientLastName = coalesce(rec.ClientLastName, p.LastName)
	rec.ClientEmail = coalesce(rec.ClientEmail, p.Email)
	rec.MatterIDs = p.MatterIDs
	rec.DisplayNumbers = p.DisplayNumbers
	rec.Status = ratechange.StatusSent
	rec.SentDate = sql.NullTime{Time: p.SentDate, Valid: true}
	rec.SentBy = sql.NullString{String: p.SentBy, Valid: true}
	rec.NAReason = sql.NullString{}
	rec.NANotes = sql.NullString{}
	rec.UpdatedAt = time.Now()
	return rec, nil
}

func (r *memoryRecordRepo) UpsertNotApplicable(ctx context.Context, p ratechange.NotApplicableParams) (*ratechange.Record, error) {
	rec := r.getOrCreate(p.Year, p.ClientID)
	rec.ClientFirstName = coalesce(rec.ClientFirstName, p.FirstName)
	rec.ClientLastName = coalesce(rec.ClientLastName, p.LastName)
	rec.ClientEmail = coalesce(rec.ClientEmail, p.Email)
	rec.MatterIDs = p.MatterIDs
	rec.DisplayNumbers = p.DisplayNumbers
	rec.Status = ratechange.StatusNotApplicable
	rec.SentDate = sql.NullTime{}
	rec.SentBy = sql.NullString{String: p.MarkedBy, Valid: true}
	rec.NAReason = sql.NullString{String: p.Reason, Valid: true}
	rec.NANotes = coalesce(sql.NullString{}, p.Notes)
	rec.UpdatedAt = time.Now()
	return rec, nil
}

func (r *memoryRecordRepo) MarkEscalated(ctx context.Context, year int, clientID, escalatedBy string) (*ratechange.Record, error) {
	rec := r.getOrCreate(year, clientID)
	rec.EscalatedAt = sql.NullTime{Time: time.Now(), Valid: true}
	rec.EscalatedBy = sql.NullString{String: escalatedBy, Valid: true}
	rec.UpdatedAt = time.Now()
	return rec, nil
}

func (r *memoryRecordRepo) Delete(ctx context.Context, year int, clientID string) error {
	key := recordKey(year, clientID)
	if _, ok := r.records[key]; !ok {
		return database.ErrRecordNotFound
	}
	delete(r.records, key)
	return nil
}

func (r *memoryRecordRepo) Get(ctx context.Context, year int, clientID string) (*ratechange.Record, error) {
	rec, ok := r.records[recordKey(year, clientID)]
	if !ok {
		return nil, database.ErrRecordNotFound
	}
	return rec, nil
}

func (r *memoryRecordRepo) ListByYear(ctx context.Context, year int) ([]*ratechange.Record, error) {
	out := make([]*ratechange.Record, 0)
	for _, rec := range r.records {
		if rec.RateChangeYear == year {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	raised []string
}

func (f *fakeNotifier) EscalationRaised(year int, clientID, escalatedBy string) error {
	f.raised = append(f.raised, clientID)
	return nil
}

func testRateChangeService(repo ratechange.Repository, tokens clio.TokenProvider, updater clio.FieldUpdater) (*RateChangeService, *fakeNotifier) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	entry := logrus.NewEntry(log)
	notifier := &fakeNotifier{}
	syncer := NewSyncService(tokens, updater, entry).WithDelay(0)
	return NewRateChangeService(repo, syncer, notifier, entry), notifier
}

func strPtr(s string) *string { return &s }

func TestMarkSentEndToEnd(t *testing.T) {
	repo := newMemoryRecordRepo()
	updater := &fakeUpdater{outcomes: map[string]clio.MatterSyncOutcome{
		"M1": {Success: true, Skipped: true}, // not present in Clio
	}}
	svc, _ := testRateChangeService(repo, &fakeTokenProvider{token: "tok"}, updater)

	result, err := svc.MarkSent(context.Background(), progress.Discard, MarkSentParams{
		Year:           2025,
		ClientID:       "C1",
		MatterIDs:      []string{"M1", "M2"},
		DisplayNumbers: []string{"100/001", "100/002"},
		SentBy:         "jd",
		SentDate:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NotNil(t, result.Record)
	assert.Equal(t, ratechange.StatusSent, result.Record.Status)
	assert.Equal(t, "jd", result.Record.SentBy.String)
	assert.Equal(t, "2025-06-01", result.Record.SentDate.Time.Format("2006-01-02"))

	assert.Equal(t, []string{"M1", "M2"}, updater.setCalls)
	assert.Equal(t, []string{"2025-06-01", "2025-06-01"}, updater.dates)
	assert.Equal(t, clio.BatchResult{Success: 1, Skipped: 1}, result.ClioUpdates)
}

func TestMarkSentCommitsBeforeSyncAndSurvivesAuthFailure(t *testing.T) {
	repo := newMemoryRecordRepo()
	tokens := &fakeTokenProvider{err: &clio.AuthError{Err: fmt.Errorf("invalid_grant")}}
	svc, _ := testRateChangeService(repo, tokens, &fakeUpdater{})

	result, err := svc.MarkSent(context.Background(), progress.Discard, MarkSentParams{
		Year:      2025,
		ClientID:  "C1",
		MatterIDs: []string{"M1"},
		SentBy:    "jd",
	})
	require.NoError(t, err, "CRM failure must not fail the action")

	rec, err := repo.Get(context.Background(), 2025, "C1")
	require.NoError(t, err)
	assert.Equal(t, ratechange.StatusSent, rec.Status, "committed transition is never reverted by a sync failure")
	assert.Equal(t, 1, result.ClioUpdates.Failed)
}

func TestMarkSentDefaultsSentDateToToday(t *testing.T) {
	repo := newMemoryRecordRepo()
	updater := &fakeUpdater{}
	svc, _ := testRateChangeService(repo, &fakeTokenProvider{token: "tok"}, updater)

	_, err := svc.MarkSent(context.Background(), progress.Discard, MarkSentParams{
		Year:      2025,
		ClientID:  "C1",
		MatterIDs: []string{"M1"},
		SentBy:    "jd",
	})
	require.NoError(t, err)
	require.Len(t, updater.dates, 1)
	assert.Equal(t, time.Now().Format("2006-01-02"), updater.dates[0])
}

func TestMarkNotApplicableClearsSentFields(t *testing.T) {
	repo := newMemoryRecordRepo()
	svc, _ := testRateChangeService(repo, &fakeTokenProvider{token: "tok"}, &fakeUpdater{})
	ctx := context.Background()

	_, err := svc.MarkSent(ctx, progress.Discard, MarkSentParams{
		Year: 2025, ClientID: "C1", SentBy: "jd",
		SentDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	result, err := svc.MarkNotApplicable(ctx, progress.Discard, MarkNotApplicableParams{
		Year: 2025, ClientID: "C1", Reason: "ceased instruction", MarkedBy: "jd",
	})
	require.NoError(t, err)

	rec := result.Record
	assert.Equal(t, ratechange.StatusNotApplicable, rec.Status)
	assert.False(t, rec.SentDate.Valid, "sent_date cleared on transition to not_applicable")
	assert.Equal(t, "ceased instruction", rec.NAReason.String)

	// And back: marking sent again clears the na_* fields.
	result, err = svc.MarkSent(ctx, progress.Discard, MarkSentParams{
		Year: 2025, ClientID: "C1", SentBy: "jd",
		SentDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.False(t, result.Record.NAReason.Valid)
	assert.False(t, result.Record.NANotes.Valid)
	assert.True(t, result.Record.SentDate.Valid)
}

func TestMarkNotApplicablePreservesContactSnapshotOnNilInput(t *testing.T) {
	repo := newMemoryRecordRepo()
	svc, _ := testRateChangeService(repo, &fakeTokenProvider{token: "tok"}, &fakeUpdater{})
	ctx := context.Background()

	_, err := svc.MarkSent(ctx, progress.Discard, MarkSentParams{
		Year: 2025, ClientID: "C1", SentBy: "jd",
		FirstName: strPtr("Ada"), Email: strPtr("ada@example.com"),
	})
	require.NoError(t, err)

	result, err := svc.MarkNotApplicable(ctx, progress.Discard, MarkNotApplicableParams{
		Year: 2025, ClientID: "C1", Reason: "ceased instruction", MarkedBy: "jd",
		Email: strPtr("ada@new.example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", result.Record.ClientFirstName.String, "nil input preserves stored value")
	assert.Equal(t, "ada@new.example.com", result.Record.ClientEmail.String, "non-nil input overwrites")
}

func TestMarkNotApplicableWithNoMattersSkipsSyncEntirely(t *testing.T) {
	repo := newMemoryRecordRepo()
	tokens := &fakeTokenProvider{token: "tok"}
	updater := &fakeUpdater{}
	svc, _ := testRateChangeService(repo, tokens, updater)
	rec := &progress.Recorder{}

	result, err := svc.MarkNotApplicable(context.Background(), rec, MarkNotApplicableParams{
		Year: 2025, ClientID: "C2", Reason: "ceased instruction", MarkedBy: "jd",
	})
	require.NoError(t, err)

	assert.Equal(t, clio.BatchResult{}, result.ClioUpdates)
	assert.Zero(t, tokens.calls, "no network calls for a client with no matters")
	assert.Empty(t, updater.setCalls)

	events := rec.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, progress.TypeComplete, events[len(events)-1].Kind(), "stream still terminates with complete")
}

func TestMarkNotApplicableRequiresReason(t *testing.T) {
	svc, _ := testRateChangeService(newMemoryRecordRepo(), &fakeTokenProvider{token: "tok"}, &fakeUpdater{})

	_, err := svc.MarkNotApplicable(context.Background(), progress.Discard, MarkNotApplicableParams{
		Year: 2025, ClientID: "C1", MarkedBy: "jd",
	})
	assert.ErrorIs(t, err, ErrNAReasonRequired)
}

func TestUndoDeletesRecordAndClearsMatters(t *testing.T) {
	repo := newMemoryRecordRepo()
	updater := &fakeUpdater{}
	svc, _ := testRateChangeService(repo, &fakeTokenProvider{token: "tok"}, updater)
	ctx := context.Background()

	_, err := svc.MarkSent(ctx, progress.Discard, MarkSentParams{
		Year: 2025, ClientID: "C1", SentBy: "jd",
		MatterIDs: []string{"M1", "M2"}, DisplayNumbers: []string{"100/001", "100/002"},
	})
	require.NoError(t, err)

	result, err := svc.Undo(ctx, progress.Discard, 2025, "C1")
	require.NoError(t, err)
	assert.Nil(t, result.Record)
	assert.Equal(t, []string{"M1", "M2"}, updater.clears)

	_, err = repo.Get(ctx, 2025, "C1")
	assert.ErrorIs(t, err, database.ErrRecordNotFound, "revert removes the record entirely")
}

func TestUndoWithoutRecordFails(t *testing.T) {
	svc, _ := testRateChangeService(newMemoryRecordRepo(), &fakeTokenProvider{token: "tok"}, &fakeUpdater{})

	_, err := svc.Undo(context.Background(), progress.Discard, 2025, "C-unknown")
	assert.ErrorIs(t, err, database.ErrRecordNotFound)
}

func TestEscalateIsIndependentOfStatus(t *testing.T) {
	repo := newMemoryRecordRepo()
	svc, notifier := testRateChangeService(repo, &fakeTokenProvider{token: "tok"}, &fakeUpdater{})

	rec, err := svc.Escalate(context.Background(), 2025, "C1", "partner-a")
	require.NoError(t, err)
	assert.Equal(t, ratechange.StatusPending, rec.Status, "escalation does not change status")
	assert.True(t, rec.EscalatedAt.Valid)
	assert.Equal(t, "partner-a", rec.EscalatedBy.String)
	assert.Equal(t, []string{"C1"}, notifier.raised)
}

func TestMarkSentRequiresClientID(t *testing.T) {
	svc, _ := testRateChangeService(newMemoryRecordRepo(), &fakeTokenProvider{token: "tok"}, &fakeUpdater{})

	_, err := svc.MarkSent(context.Background(), progress.Discard, MarkSentParams{Year: 2025})
	assert.ErrorIs(t, err, ErrClientIDRequired)
}
