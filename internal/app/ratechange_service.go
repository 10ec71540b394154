package app

import (
	"context"
	"fmt"
	"time"

	"rate_change_notifier/internal/app/progress"
	"rate_change_notifier/internal/domain/alert"
	"rate_change_notifier/internal/domain/clio"
	"rate_change_notifier/internal/domain/ratechange"

	"github.com/sirupsen/logrus"
)

// NotApplicableDateValue is the distinguished literal written into the CRM
// field when a client is marked not applicable. The Clio date field cannot
// represent "intentionally blank" separately from "never set", so this
// epoch marker stands in for it.
const NotApplicableDateValue = "1970-01-01"

const dateLayout = "2006-01-02"

var (
	ErrClientIDRequired = fmt.Errorf("client_id is required")
	ErrNAReasonRequired = fmt.Errorf("na_reason is required")
)

// ActionResult is what each state-changing action returns: the definitive
// record transition plus the best-effort CRM sync summary.
type ActionResult struct {
	Record      *ratechange.Record
	ClioUpdates clio.BatchResult
}

// MarkSentParams are the inputs to MarkSent. SentDate is optional; zero
// means today.
type MarkSentParams struct {
	Year           int
	ClientID       string
	FirstName      *string
	LastName       *string
	Email          *string
	MatterIDs      []string
	DisplayNumbers []string
	SentBy         string
	SentDate       time.Time
}

// MarkNotApplicableParams are the inputs to MarkNotApplicable. Reason is
// required.
type MarkNotApplicableParams struct {
	Year           int
	ClientID       string
	FirstName      *string
	LastName       *string
	Email          *string
	MatterIDs      []string
	DisplayNumbers []string
	Reason         string
	Notes          *string
	MarkedBy       string
}

// RateChangeService implements the three operator actions plus escalation.
// Every action commits its record transition first; the CRM mirror that
// follows is best-effort and its failure never reverts the transition.
type RateChangeService struct {
	repo     ratechange.Repository
	syncer   MatterSyncer
	notifier alert.Notifier // optional, may be nil
	log      *logrus.Entry
}

func NewRateChangeService(repo ratechange.Repository, syncer MatterSyncer, notifier alert.Notifier, log *logrus.Entry) *RateChangeService {
	return &RateChangeService{
		repo:     repo,
		syncer:   syncer,
		notifier: notifier,
		log:      log,
	}
}

// MarkSent records that the client's rate-change letter went out, then
// mirrors the sent date into every covered matter's CRM field.
func (s *RateChangeService) MarkSent(ctx context.Context, emitter progress.Emitter, p MarkSentParams) (*ActionResult, error) {
	if p.ClientID == "" {
		return nil, ErrClientIDRequired
	}
	sentDate := p.SentDate
	if sentDate.IsZero() {
		now := time.Now()
		sentDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	emitter.Emit(progress.NewProgress("Updating database"))
	record, err := s.repo.UpsertSent(ctx, ratechange.SentParams{
		Year:           p.Year,
		ClientID:       p.ClientID,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Email:          p.Email,
		MatterIDs:      p.MatterIDs,
		DisplayNumbers: p.DisplayNumbers,
		SentBy:         p.SentBy,
		SentDate:       sentDate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record sent status for client %s: %w", p.ClientID, err)
	}
	s.log.Infof("Client %s marked sent for %d by %s (%d matters)", p.ClientID, p.Year, p.SentBy, len(p.MatterIDs))

	batch := s.syncer.SyncMatters(ctx, emitter, p.MatterIDs, p.DisplayNumbers, sentDate.Format(dateLayout))
	emitter.Emit(progress.NewComplete(batch))

	return &ActionResult{Record: record, ClioUpdates: batch}, nil
}

// MarkNotApplicable records that no rate-change letter is needed, then
// writes the epoch marker into every covered matter's CRM field.
func (s *RateChangeService) MarkNotApplicable(ctx context.Context, emitter progress.Emitter, p MarkNotApplicableParams) (*ActionResult, error) {
	if p.ClientID == "" {
		return nil, ErrClientIDRequired
	}
	if p.Reason == "" {
		return nil, ErrNAReasonRequired
	}

	emitter.Emit(progress.NewProgress("Updating database"))
	record, err := s.repo.UpsertNotApplicable(ctx, ratechange.NotApplicableParams{
		Year:           p.Year,
		ClientID:       p.ClientID,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Email:          p.Email,
		MatterIDs:      p.MatterIDs,
		DisplayNumbers: p.DisplayNumbers,
		Reason:         p.Reason,
		Notes:          p.Notes,
		MarkedBy:       p.MarkedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record not-applicable status for client %s: %w", p.ClientID, err)
	}
	s.log.Infof("Client %s marked not applicable for %d by %s: %s", p.ClientID, p.Year, p.MarkedBy, p.Reason)

	batch := s.syncer.SyncMatters(ctx, emitter, p.MatterIDs, p.DisplayNumbers, NotApplicableDateValue)
	emitter.Emit(progress.NewComplete(batch))

	return &ActionResult{Record: record, ClioUpdates: batch}, nil
}

// Undo hard-deletes the record, reverting the client to implicit pending,
// then clears the CRM field on every matter the record covered. The delete
// also discards escalation history; that is the recorded product behavior.
func (s *RateChangeService) Undo(ctx context.Context, emitter progress.Emitter, year int, clientID string) (*ActionResult, error) {
	if clientID == "" {
		return nil, ErrClientIDRequired
	}

	record, err := s.repo.Get(ctx, year, clientID)
	if err != nil {
		return nil, err
	}

	emitter.Emit(progress.NewProgress("Updating database"))
	if err := s.repo.Delete(ctx, year, clientID); err != nil {
		return nil, fmt.Errorf("failed to revert client %s: %w", clientID, err)
	}
	if record.EscalatedAt.Valid {
		s.log.Warnf("Revert of client %s for %d discarded escalation history (escalated %s by %s)",
			clientID, year, record.EscalatedAt.Time.Format(dateLayout), record.EscalatedBy.String)
	}
	s.log.Infof("Client %s reverted to pending for %d", clientID, year)

	batch := s.syncer.ClearMatters(ctx, emitter, record.MatterIDs, record.DisplayNumbers)
	emitter.Emit(progress.NewComplete(batch))

	return &ActionResult{Record: nil, ClioUpdates: batch}, nil
}

// Escalate records the escalation side channel; status is untouched and no
// CRM sync happens. The partner alert is fire-and-forget.
func (s *RateChangeService) Escalate(ctx context.Context, year int, clientID, escalatedBy string) (*ratechange.Record, error) {
	if clientID == "" {
		return nil, ErrClientIDRequired
	}

	record, err := s.repo.MarkEscalated(ctx, year, clientID, escalatedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to escalate client %s: %w", clientID, err)
	}
	s.log.Infof("Client %s escalated for %d by %s", clientID, year, escalatedBy)

	if s.notifier != nil {
		if err := s.notifier.EscalationRaised(year, clientID, escalatedBy); err != nil {
			s.log.Errorf("Failed to send escalation alert for client %s: %v", clientID, err)
		}
	}
	return record, nil
}
