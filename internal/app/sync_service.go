package app

import (
	"context"
	"fmt"
	"time"

	"rate_change_notifier/internal/app/progress"
	"rate_change_notifier/internal/domain/clio"

	"github.com/sirupsen/logrus"
)

// defaultInterMatterDelay is the pause between matter updates. The Clio API
// rate-limits per client, so the batch is strictly sequential with a small
// gap rather than fanned out.
const defaultInterMatterDelay = 100 * time.Millisecond

// MatterSyncer mirrors a derived date value into the CRM for a list of
// matters, reporting per-item lifecycle through the emitter.
type MatterSyncer interface {
	SyncMatters(ctx context.Context, emitter progress.Emitter, matterIDs, displayNumbers []string, dateValue string) clio.BatchResult
	ClearMatters(ctx context.Context, emitter progress.Emitter, matterIDs, displayNumbers []string) clio.BatchResult
}

// SyncService is the batch orchestrator. It acquires one access token per
// batch, walks the input in order, and never lets one bad matter abort the
// rest of the run.
type SyncService struct {
	tokens  clio.TokenProvider
	updater clio.FieldUpdater
	delay   time.Duration
	log     *logrus.Entry
}

func NewSyncService(tokens clio.TokenProvider, updater clio.FieldUpdater, log *logrus.Entry) *SyncService {
	return &SyncService{
		tokens:  tokens,
		updater: updater,
		delay:   defaultInterMatterDelay,
		log:     log,
	}
}

// WithDelay overrides the inter-matter pause. Tests use this to avoid
// sleeping through real delays.
func (s *SyncService) WithDelay(d time.Duration) *SyncService {
	s.delay = d
	return s
}

func (s *SyncService) SyncMatters(ctx context.Context, emitter progress.Emitter, matterIDs, displayNumbers []string, dateValue string) clio.BatchResult {
	return s.run(ctx, emitter, matterIDs, displayNumbers, func(ctx context.Context, matterID, displayNumber, token string) clio.MatterSyncOutcome {
		return s.updater.SetRateChangeDate(ctx, matterID, displayNumber, dateValue, token)
	})
}

func (s *SyncService) ClearMatters(ctx context.Context, emitter progress.Emitter, matterIDs, displayNumbers []string) clio.BatchResult {
	return s.run(ctx, emitter, matterIDs, displayNumbers, func(ctx context.Context, matterID, displayNumber, token string) clio.MatterSyncOutcome {
		return s.updater.ClearRateChangeDate(ctx, matterID, displayNumber, token)
	})
}

func (s *SyncService) run(ctx context.Context, emitter progress.Emitter, matterIDs, displayNumbers []string, update func(ctx context.Context, matterID, displayNumber, token string) clio.MatterSyncOutcome) clio.BatchResult {
	result := clio.BatchResult{}
	total := len(matterIDs)
	if total == 0 {
		return result
	}

	emitter.Emit(progress.NewProgress("Authenticating with Clio"))
	token, err := s.tokens.AcquireToken(ctx)
	if err != nil {
		// A token failure fails the whole batch; the auth error is
		// recorded once rather than per matter.
		s.log.Errorf("Failed to acquire Clio access token: %v", err)
		emitter.Emit(progress.NewError(err.Error()))
		result.Failed = total
		result.Errors = append(result.Errors, clio.SyncError{DisplayNumber: "batch", Message: err.Error()})
		return result
	}

	emitter.Emit(progress.NewProgress(fmt.Sprintf("Updating %d matters in Clio", total)))

	for i, matterID := range matterIDs {
		displayNumber := displayNumberAt(displayNumbers, i, matterID)

		if ctx.Err() != nil {
			// Consumer went away; stop burning rate-limited quota and
			// record the remaining matters as failed.
			s.log.Warnf("Sync canceled with %d of %d matters remaining", total-i, total)
			for j := i; j < total; j++ {
				result.Failed++
				result.Errors = append(result.Errors, clio.SyncError{
					DisplayNumber: displayNumberAt(displayNumbers, j, matterIDs[j]),
					Message:       "canceled",
				})
			}
			break
		}

		emitter.Emit(progress.NewMatterStart(i, matterID, displayNumber, total))

		outcome := update(ctx, matterID, displayNumber, token)
		switch {
		case outcome.Skipped:
			result.Skipped++
		case outcome.Success:
			result.Success++
		default:
			result.Failed++
			result.Errors = append(result.Errors, clio.SyncError{DisplayNumber: displayNumber, Message: outcome.Error})
			s.log.WithFields(logrus.Fields{"matter_id": matterID, "display_number": displayNumber}).
				Errorf("Matter update failed: %s", outcome.Error)
		}

		emitter.Emit(progress.NewMatterComplete(matterID, displayNumber, outcome, progress.Tally{
			Success: result.Success,
			Failed:  result.Failed,
			Skipped: result.Skipped,
			Total:   total,
		}))

		if i < total-1 {
			if err := sleepContext(ctx, s.delay); err != nil {
				continue // loop top records the remainder as canceled
			}
		}
	}

	s.log.Infof("Clio sync finished: %d succeeded, %d failed, %d skipped of %d",
		result.Success, result.Failed, result.Skipped, total)
	return result
}

func displayNumberAt(displayNumbers []string, i int, fallback string) string {
	if i < len(displayNumbers) && displayNumbers[i] != "" {
		return displayNumbers[i]
	}
	return fallback
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
