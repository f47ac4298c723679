package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/shift-scheduler/calendar"
	"github.com/warp/shift-scheduler/schedule"
)

// =============================================================================
// BATCH OPERATIONS - publish view, copy week
// =============================================================================
//
// Both run sequentially over the shifts in view. One failing shift does not
// stop the run; failures are collected per item. StopBatch (or cancelling
// ctx) stops the run between items. Only one batch runs at a time.

// Progress is the live state of a batch run.
type Progress struct {
	RunID       string          `json:"run_id"`
	Kind        BatchKind       `json:"kind"`
	Total       int             `json:"total"`
	Processed   int             `json:"processed"`
	Succeeded   int             `json:"succeeded"`
	Failures    []ItemError     `json:"failures,omitempty"`
	Percent     decimal.Decimal `json:"percent"`
	Stopped     bool            `json:"stopped"`
	Done        bool            `json:"done"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
}

func (p Progress) clone() Progress {
	p.Failures = append([]ItemError(nil), p.Failures...)
	return p
}

type batchState struct {
	progress Progress
	window   calendar.ViewWindow
	stop     atomic.Bool
}

var hundred = decimal.NewFromInt(100)

func percent(done, total int) decimal.Decimal {
	if total == 0 {
		return hundred
	}
	return decimal.NewFromInt(int64(done)).Mul(hundred).Div(decimal.NewFromInt(int64(total))).Round(1)
}

// PublishView publishes every Not Published and Re-Publish shift in view.
func (s *Service) PublishView(ctx context.Context) (Progress, error) {
	window, ok := s.state.Window()
	if !ok {
		return Progress{}, ErrNoView
	}
	targets := schedule.UnpublishedInView(s.state.Shifts(), window)

	b, err := s.startBatch(ctx, BatchPublish, len(targets), window)
	if err != nil {
		return Progress{}, err
	}

	var published []string
	for _, sh := range targets {
		if s.shouldStop(ctx, b) {
			break
		}
		err := s.source.PublishShift(ctx, sh.ID)
		if err == nil {
			published = append(published, sh.ID)
		}
		s.step(b, sh, err)
	}
	s.state.SetPublished(published...)

	p := s.finishBatch(ctx, b)
	s.refreshAfterWrite()
	return p, nil
}

// CopyWeek duplicates every shift in view seven days later as Not
// Published. Targets already taken by the same employee are reported as
// failures instead of being duplicated. Creates are paced by CopyDelay.
func (s *Service) CopyWeek(ctx context.Context) (Progress, error) {
	window, ok := s.state.Window()
	if !ok {
		return Progress{}, ErrNoView
	}
	sources := schedule.ShiftsInView(s.state.Shifts(), window)

	from := window.Start.AddDate(0, 0, 7).Format(calendar.DayLayout)
	to := window.AdjustedEnd.AddDate(0, 0, 7).Format(calendar.DayLayout)
	existing, err := s.source.FetchShifts(ctx, from, to)
	if err != nil {
		return Progress{}, fmt.Errorf("copy week: load target week: %w", err)
	}
	occupied := make(map[string]bool, len(existing))
	for _, sh := range existing {
		occupied[sh.ResourceID+"|"+sh.Day()] = true
	}

	b, err := s.startBatch(ctx, BatchCopy, len(sources), window)
	if err != nil {
		return Progress{}, err
	}

	for _, sh := range sources {
		if s.shouldStop(ctx, b) {
			break
		}
		target, err := calendar.AddDays(sh.Start, 7)
		if err != nil {
			s.step(b, sh, err)
			continue
		}
		key := sh.ResourceID + "|" + target.Format(calendar.DayLayout)
		if occupied[key] {
			s.step(b, sh, fmt.Errorf("%s: %w", target.Format(calendar.DayLayout), schedule.ErrShiftConflict))
			continue
		}

		_, err = s.source.CreateShift(ctx, schedule.Shift{
			ResourceID:    sh.ResourceID,
			PositionID:    sh.PositionID,
			Start:         target,
			PublishStatus: schedule.StatusNotPublished,
			Tags:          sh.Tags,
			Notes:         sh.Notes,
		})
		s.step(b, sh, err)
		if err != nil {
			continue
		}
		occupied[key] = true
		if err := s.clock.Sleep(ctx, s.cfg.CopyDelay); err != nil {
			break
		}
	}

	p := s.finishBatch(ctx, b)
	s.refreshAfterWrite()
	return p, nil
}

// StopBatch asks the running batch to stop after the current item. It
// reports whether a batch was running.
func (s *Service) StopBatch() bool {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	if s.batch == nil {
		return false
	}
	s.batch.stop.Store(true)
	return true
}

// BatchStatus returns the running batch, or the last finished one.
func (s *Service) BatchStatus() (Progress, bool) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	if s.batch != nil {
		return s.batch.progress.clone(), true
	}
	if s.last != nil {
		return s.last.clone(), true
	}
	return Progress{}, false
}

// BatchHistory lists persisted runs, newest first.
func (s *Service) BatchHistory(ctx context.Context, limit int) ([]BatchRun, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.ListRuns(ctx, limit)
}

func (s *Service) startBatch(ctx context.Context, kind BatchKind, total int, window calendar.ViewWindow) (*batchState, error) {
	s.batchMu.Lock()
	if s.batch != nil {
		s.batchMu.Unlock()
		return nil, ErrBatchRunning
	}
	b := &batchState{
		window: window,
		progress: Progress{
			RunID:     uuid.NewString(),
			Kind:      kind,
			Total:     total,
			Percent:   decimal.Zero,
			StartedAt: s.clock.Now(),
		},
	}
	s.batch = b
	s.batchMu.Unlock()

	s.log.Info("batch started", zap.String("run", b.progress.RunID), zap.String("kind", string(kind)), zap.Int("total", total))
	s.saveRun(ctx, b)
	return b, nil
}

func (s *Service) shouldStop(ctx context.Context, b *batchState) bool {
	if !b.stop.Load() && ctx.Err() == nil {
		return false
	}
	s.batchMu.Lock()
	b.progress.Stopped = true
	s.batchMu.Unlock()
	return true
}

func (s *Service) step(b *batchState, sh schedule.Shift, err error) {
	s.batchMu.Lock()
	b.progress.Processed++
	if err == nil {
		b.progress.Succeeded++
	} else {
		b.progress.Failures = append(b.progress.Failures, ItemError{
			ShiftID:    sh.ID,
			ResourceID: sh.ResourceID,
			Message:    err.Error(),
		})
	}
	b.progress.Percent = percent(b.progress.Processed, b.progress.Total)
	snapshot := b.progress.clone()
	s.batchMu.Unlock()

	if err != nil {
		s.log.Warn("batch item failed",
			zap.String("run", snapshot.RunID),
			zap.String("shift", sh.ID),
			zap.Error(err))
	}
	if s.onProgress != nil {
		s.onProgress(snapshot)
	}
}

func (s *Service) finishBatch(ctx context.Context, b *batchState) Progress {
	s.batchMu.Lock()
	b.progress.Done = true
	b.progress.CompletedAt = s.clock.Now()
	if !b.progress.Stopped {
		b.progress.Percent = percent(b.progress.Total, b.progress.Total)
	}
	p := b.progress.clone()
	s.last = &p
	s.batch = nil
	s.batchMu.Unlock()

	s.log.Info("batch finished",
		zap.String("run", p.RunID),
		zap.String("kind", string(p.Kind)),
		zap.Int("succeeded", p.Succeeded),
		zap.Int("failed", len(p.Failures)),
		zap.Bool("stopped", p.Stopped))
	s.saveRun(context.WithoutCancel(ctx), b)
	return p
}

func (s *Service) saveRun(ctx context.Context, b *batchState) {
	if s.runs == nil {
		return
	}
	s.batchMu.Lock()
	p := b.progress
	s.batchMu.Unlock()

	run := BatchRun{
		ID:          p.RunID,
		Kind:        p.Kind,
		ViewStart:   b.window.StartStr,
		ViewEnd:     b.window.EndStr,
		Total:       p.Total,
		Succeeded:   p.Succeeded,
		Failed:      len(p.Failures),
		Stopped:     p.Stopped,
		StartedAt:   p.StartedAt,
		CompletedAt: p.CompletedAt,
	}
	if err := s.runs.SaveRun(ctx, run); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("saving batch run failed", zap.String("run", run.ID), zap.Error(err))
	}
}
