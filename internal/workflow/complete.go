package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/playperu/partyquest/internal/offline"
	"github.com/playperu/partyquest/internal/photos"
	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/retry"
)

// Result describes a completion as the player sees it.
type Result struct {
	Task          quest.BingoTask  `json:"task"`
	State         State            `json:"state"`
	Sync          quest.SyncStatus `json:"sync"`
	PhotoSync     quest.SyncStatus `json:"photoSync,omitempty"`
	PhotoWarning  string           `json:"photoWarning,omitempty"`
	Earned        int              `json:"earned"`
	CreditWarning string           `json:"creditWarning,omitempty"`
	Snapshot      quest.Snapshot   `json:"snapshot"`
}

type completionPayload struct {
	SessionID   string    `json:"sessionId"`
	UserName    string    `json:"userName"`
	Position    int       `json:"position"`
	PhotoURL    string    `json:"photoUrl,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
	Skipped     bool      `json:"skipped,omitempty"`
}

type photoPayload struct {
	SessionID string `json:"sessionId"`
	UserName  string `json:"userName"`
	Position  int    `json:"position"`
	Name      string `json:"name"`
	Data      []byte `json:"data"`
}

// Complete finishes the task at pos with an optional photo. A store write
// failure returns the task to OPEN without credit. When the store is
// unreachable the completion is queued and reported with sync status
// pending; its credit follows on replay.
func (s *Service) Complete(ctx context.Context, sc quest.SessionContext, pos int, photo []byte) (Result, error) {
	if err := sc.Validate(); err != nil {
		return Result{}, err
	}
	if !quest.ValidPosition(pos) {
		return Result{}, quest.ErrInvalidPosition
	}
	if err := s.begin(sc.ID, pos); err != nil {
		return Result{}, err
	}
	defer s.finish(sc.ID)

	prev, task, reachable, err := s.load(ctx, sc, pos)
	if err != nil {
		return Result{}, err
	}
	now := s.now()
	res := Result{State: StateDone, Sync: quest.SyncSynced}

	var photoURL string
	if len(photo) > 0 {
		photoURL = s.uploadPhoto(ctx, sc, pos, task.ID, photo, now, &res)
	}

	payload := completionPayload{SessionID: sc.ID, UserName: sc.UserName, Position: pos, PhotoURL: photoURL, CompletedAt: now}
	if !reachable {
		return s.hold(ctx, payload, task, res)
	}

	done, err := retry.Value(ctx, s.cfg.Write, func(ctx context.Context) (quest.BingoTask, error) {
		return s.store.CompleteTask(ctx, sc, pos, photoURL, now)
	})
	switch {
	case err == nil:
	case retry.Transient(err):
		return s.hold(ctx, payload, task, res)
	default:
		s.logger.Warn("task completion failed", "session_id", sc.ID, "position", pos, "error", err)
		return Result{}, fmt.Errorf("completing task %d: %w", pos, err)
	}

	res.Task = done
	res.Earned, res.Snapshot, res.CreditWarning = s.credit(ctx, sc, quest.GridOf(prev), pos, "Bingo: "+done.Title)
	s.logger.Info("task completed", "session_id", sc.ID, "position", pos, "earned", res.Earned)
	return res, nil
}

// Skip completes the task at pos without a photo using the purchased skip
// item. The skip can be used once per session.
func (s *Service) Skip(ctx context.Context, sc quest.SessionContext, pos int) (Result, error) {
	if err := sc.Validate(); err != nil {
		return Result{}, err
	}
	if !quest.ValidPosition(pos) {
		return Result{}, quest.ErrInvalidPosition
	}
	if err := s.begin(sc.ID, pos); err != nil {
		return Result{}, err
	}
	defer s.finish(sc.ID)

	// An unreachable store leaves the purchase to be checked on replay.
	bought, err := s.boughtSkip(ctx, sc)
	unchecked := retry.Transient(err)
	if err != nil && !unchecked {
		return Result{}, err
	}
	if !bought && !unchecked {
		return Result{}, quest.ErrSkipUnavailable
	}
	used, err := s.skips.SkipUsed(ctx, sc.ID)
	if err != nil {
		return Result{}, err
	}
	if used {
		return Result{}, quest.ErrSkipUnavailable
	}

	var (
		prev      []quest.BingoTask
		task      = quest.BingoTask{SessionID: sc.ID, Position: pos}
		reachable bool
	)
	if !unchecked {
		if prev, task, reachable, err = s.load(ctx, sc, pos); err != nil {
			return Result{}, err
		}
	}
	now := s.now()
	res := Result{State: StateSkippedDone, Sync: quest.SyncSynced}
	payload := completionPayload{SessionID: sc.ID, UserName: sc.UserName, Position: pos, CompletedAt: now, Skipped: true}

	var done quest.BingoTask
	if reachable {
		done, err = retry.Value(ctx, s.cfg.Write, func(ctx context.Context) (quest.BingoTask, error) {
			return s.store.CompleteTask(ctx, sc, pos, "", now)
		})
		if err != nil && !retry.Transient(err) {
			return Result{}, fmt.Errorf("skipping task %d: %w", pos, err)
		}
		reachable = err == nil
	}

	if err := s.skips.MarkSkipUsed(ctx, sc.ID); err != nil {
		s.logger.Warn("marking skip used failed", "session_id", sc.ID, "error", err)
	}
	if !reachable {
		return s.hold(ctx, payload, task, res)
	}

	res.Task = done
	res.Earned, res.Snapshot, res.CreditWarning = s.credit(ctx, sc, quest.GridOf(prev), pos, "Bingo (skip): "+done.Title)
	s.logger.Info("task skipped", "session_id", sc.ID, "position", pos, "earned", res.Earned)
	return res, nil
}

func (s *Service) boughtSkip(ctx context.Context, sc quest.SessionContext) (bool, error) {
	return retry.Value(ctx, s.cfg.Write, func(ctx context.Context) (bool, error) {
		return s.store.HasPurchased(ctx, sc, quest.SkipItemID)
	})
}

// SkipAvailable reports whether the skip item was bought and not used yet.
func (s *Service) SkipAvailable(ctx context.Context, sc quest.SessionContext) (bool, error) {
	bought, err := s.boughtSkip(ctx, sc)
	if err != nil || !bought {
		return false, err
	}
	used, err := s.skips.SkipUsed(ctx, sc.ID)
	return !used, err
}

// load reads the tasks before a completion. reachable is false when the
// store could not be reached; prev and task are then empty.
func (s *Service) load(ctx context.Context, sc quest.SessionContext, pos int) (prev []quest.BingoTask, task quest.BingoTask, reachable bool, err error) {
	prev, err = s.tasks(ctx, sc)
	if retry.Transient(err) {
		return nil, quest.BingoTask{SessionID: sc.ID, Position: pos}, false, nil
	}
	if err != nil {
		return nil, quest.BingoTask{}, false, err
	}
	for _, t := range prev {
		if t.Position == pos {
			task = t
		}
	}
	if task.ID == "" {
		return nil, quest.BingoTask{}, false, quest.ErrInvalidPosition
	}
	if task.Completed {
		return nil, quest.BingoTask{}, false, quest.ErrTaskCompleted
	}
	return prev, task, true, nil
}

func (s *Service) uploadPhoto(ctx context.Context, sc quest.SessionContext, pos int, taskID string, photo []byte, now time.Time, res *Result) string {
	if taskID == "" {
		taskID = fmt.Sprintf("%s-%d", sc.ID, pos)
	}
	name := photos.Key("bingo", taskID, now)

	url, err := retry.Value(ctx, s.cfg.Upload, func(ctx context.Context) (string, error) {
		return s.photos.Upload(ctx, name, photo)
	})
	switch {
	case err == nil:
		res.PhotoSync = quest.SyncSynced
		return url
	case retry.Transient(err):
		p := photoPayload{SessionID: sc.ID, UserName: sc.UserName, Position: pos, Name: name, Data: photo}
		// Only the bucket failed; the store may well be reachable.
		if _, qerr := s.queue.Enqueue(ctx, offline.PhotoUpload, p); qerr != nil {
			s.logger.Warn("queueing photo failed", "session_id", sc.ID, "position", pos, "error", qerr)
			res.PhotoWarning = "photo could not be saved"
			return ""
		}
		res.PhotoSync = quest.SyncPending
	default:
		s.logger.Warn("photo upload failed, completing without photo", "session_id", sc.ID, "position", pos, "error", err)
		res.PhotoWarning = "photo could not be uploaded"
	}
	return ""
}

// hold queues a completion the store could not take and reports it as
// tentatively done.
func (s *Service) hold(ctx context.Context, p completionPayload, task quest.BingoTask, res Result) (Result, error) {
	if _, err := s.queue.Hold(ctx, offline.TaskCompletion, p); err != nil {
		return Result{}, fmt.Errorf("queueing completion: %w", err)
	}
	at := p.CompletedAt
	task.Completed = true
	task.CompletedAt = &at
	task.PhotoURL = p.PhotoURL
	res.Task = task
	res.Sync = quest.SyncPending
	s.logger.Info("task completion queued", "session_id", p.SessionID, "position", p.Position)
	return res, nil
}

// credit adds the earned delta of completing pos on prev to the ledger and
// records it in the history. Failures are logged and reported, never rolled
// back.
func (s *Service) credit(ctx context.Context, sc quest.SessionContext, prev quest.Grid, pos int, description string) (int, quest.Snapshot, string) {
	next := quest.Evaluate(prev.With(pos))
	delta := quest.Delta(quest.Evaluate(prev), next)
	if delta == 0 {
		return 0, next, ""
	}

	if _, err := s.ledger.AddPoints(ctx, sc, delta); err != nil {
		s.logger.Warn("crediting points failed", "session_id", sc.ID, "amount", delta, "error", err)
		return delta, next, "points could not be credited"
	}
	entry := quest.PointsHistoryEntry{ID: ulid.Make().String(), Type: quest.TransactionEarned, Amount: delta, Description: description}
	_, err := retry.Value(ctx, s.cfg.Write, func(ctx context.Context) (quest.PointsHistoryEntry, error) {
		return s.store.AppendHistory(ctx, sc, entry)
	})
	if err != nil {
		s.logger.Warn("recording history failed", "session_id", sc.ID, "amount", delta, "error", err)
	}
	return delta, next, ""
}
