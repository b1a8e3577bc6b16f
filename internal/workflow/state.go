package workflow

import (
	"context"
	"encoding/json"

	"github.com/playperu/partyquest/internal/offline"
	"github.com/playperu/partyquest/internal/quest"
)

type TaskView struct {
	quest.BingoTask
	Color quest.Color      `json:"color"`
	Star  bool             `json:"star"`
	Sync  quest.SyncStatus `json:"sync"`
}

// View is the whole bingo state of a session.
type View struct {
	Tasks         []TaskView        `json:"tasks"`
	Snapshot      quest.Snapshot    `json:"snapshot"`
	Bonus         quest.BonusStatus `json:"bonus"`
	Balance       int               `json:"balance"`
	PendingTask   *int              `json:"pendingTask,omitempty"`
	PendingState  State             `json:"pendingState,omitempty"`
	SkipAvailable bool              `json:"skipAvailable"`
	Sync          quest.SyncStatus  `json:"sync"`
}

// RecomputeState rebuilds the bingo state from the store. Completions still
// waiting in the offline queue show as done with sync status pending. It is
// the single refresh path after a completion, an admin reset or an app
// resume.
func (s *Service) RecomputeState(ctx context.Context, sc quest.SessionContext) (View, error) {
	if err := sc.Validate(); err != nil {
		return View{}, err
	}
	tasks, err := s.tasks(ctx, sc)
	if err != nil {
		return View{}, err
	}
	queued := s.queuedCompletions(ctx, sc.ID)

	v := View{Tasks: make([]TaskView, 0, len(tasks)), Sync: quest.SyncSynced}
	for _, t := range tasks {
		tv := TaskView{BingoTask: t, Color: quest.ColorOf(t.Position), Star: quest.IsStar(t.Position), Sync: quest.SyncSynced}
		if p, ok := queued[t.Position]; ok && !t.Completed {
			at := p.CompletedAt
			tv.Completed = true
			tv.CompletedAt = &at
			tv.Sync = quest.SyncPending
			v.Sync = quest.SyncPending
		}
		v.Tasks = append(v.Tasks, tv)
	}

	var g quest.Grid
	for _, t := range v.Tasks {
		if t.Completed && quest.ValidPosition(t.Position) {
			g[t.Position] = true
		}
	}
	v.Snapshot = quest.Evaluate(g)
	v.Bonus = quest.Status(g)

	if v.Balance, err = s.ledger.GetCurrentPoints(ctx, sc); err != nil {
		return View{}, err
	}
	if pos, state, ok := s.Pending(sc.ID); ok {
		v.PendingTask = &pos
		v.PendingState = state
	}
	if v.SkipAvailable, err = s.SkipAvailable(ctx, sc); err != nil {
		s.logger.Warn("reading skip availability failed", "session_id", sc.ID, "error", err)
	}
	return v, nil
}

func (s *Service) queuedCompletions(ctx context.Context, sessionID string) map[int]completionPayload {
	actions, err := s.queue.Pending(ctx)
	if err != nil {
		s.logger.Warn("reading offline queue failed", "error", err)
		return nil
	}
	out := make(map[int]completionPayload)
	for _, a := range actions {
		if a.Type != offline.TaskCompletion {
			continue
		}
		var p completionPayload
		if json.Unmarshal(a.Payload, &p) == nil && p.SessionID == sessionID {
			out[p.Position] = p
		}
	}
	return out
}
