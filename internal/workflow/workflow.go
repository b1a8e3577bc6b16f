// Package workflow runs the bingo completion state machine of a session:
// OPEN → AWAITING_PHOTO → COMPLETING → DONE, or OPEN → SKIPPED_DONE with the
// skip item. At most one task per session is in flight at a time.
package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/playperu/partyquest/internal/offline"
	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/retry"
)

type State string

const (
	StateOpen          State = "open"
	StateAwaitingPhoto State = "awaiting_photo"
	StateCompleting    State = "completing"
	StateDone          State = "done"
	StateSkippedDone   State = "skipped_done"
)

type Store interface {
	Tasks(ctx context.Context, sc quest.SessionContext) ([]quest.BingoTask, error)
	CompleteTask(ctx context.Context, sc quest.SessionContext, pos int, photoURL string, at time.Time) (quest.BingoTask, error)
	SetTaskPhoto(ctx context.Context, sc quest.SessionContext, pos int, photoURL string) error
	HasPurchased(ctx context.Context, sc quest.SessionContext, itemID string) (bool, error)
	AppendHistory(ctx context.Context, sc quest.SessionContext, e quest.PointsHistoryEntry) (quest.PointsHistoryEntry, error)
}

type Ledger interface {
	AddPoints(ctx context.Context, sc quest.SessionContext, amount int) (int, error)
	GetCurrentPoints(ctx context.Context, sc quest.SessionContext) (int, error)
}

type Photos interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

type Queue interface {
	Enqueue(ctx context.Context, t offline.ActionType, payload any) (offline.Action, error)
	Hold(ctx context.Context, t offline.ActionType, payload any) (offline.Action, error)
	Pending(ctx context.Context) ([]offline.Action, error)
	Register(t offline.ActionType, h offline.Handler)
}

// Skips holds the one-time skip flag of a session.
type Skips interface {
	SkipUsed(ctx context.Context, sessionID string) (bool, error)
	MarkSkipUsed(ctx context.Context, sessionID string) error
	ClearSkip(ctx context.Context, sessionID string) error
}

type Config struct {
	Write  retry.Policy
	Upload retry.Policy
}

type flight struct {
	pos   int
	state State
}

type Service struct {
	store  Store
	ledger Ledger
	photos Photos
	queue  Queue
	skips  Skips
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	inflight map[string]flight // by session ID
}

// New builds the service and registers its replay handlers on q.
func New(store Store, ledger Ledger, photos Photos, q Queue, skips Skips, cfg Config, logger *slog.Logger) *Service {
	s := &Service{
		store:    store,
		ledger:   ledger,
		photos:   photos,
		queue:    q,
		skips:    skips,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]flight),
	}
	q.Register(offline.TaskCompletion, s.replayCompletion)
	q.Register(offline.PhotoUpload, s.replayPhoto)
	return s
}

// Open moves a task to AWAITING_PHOTO. Reopening the task already in flight
// is a no-op.
func (s *Service) Open(ctx context.Context, sc quest.SessionContext, pos int) error {
	if !quest.ValidPosition(pos) {
		return quest.ErrInvalidPosition
	}
	task, err := s.task(ctx, sc, pos)
	if err != nil {
		return err
	}
	if task.Completed {
		return quest.ErrTaskCompleted
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.inflight[sc.ID]; ok {
		if f.pos != pos || f.state == StateCompleting {
			return quest.ErrTaskPending
		}
		return nil
	}
	s.inflight[sc.ID] = flight{pos: pos, state: StateAwaitingPhoto}
	return nil
}

// Cancel returns the task awaiting a photo to OPEN.
func (s *Service) Cancel(sc quest.SessionContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.inflight[sc.ID]
	if !ok {
		return nil
	}
	if f.state == StateCompleting {
		return quest.ErrTaskPending
	}
	delete(s.inflight, sc.ID)
	return nil
}

// Pending returns the task in flight for a session.
func (s *Service) Pending(sessionID string) (pos int, state State, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.inflight[sessionID]
	return f.pos, f.state, ok
}

// Reset forgets the in-flight task of a session, or of every session when
// sessionID is empty. Admin resets call it.
func (s *Service) Reset(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID == "" {
		clear(s.inflight)
		return
	}
	delete(s.inflight, sessionID)
}

// begin moves pos to COMPLETING. A task opened implicitly needs no prior
// Open call.
func (s *Service) begin(sessionID string, pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.inflight[sessionID]; ok && (f.pos != pos || f.state == StateCompleting) {
		return quest.ErrTaskPending
	}
	s.inflight[sessionID] = flight{pos: pos, state: StateCompleting}
	return nil
}

// finish leaves the in-flight state; the task is DONE or back to OPEN.
func (s *Service) finish(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, sessionID)
}

func (s *Service) tasks(ctx context.Context, sc quest.SessionContext) ([]quest.BingoTask, error) {
	return retry.Value(ctx, s.cfg.Write, func(ctx context.Context) ([]quest.BingoTask, error) {
		return s.store.Tasks(ctx, sc)
	})
}

func (s *Service) task(ctx context.Context, sc quest.SessionContext, pos int) (quest.BingoTask, error) {
	tasks, err := s.tasks(ctx, sc)
	if err != nil {
		return quest.BingoTask{}, err
	}
	for _, t := range tasks {
		if t.Position == pos {
			return t, nil
		}
	}
	return quest.BingoTask{}, quest.ErrInvalidPosition
}
