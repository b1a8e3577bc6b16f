// Package admin is the organizer's console: a concurrent overview of every
// session, resets that bypass the bingo workflow, and the remote command
// channel.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/partyquest/internal/quest"
)

// overviewLimit bounds the per-session loads Overview runs at once.
const overviewLimit = 8

type Store interface {
	ListSessions(ctx context.Context) ([]quest.Session, error)
	Session(ctx context.Context, sc quest.SessionContext) (quest.Session, error)
	Tasks(ctx context.Context, sc quest.SessionContext) ([]quest.BingoTask, error)
	Treasure(ctx context.Context, sc quest.SessionContext) ([]quest.TreasureLocation, error)
	ResetTasks(ctx context.Context, sessionID string) ([]string, error)
	ReopenTask(ctx context.Context, sessionID string, pos int) (string, error)
	ResetTreasure(ctx context.Context, sessionID string) ([]string, error)
	ResetTreasureStop(ctx context.Context, sessionID string, stop int) (string, error)
	DeletePurchases(ctx context.Context, sessionID string) error
	DeleteHistory(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteAllSessions(ctx context.Context) (int, error)
	InsertMessage(ctx context.Context, sessionID, message string) (quest.LiveMessage, error)
	Messages(ctx context.Context, sessionID string, since time.Time) ([]quest.LiveMessage, error)
}

type Ledger interface {
	GetCurrentPoints(ctx context.Context, sc quest.SessionContext) (int, error)
	SetPoints(ctx context.Context, sc quest.SessionContext, amount int) error
	ResetPoints(ctx context.Context, sc quest.SessionContext) error
}

type Photos interface {
	Delete(ctx context.Context, urls ...string) error
}

// ResetHook clears in-memory state a service keeps for a session. An empty
// sessionID means every session.
type ResetHook func(ctx context.Context, sessionID string)

type Service struct {
	store  Store
	ledger Ledger
	photos Photos
	hooks  []ResetHook
	logger *slog.Logger
}

func New(store Store, ledger Ledger, photos Photos, logger *slog.Logger, hooks ...ResetHook) *Service {
	return &Service{store: store, ledger: ledger, photos: photos, hooks: hooks, logger: logger}
}

// SessionSummary is one row of the spectator and admin overview.
type SessionSummary struct {
	Session    quest.Session            `json:"session"`
	Balance    int                      `json:"balance"`
	Snapshot   quest.Snapshot           `json:"snapshot"`
	TasksDone  int                      `json:"tasksDone"`
	StopsFound int                      `json:"stopsFound"`
	Tasks      []quest.BingoTask        `json:"tasks"`
	Treasure   []quest.TreasureLocation `json:"treasure"`
}

// Overview loads every session. Sessions are loaded concurrently; the result
// keeps the store's creation order.
func (s *Service) Overview(ctx context.Context) ([]SessionSummary, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}

	out := make([]SessionSummary, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(overviewLimit)
	for i, sess := range sessions {
		g.Go(func() error {
			sum, err := s.summarize(gctx, sess)
			if err != nil {
				return err
			}
			out[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}
	return out, nil
}

// Session loads a single summary.
func (s *Service) Session(ctx context.Context, sessionID string) (SessionSummary, error) {
	sess, err := s.store.Session(ctx, ref(sessionID))
	if err != nil {
		return SessionSummary{}, err
	}
	return s.summarize(ctx, sess)
}

func (s *Service) summarize(ctx context.Context, sess quest.Session) (SessionSummary, error) {
	sc := quest.SessionContext{ID: sess.ID, UserName: sess.UserName}
	tasks, err := s.store.Tasks(ctx, sc)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("session %s tasks: %w", sess.ID, err)
	}
	stops, err := s.store.Treasure(ctx, sc)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("session %s treasure: %w", sess.ID, err)
	}
	balance, err := s.ledger.GetCurrentPoints(ctx, sc)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("session %s balance: %w", sess.ID, err)
	}

	sum := SessionSummary{
		Session:  sess,
		Balance:  balance,
		Snapshot: quest.EvaluateTasks(tasks),
		Tasks:    tasks,
		Treasure: stops,
	}
	for _, t := range tasks {
		if t.Completed {
			sum.TasksDone++
		}
	}
	for _, l := range stops {
		if l.Found {
			sum.StopsFound++
		}
	}
	return sum, nil
}

// ResetSession reopens every task and stop of a session and zeroes its
// balance. Purchases and history stay.
func (s *Service) ResetSession(ctx context.Context, sessionID string) error {
	if err := ref(sessionID).Validate(); err != nil {
		return err
	}
	if err := s.reset(ctx, sessionID, true, true); err != nil {
		return err
	}
	if err := s.ledger.ResetPoints(ctx, ref(sessionID)); err != nil {
		return fmt.Errorf("reset session %s: %w", sessionID, err)
	}
	s.logger.Info("session reset", "session_id", sessionID)
	return nil
}

// ResetAll resets every session the way ResetSession does.
func (s *Service) ResetAll(ctx context.Context) error {
	if err := s.reset(ctx, "", true, true); err != nil {
		return err
	}
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("reset all: %w", err)
	}
	var errs []error
	for _, sess := range sessions {
		if err := s.ledger.ResetPoints(ctx, ref(sess.ID)); err != nil {
			errs = append(errs, fmt.Errorf("reset points %s: %w", sess.ID, err))
		}
	}
	s.logger.Info("all sessions reset", "sessions", len(sessions))
	return errors.Join(errs...)
}

// ResetBingo reopens the bingo tasks of a session, or of every session when
// sessionID is empty. Balances are left alone.
func (s *Service) ResetBingo(ctx context.Context, sessionID string) error {
	return s.reset(ctx, sessionID, true, false)
}

// ResetTreasure clears the treasure stops of a session, or of every session
// when sessionID is empty.
func (s *Service) ResetTreasure(ctx context.Context, sessionID string) error {
	return s.reset(ctx, sessionID, false, true)
}

// ResetShop forgets the purchases and points history of a session, or of
// every session when sessionID is empty.
func (s *Service) ResetShop(ctx context.Context, sessionID string) error {
	if err := s.store.DeletePurchases(ctx, sessionID); err != nil {
		return err
	}
	if err := s.store.DeleteHistory(ctx, sessionID); err != nil {
		return err
	}
	s.runHooks(ctx, sessionID)
	return nil
}

func (s *Service) reset(ctx context.Context, sessionID string, bingo, treasure bool) error {
	var photos []string
	if bingo {
		urls, err := s.store.ResetTasks(ctx, sessionID)
		if err != nil {
			return err
		}
		photos = append(photos, urls...)
	}
	if treasure {
		urls, err := s.store.ResetTreasure(ctx, sessionID)
		if err != nil {
			return err
		}
		photos = append(photos, urls...)
	}
	s.dropPhotos(ctx, photos...)
	s.runHooks(ctx, sessionID)
	return nil
}

// ReopenTask clears a single completed task. The balance is not adjusted.
func (s *Service) ReopenTask(ctx context.Context, sessionID string, pos int) error {
	url, err := s.store.ReopenTask(ctx, sessionID, pos)
	if err != nil {
		return err
	}
	s.dropPhotos(ctx, url)
	s.runHooks(ctx, sessionID)
	return nil
}

func (s *Service) ResetTreasureStop(ctx context.Context, sessionID string, stop int) error {
	url, err := s.store.ResetTreasureStop(ctx, sessionID, stop)
	if err != nil {
		return err
	}
	s.dropPhotos(ctx, url)
	return nil
}

// SetBalance overwrites a balance, clamped at zero.
func (s *Service) SetBalance(ctx context.Context, sessionID string, amount int) error {
	if err := s.ledger.SetPoints(ctx, ref(sessionID), amount); err != nil {
		return err
	}
	s.runHooks(ctx, sessionID)
	return nil
}

// DeleteSession removes a session with its rows and photos.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	sc := ref(sessionID)
	if err := sc.Validate(); err != nil {
		return err
	}
	photos := s.photoURLs(ctx, sc)
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.dropPhotos(ctx, photos...)
	s.runHooks(ctx, sessionID)
	s.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

// DeleteAll removes every session and returns how many there were.
func (s *Service) DeleteAll(ctx context.Context) (int, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	var photos []string
	for _, sess := range sessions {
		photos = append(photos, s.photoURLs(ctx, ref(sess.ID))...)
	}
	n, err := s.store.DeleteAllSessions(ctx)
	if err != nil {
		return 0, err
	}
	s.dropPhotos(ctx, photos...)
	s.runHooks(ctx, "")
	s.logger.Info("all sessions deleted", "sessions", n)
	return n, nil
}

// SendCommand writes cmd to the live channel of a session, or broadcasts it
// when sessionID is empty.
func (s *Service) SendCommand(ctx context.Context, sessionID string, cmd quest.Command) (quest.LiveMessage, error) {
	msg := cmd.String()
	if _, ok := quest.ParseCommand(msg); !ok {
		return quest.LiveMessage{}, fmt.Errorf("%w: command %q", quest.ErrInvalidCommand, msg)
	}
	m, err := s.store.InsertMessage(ctx, sessionID, msg)
	if err != nil {
		return quest.LiveMessage{}, err
	}
	s.logger.Info("command sent", "session_id", sessionID, "command", msg)
	return m, nil
}

// Announce sends a plain text message.
func (s *Service) Announce(ctx context.Context, sessionID, text string) (quest.LiveMessage, error) {
	if _, ok := quest.ParseCommand(text); ok {
		return quest.LiveMessage{}, fmt.Errorf("%w: text looks like a command", quest.ErrInvalidCommand)
	}
	return s.store.InsertMessage(ctx, sessionID, text)
}

func (s *Service) Messages(ctx context.Context, sessionID string, since time.Time) ([]quest.LiveMessage, error) {
	return s.store.Messages(ctx, sessionID, since)
}

// photoURLs lists the photos a session owns. Failures only cost orphaned
// files, so they are logged.
func (s *Service) photoURLs(ctx context.Context, sc quest.SessionContext) []string {
	var urls []string
	tasks, err := s.store.Tasks(ctx, sc)
	if err != nil {
		s.logger.Warn("listing task photos", "session_id", sc.ID, "error", err)
	}
	for _, t := range tasks {
		if t.PhotoURL != "" {
			urls = append(urls, t.PhotoURL)
		}
	}
	stops, err := s.store.Treasure(ctx, sc)
	if err != nil {
		s.logger.Warn("listing treasure photos", "session_id", sc.ID, "error", err)
	}
	for _, l := range stops {
		if l.PhotoURL != "" {
			urls = append(urls, l.PhotoURL)
		}
	}
	return urls
}

func (s *Service) dropPhotos(ctx context.Context, urls ...string) {
	var keep []string
	for _, u := range urls {
		if u != "" {
			keep = append(keep, u)
		}
	}
	if len(keep) == 0 {
		return
	}
	if err := s.photos.Delete(ctx, keep...); err != nil {
		s.logger.Warn("deleting photos", "count", len(keep), "error", err)
	}
}

func (s *Service) runHooks(ctx context.Context, sessionID string) {
	for _, h := range s.hooks {
		h(ctx, sessionID)
	}
}

func ref(sessionID string) quest.SessionContext {
	return quest.SessionContext{ID: sessionID}
}
