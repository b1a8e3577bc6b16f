// Package store persists game state in libSQL. Every operation scoped to a
// player session first verifies the session inside the same transaction, so a
// row is never read or written for a session that does not exist.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/playperu/partyquest/internal/database"
	"github.com/playperu/partyquest/internal/feed"
	"github.com/playperu/partyquest/internal/quest"
)

// Notifier receives a change event after every committed write.
type Notifier interface {
	Publish(e feed.Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(feed.Event) {}

type Store struct {
	db     *sql.DB
	notify Notifier
	now    func() time.Time
}

func New(db *sql.DB, notify Notifier) *Store {
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Store{db: db, notify: notify, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.db.PingContext(ctx))
}

func newID() string { return ulid.Make().String() }

// Fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t := parseTime(v.String)
	return &t
}

// classify maps driver errors onto the domain sentinels.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, quest.ErrNotFound)
	case database.IsMissingColumn(err):
		return fmt.Errorf("%s: %w: %w", op, quest.ErrSchemaDrift, err)
	case database.IsConnectivity(err):
		return fmt.Errorf("%s: %w: %w", op, quest.ErrOffline, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// withSession runs fn in a transaction after the session context handshake:
// the session row must exist.
func (s *Store) withSession(ctx context.Context, sc quest.SessionContext, op string, fn func(tx *sql.Tx) error) error {
	if err := sc.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sc.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, quest.ErrSessionNotFound)
	}
	if err != nil {
		return classify(op, err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	return classify(op, tx.Commit())
}

func (s *Store) publish(table string, op feed.Op, sessionID string) {
	s.notify.Publish(feed.Event{Table: table, Op: op, SessionID: sessionID, At: s.now()})
}
