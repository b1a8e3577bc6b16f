package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/playperu/partyquest/internal/feed"
	"github.com/playperu/partyquest/internal/quest"
)

// CreateSession inserts the session with its 25 bingo tasks and treasure
// stops in one transaction. It reports false when the session already
// existed; a non-empty user name is then updated.
func (s *Store) CreateSession(ctx context.Context, sc quest.SessionContext) (bool, error) {
	if err := sc.Validate(); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, classify("create session", err)
	}
	defer tx.Rollback()

	now := formatTime(s.now())
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, user_name, last_activity, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, sc.ID, sc.UserName, now, now)
	if err != nil {
		return false, classify("create session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if sc.UserName != "" {
			if _, err := tx.ExecContext(ctx, `UPDATE sessions SET user_name = ? WHERE id = ?`, sc.UserName, sc.ID); err != nil {
				return false, classify("rename session", err)
			}
		}
		return false, classify("create session", tx.Commit())
	}

	for pos, t := range quest.Tasks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bingo_tasks (id, session_id, position, title, description)
			VALUES (?, ?, ?, ?, ?)
		`, newID(), sc.ID, pos, t.Title, t.Description); err != nil {
			return false, classify("create tasks", err)
		}
	}
	for _, stop := range quest.TreasureStops {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO treasure_hunt (id, session_id, stop, location_name)
			VALUES (?, ?, ?, ?)
		`, newID(), sc.ID, stop.Number, stop.Name); err != nil {
			return false, classify("create treasure", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, classify("create session", err)
	}
	s.publish("sessions", feed.OpInsert, sc.ID)
	return true, nil
}

func scanSession(row interface{ Scan(...any) error }) (quest.Session, error) {
	var (
		sess     quest.Session
		balance  sql.NullInt64
		activity string
		created  string
	)
	if err := row.Scan(&sess.ID, &sess.UserName, &balance, &activity, &created); err != nil {
		return sess, err
	}
	if balance.Valid {
		v := int(balance.Int64)
		sess.PointsBalance = &v
	}
	sess.LastActivity = parseTime(activity)
	sess.CreatedAt = parseTime(created)
	return sess, nil
}

const sessionColumns = `id, user_name, points_balance, last_activity, created_at`

func (s *Store) Session(ctx context.Context, sc quest.SessionContext) (quest.Session, error) {
	if err := sc.Validate(); err != nil {
		return quest.Session{}, err
	}
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sc.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return sess, fmt.Errorf("load session: %w", quest.ErrSessionNotFound)
	}
	return sess, classify("load session", err)
}

func (s *Store) ListSessions(ctx context.Context) ([]quest.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, classify("list sessions", err)
	}
	defer rows.Close()

	var out []quest.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, classify("scan session", err)
		}
		out = append(out, sess)
	}
	return out, classify("list sessions", rows.Err())
}

// Balance returns the stored balance, nil when it was never set.
func (s *Store) Balance(ctx context.Context, sc quest.SessionContext) (*int, error) {
	var out *int
	err := s.withSession(ctx, sc, "read balance", func(tx *sql.Tx) error {
		var v sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT points_balance FROM sessions WHERE id = ?`, sc.ID).Scan(&v); err != nil {
			return classify("read balance", err)
		}
		if v.Valid {
			n := int(v.Int64)
			out = &n
		}
		return nil
	})
	return out, err
}

// SetBalance overwrites the balance. Negative values are stored as 0.
func (s *Store) SetBalance(ctx context.Context, sc quest.SessionContext, v int) error {
	err := s.withSession(ctx, sc, "set balance", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET points_balance = ? WHERE id = ?`, max(0, v), sc.ID)
		return classify("set balance", err)
	})
	if err == nil {
		s.publish("sessions", feed.OpUpdate, sc.ID)
	}
	return err
}

// AdjustBalance adds delta in a single statement, clamping at 0, and returns
// the new balance. An unset balance counts as 0. opID identifies the change:
// a second call with the same opID returns the recorded balance and changes
// nothing, so a retry after a lost acknowledgement is safe.
func (s *Store) AdjustBalance(ctx context.Context, sc quest.SessionContext, opID string, delta int) (int, error) {
	var out int
	applied := false
	err := s.withSession(ctx, sc, "adjust balance", func(tx *sql.Tx) error {
		if done, err := appliedOp(ctx, tx, opID, &out); err != nil || done {
			return err
		}
		err := tx.QueryRowContext(ctx, `
			UPDATE sessions SET points_balance = MAX(0, COALESCE(points_balance, 0) + ?)
			WHERE id = ?
			RETURNING points_balance
		`, delta, sc.ID).Scan(&out)
		if err != nil {
			return classify("adjust balance", err)
		}
		applied = true
		return s.recordOp(ctx, tx, sc, opID, out)
	})
	if err == nil && applied {
		s.publish("sessions", feed.OpUpdate, sc.ID)
	}
	return out, err
}

// DebitBalance subtracts amount only when the balance covers it and returns
// the new balance. Otherwise it returns quest.ErrInsufficientFunds and
// changes nothing. opID works as in AdjustBalance.
func (s *Store) DebitBalance(ctx context.Context, sc quest.SessionContext, opID string, amount int) (int, error) {
	var out int
	applied := false
	err := s.withSession(ctx, sc, "debit balance", func(tx *sql.Tx) error {
		if done, err := appliedOp(ctx, tx, opID, &out); err != nil || done {
			return err
		}
		err := tx.QueryRowContext(ctx, `
			UPDATE sessions SET points_balance = points_balance - ?
			WHERE id = ? AND points_balance >= ?
			RETURNING points_balance
		`, amount, sc.ID, amount).Scan(&out)
		if errors.Is(err, sql.ErrNoRows) {
			return quest.ErrInsufficientFunds
		}
		if err != nil {
			return classify("debit balance", err)
		}
		applied = true
		return s.recordOp(ctx, tx, sc, opID, out)
	})
	if err == nil && applied {
		s.publish("sessions", feed.OpUpdate, sc.ID)
	}
	return out, err
}

// appliedOp reports whether opID was already applied and, if so, loads the
// balance it left behind.
func appliedOp(ctx context.Context, tx *sql.Tx, opID string, balance *int) (bool, error) {
	if opID == "" {
		return false, nil
	}
	err := tx.QueryRowContext(ctx, `SELECT balance FROM balance_ops WHERE id = ?`, opID).Scan(balance)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify("check balance op", err)
	}
	return true, nil
}

func (s *Store) recordOp(ctx context.Context, tx *sql.Tx, sc quest.SessionContext, opID string, balance int) error {
	if opID == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balance_ops (id, session_id, balance, created_at) VALUES (?, ?, ?, ?)
	`, opID, sc.ID, balance, formatTime(s.now()))
	return classify("record balance op", err)
}

// Touch records player activity.
func (s *Store) Touch(ctx context.Context, sc quest.SessionContext) error {
	return s.withSession(ctx, sc, "touch session", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET last_activity = ? WHERE id = ?`, formatTime(s.now()), sc.ID)
		return classify("touch session", err)
	})
}

var ownedTables = []string{"bingo_tasks", "treasure_hunt", "shop_purchases", "points_history", "live_messages", "balance_ops"}

// DeleteSession removes a session and every row it owns.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("delete session", err)
	}
	defer tx.Rollback()

	for _, table := range ownedTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ?`, sessionID); err != nil {
			return classify("delete "+table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return classify("delete session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete session: %w", quest.ErrSessionNotFound)
	}
	if err := tx.Commit(); err != nil {
		return classify("delete session", err)
	}
	s.publish("sessions", feed.OpDelete, sessionID)
	return nil
}

// DeleteAllSessions removes every session and returns how many there were.
func (s *Store) DeleteAllSessions(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("delete sessions", err)
	}
	defer tx.Rollback()

	for _, table := range ownedTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return 0, classify("delete "+table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, classify("delete sessions", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, classify("delete sessions", err)
	}
	s.publish("sessions", feed.OpDelete, feed.All)
	return int(n), nil
}
