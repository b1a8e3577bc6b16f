package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/partyquest/internal/feed"
	"github.com/playperu/partyquest/internal/quest"
)

const taskColumns = `id, session_id, position, title, description, completed, completed_at, photo_url`

func scanTask(row interface{ Scan(...any) error }) (quest.BingoTask, error) {
	var (
		t           quest.BingoTask
		completedAt sql.NullString
		photo       sql.NullString
	)
	err := row.Scan(&t.ID, &t.SessionID, &t.Position, &t.Title, &t.Description, &t.Completed, &completedAt, &photo)
	t.CompletedAt = parseNullTime(completedAt)
	t.PhotoURL = photo.String
	return t, err
}

// Tasks returns the session's tasks ordered by grid position.
func (s *Store) Tasks(ctx context.Context, sc quest.SessionContext) ([]quest.BingoTask, error) {
	var out []quest.BingoTask
	err := s.withSession(ctx, sc, "list tasks", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM bingo_tasks WHERE session_id = ? ORDER BY position`, sc.ID)
		if err != nil {
			return classify("list tasks", err)
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return classify("scan task", err)
			}
			out = append(out, t)
		}
		return classify("list tasks", rows.Err())
	})
	return out, err
}

// CompleteTask marks the task at pos completed. An empty photoURL keeps any
// photo already attached. Completing a completed task returns
// quest.ErrTaskCompleted.
func (s *Store) CompleteTask(ctx context.Context, sc quest.SessionContext, pos int, photoURL string, at time.Time) (quest.BingoTask, error) {
	if !quest.ValidPosition(pos) {
		return quest.BingoTask{}, fmt.Errorf("complete task %d: %w", pos, quest.ErrInvalidPosition)
	}

	var out quest.BingoTask
	err := s.withSession(ctx, sc, "complete task", func(tx *sql.Tx) error {
		t, err := scanTask(tx.QueryRowContext(ctx, `
			UPDATE bingo_tasks
			SET completed = 1, completed_at = ?, photo_url = COALESCE(NULLIF(?, ''), photo_url)
			WHERE session_id = ? AND position = ? AND completed = 0
			RETURNING `+taskColumns,
			formatTime(at), photoURL, sc.ID, pos))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("complete task %d: %w", pos, quest.ErrTaskCompleted)
		}
		if err != nil {
			return classify("complete task", err)
		}
		out = t
		return nil
	})
	if err == nil {
		s.publish("bingo_tasks", feed.OpUpdate, sc.ID)
	}
	return out, err
}

// SetTaskPhoto attaches a photo to the task at pos, completed or not.
func (s *Store) SetTaskPhoto(ctx context.Context, sc quest.SessionContext, pos int, photoURL string) error {
	err := s.withSession(ctx, sc, "set task photo", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE bingo_tasks SET photo_url = ? WHERE session_id = ? AND position = ?`, photoURL, sc.ID, pos)
		if err != nil {
			return classify("set task photo", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("set task photo %d: %w", pos, quest.ErrInvalidPosition)
		}
		return nil
	})
	if err == nil {
		s.publish("bingo_tasks", feed.OpUpdate, sc.ID)
	}
	return err
}

// ResetTasks clears completion on every task of a session, or of all
// sessions when sessionID is empty. It returns the photo URLs that were
// detached.
func (s *Store) ResetTasks(ctx context.Context, sessionID string) ([]string, error) {
	photos, err := s.resetRows(ctx, "bingo_tasks",
		`SELECT photo_url FROM bingo_tasks WHERE (? = '' OR session_id = ?) AND photo_url IS NOT NULL AND photo_url != ''`,
		`UPDATE bingo_tasks SET completed = 0, completed_at = NULL, photo_url = NULL WHERE (? = '' OR session_id = ?)`,
		sessionID, sessionID)
	if err == nil {
		s.publish("bingo_tasks", feed.OpUpdate, sessionID)
	}
	return photos, err
}

// ReopenTask clears completion on a single task and returns its photo URL.
func (s *Store) ReopenTask(ctx context.Context, sessionID string, pos int) (string, error) {
	if !quest.ValidPosition(pos) {
		return "", fmt.Errorf("reopen task %d: %w", pos, quest.ErrInvalidPosition)
	}
	photos, err := s.resetRows(ctx, "bingo_tasks",
		`SELECT COALESCE(photo_url, '') FROM bingo_tasks WHERE session_id = ? AND position = ?`,
		`UPDATE bingo_tasks SET completed = 0, completed_at = NULL, photo_url = NULL WHERE session_id = ? AND position = ?`,
		sessionID, pos)
	if err != nil {
		return "", err
	}
	if len(photos) == 0 {
		return "", fmt.Errorf("reopen task %d: %w", pos, quest.ErrNotFound)
	}
	s.publish("bingo_tasks", feed.OpUpdate, sessionID)
	return photos[0], nil
}

// resetRows collects the values selected by query and then runs update, both
// with args, in one transaction.
func (s *Store) resetRows(ctx context.Context, table, query, update string, args ...any) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("reset "+table, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("reset "+table, err)
	}
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, classify("reset "+table, err)
		}
		out = append(out, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify("reset "+table, err)
	}

	if _, err := tx.ExecContext(ctx, update, args...); err != nil {
		return nil, classify("reset "+table, err)
	}
	return out, classify("reset "+table, tx.Commit())
}
