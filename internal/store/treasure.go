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

const treasureColumns = `id, session_id, stop, location_name, found, found_at, photo_url`

func scanTreasure(row interface{ Scan(...any) error }) (quest.TreasureLocation, error) {
	var (
		l       quest.TreasureLocation
		foundAt sql.NullString
		photo   sql.NullString
	)
	err := row.Scan(&l.ID, &l.SessionID, &l.Stop, &l.LocationName, &l.Found, &foundAt, &photo)
	l.FoundAt = parseNullTime(foundAt)
	l.PhotoURL = photo.String
	return l, err
}

// Treasure returns the session's treasure stops in order.
func (s *Store) Treasure(ctx context.Context, sc quest.SessionContext) ([]quest.TreasureLocation, error) {
	var out []quest.TreasureLocation
	err := s.withSession(ctx, sc, "list treasure", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+treasureColumns+` FROM treasure_hunt WHERE session_id = ? ORDER BY stop`, sc.ID)
		if err != nil {
			return classify("list treasure", err)
		}
		defer rows.Close()
		for rows.Next() {
			l, err := scanTreasure(rows)
			if err != nil {
				return classify("scan treasure", err)
			}
			out = append(out, l)
		}
		return classify("list treasure", rows.Err())
	})
	return out, err
}

// MarkFound records a found stop. A stop can be found once, and only after
// every earlier stop; otherwise it returns quest.ErrStopLocked.
func (s *Store) MarkFound(ctx context.Context, sc quest.SessionContext, stop int, photoURL string, at time.Time) (quest.TreasureLocation, error) {
	var out quest.TreasureLocation
	err := s.withSession(ctx, sc, "mark found", func(tx *sql.Tx) error {
		var open int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM treasure_hunt WHERE session_id = ? AND stop < ? AND found = 0
		`, sc.ID, stop).Scan(&open)
		if err != nil {
			return classify("mark found", err)
		}
		if open > 0 {
			return fmt.Errorf("mark stop %d found: %w", stop, quest.ErrStopLocked)
		}

		l, err := scanTreasure(tx.QueryRowContext(ctx, `
			UPDATE treasure_hunt
			SET found = 1, found_at = ?, photo_url = COALESCE(NULLIF(?, ''), photo_url)
			WHERE session_id = ? AND stop = ? AND found = 0
			RETURNING `+treasureColumns,
			formatTime(at), photoURL, sc.ID, stop))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("mark stop %d found: %w", stop, quest.ErrAlreadyFound)
		}
		if err != nil {
			return classify("mark found", err)
		}
		out = l
		return nil
	})
	if err == nil {
		s.publish("treasure_hunt", feed.OpUpdate, sc.ID)
	}
	return out, err
}

// SetTreasurePhoto attaches a photo to a stop.
func (s *Store) SetTreasurePhoto(ctx context.Context, sc quest.SessionContext, stop int, photoURL string) error {
	err := s.withSession(ctx, sc, "set treasure photo", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE treasure_hunt SET photo_url = ? WHERE session_id = ? AND stop = ?`, photoURL, sc.ID, stop)
		return classify("set treasure photo", err)
	})
	if err == nil {
		s.publish("treasure_hunt", feed.OpUpdate, sc.ID)
	}
	return err
}

// ResetTreasure clears every stop of a session, or of all sessions when
// sessionID is empty, and returns the detached photo URLs.
func (s *Store) ResetTreasure(ctx context.Context, sessionID string) ([]string, error) {
	photos, err := s.resetRows(ctx, "treasure_hunt",
		`SELECT photo_url FROM treasure_hunt WHERE (? = '' OR session_id = ?) AND photo_url IS NOT NULL AND photo_url != ''`,
		`UPDATE treasure_hunt SET found = 0, found_at = NULL, photo_url = NULL WHERE (? = '' OR session_id = ?)`,
		sessionID, sessionID)
	if err == nil {
		s.publish("treasure_hunt", feed.OpUpdate, sessionID)
	}
	return photos, err
}

// ResetTreasureStop clears a single stop and returns its photo URL.
func (s *Store) ResetTreasureStop(ctx context.Context, sessionID string, stop int) (string, error) {
	photos, err := s.resetRows(ctx, "treasure_hunt",
		`SELECT COALESCE(photo_url, '') FROM treasure_hunt WHERE session_id = ? AND stop = ?`,
		`UPDATE treasure_hunt SET found = 0, found_at = NULL, photo_url = NULL WHERE session_id = ? AND stop = ?`,
		sessionID, stop)
	if err != nil {
		return "", err
	}
	if len(photos) == 0 {
		return "", fmt.Errorf("reset stop %d: %w", stop, quest.ErrNotFound)
	}
	s.publish("treasure_hunt", feed.OpUpdate, sessionID)
	return photos[0], nil
}
