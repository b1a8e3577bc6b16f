package store

import (
	"context"
	"time"

	"github.com/playperu/partyquest/internal/feed"
	"github.com/playperu/partyquest/internal/quest"
)

// InsertMessage writes to the live message channel. An empty sessionID
// addresses every session.
func (s *Store) InsertMessage(ctx context.Context, sessionID, message string) (quest.LiveMessage, error) {
	m := quest.LiveMessage{ID: newID(), SessionID: sessionID, Message: message, CreatedAt: s.now()}

	var target any
	if sessionID != "" {
		target = sessionID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO live_messages (id, session_id, message, created_at) VALUES (?, ?, ?, ?)
	`, m.ID, target, m.Message, formatTime(m.CreatedAt))
	if err != nil {
		return quest.LiveMessage{}, classify("insert message", err)
	}

	s.notify.Publish(feed.Event{Table: "live_messages", Op: feed.OpInsert, SessionID: sessionID, Message: message, At: m.CreatedAt})
	return m, nil
}

// Messages returns messages for a session, broadcasts included, created
// after since, oldest first.
func (s *Store) Messages(ctx context.Context, sessionID string, since time.Time) ([]quest.LiveMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(session_id, ''), message, created_at
		FROM live_messages
		WHERE (session_id IS NULL OR session_id = ?) AND created_at > ?
		ORDER BY created_at, id
	`, sessionID, formatTime(since))
	if err != nil {
		return nil, classify("list messages", err)
	}
	defer rows.Close()

	var out []quest.LiveMessage
	for rows.Next() {
		var (
			m  quest.LiveMessage
			at string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Message, &at); err != nil {
			return nil, classify("scan message", err)
		}
		m.CreatedAt = parseTime(at)
		out = append(out, m)
	}
	return out, classify("list messages", rows.Err())
}
