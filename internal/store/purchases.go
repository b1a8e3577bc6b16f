package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/playperu/partyquest/internal/database"
	"github.com/playperu/partyquest/internal/feed"
	"github.com/playperu/partyquest/internal/quest"
)

// InsertPurchase records a purchase. A second purchase of a non-repeatable
// item violates shop_purchases_unique_per_session and returns
// quest.ErrAlreadyPurchased. When p.ID is set and a row with that ID exists,
// the stored row is returned unchanged, so a retried insert is safe.
func (s *Store) InsertPurchase(ctx context.Context, sc quest.SessionContext, p quest.ShopPurchase) (quest.ShopPurchase, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	p.SessionID = sc.ID
	p.PurchasedAt = s.now()

	inserted := false
	err := s.withSession(ctx, sc, "insert purchase", func(tx *sql.Tx) error {
		var at string
		err := tx.QueryRowContext(ctx, `
			SELECT item_id, item_name, price, repeatable, purchased_at FROM shop_purchases WHERE id = ?
		`, p.ID).Scan(&p.ItemID, &p.ItemName, &p.Price, &p.Repeatable, &at)
		if err == nil {
			p.PurchasedAt = parseTime(at)
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return classify("insert purchase", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO shop_purchases (id, session_id, item_id, item_name, price, repeatable, purchased_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.SessionID, p.ItemID, p.ItemName, p.Price, p.Repeatable, formatTime(p.PurchasedAt))
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("insert purchase %s: %w", p.ItemID, quest.ErrAlreadyPurchased)
		}
		if err != nil {
			return classify("insert purchase", err)
		}
		inserted = true
		return nil
	})
	if err != nil {
		return quest.ShopPurchase{}, err
	}
	if inserted {
		s.publish("shop_purchases", feed.OpInsert, sc.ID)
	}
	return p, nil
}

func (s *Store) HasPurchased(ctx context.Context, sc quest.SessionContext, itemID string) (bool, error) {
	var n int
	err := s.withSession(ctx, sc, "check purchase", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM shop_purchases WHERE session_id = ? AND item_id = ?`, sc.ID, itemID).Scan(&n)
		return classify("check purchase", err)
	})
	return n > 0, err
}

func (s *Store) Purchases(ctx context.Context, sc quest.SessionContext) ([]quest.ShopPurchase, error) {
	var out []quest.ShopPurchase
	err := s.withSession(ctx, sc, "list purchases", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, session_id, item_id, item_name, price, repeatable, purchased_at
			FROM shop_purchases WHERE session_id = ? ORDER BY purchased_at, id
		`, sc.ID)
		if err != nil {
			return classify("list purchases", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				p  quest.ShopPurchase
				at string
			)
			if err := rows.Scan(&p.ID, &p.SessionID, &p.ItemID, &p.ItemName, &p.Price, &p.Repeatable, &at); err != nil {
				return classify("scan purchase", err)
			}
			p.PurchasedAt = parseTime(at)
			out = append(out, p)
		}
		return classify("list purchases", rows.Err())
	})
	return out, err
}

// DeletePurchases removes the purchases of a session, or of all sessions
// when sessionID is empty.
func (s *Store) DeletePurchases(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM shop_purchases WHERE (? = '' OR session_id = ?)`, sessionID, sessionID)
	if err != nil {
		return classify("delete purchases", err)
	}
	s.publish("shop_purchases", feed.OpDelete, sessionID)
	return nil
}

// AppendHistory adds an entry to the append-only points history. Type,
// Amount and Description come from e; an empty e.ID gets a fresh one. An
// entry whose ID is already stored is not written again.
func (s *Store) AppendHistory(ctx context.Context, sc quest.SessionContext, e quest.PointsHistoryEntry) (quest.PointsHistoryEntry, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	e.SessionID = sc.ID
	e.CreatedAt = s.now()

	var n int64
	err := s.withSession(ctx, sc, "append history", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO points_history (id, session_id, transaction_type, amount, description, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING
		`, e.ID, e.SessionID, string(e.Type), e.Amount, e.Description, formatTime(e.CreatedAt))
		if err != nil {
			return classify("append history", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return quest.PointsHistoryEntry{}, err
	}
	if n > 0 {
		s.publish("points_history", feed.OpInsert, sc.ID)
	}
	return e, nil
}

// History returns the newest entries first. A limit of 0 returns all.
func (s *Store) History(ctx context.Context, sc quest.SessionContext, limit int) ([]quest.PointsHistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	var out []quest.PointsHistoryEntry
	err := s.withSession(ctx, sc, "list history", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, session_id, transaction_type, amount, description, created_at
			FROM points_history WHERE session_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, sc.ID, limit)
		if err != nil {
			return classify("list history", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				e   quest.PointsHistoryEntry
				typ string
				at  string
			)
			if err := rows.Scan(&e.ID, &e.SessionID, &typ, &e.Amount, &e.Description, &at); err != nil {
				return classify("scan history", err)
			}
			e.Type = quest.TransactionType(typ)
			e.CreatedAt = parseTime(at)
			out = append(out, e)
		}
		return classify("list history", rows.Err())
	})
	return out, err
}

// DeleteHistory removes the history of a session, or of all sessions when
// sessionID is empty.
func (s *Store) DeleteHistory(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM points_history WHERE (? = '' OR session_id = ?)`, sessionID, sessionID)
	if err != nil {
		return classify("delete history", err)
	}
	s.publish("points_history", feed.OpDelete, sessionID)
	return nil
}
