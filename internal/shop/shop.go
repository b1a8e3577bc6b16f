// Package shop sells catalog items for points.
package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/retry"
)

type Store interface {
	HasPurchased(ctx context.Context, sc quest.SessionContext, itemID string) (bool, error)
	InsertPurchase(ctx context.Context, sc quest.SessionContext, p quest.ShopPurchase) (quest.ShopPurchase, error)
	Purchases(ctx context.Context, sc quest.SessionContext) ([]quest.ShopPurchase, error)
	AppendHistory(ctx context.Context, sc quest.SessionContext, e quest.PointsHistoryEntry) (quest.PointsHistoryEntry, error)
}

type Ledger interface {
	GetCurrentPoints(ctx context.Context, sc quest.SessionContext) (int, error)
	SubtractPoints(ctx context.Context, sc quest.SessionContext, amount int) (int, error)
	AddPoints(ctx context.Context, sc quest.SessionContext, amount int) (int, error)
}

type Service struct {
	store  Store
	ledger Ledger
	policy retry.Policy
	logger *slog.Logger
}

func New(store Store, ledger Ledger, policy retry.Policy, logger *slog.Logger) *Service {
	return &Service{store: store, ledger: ledger, policy: policy, logger: logger}
}

// Quote is the pre-dialog view of a purchase.
type Quote struct {
	Item       Item `json:"item"`
	Price      int  `json:"price"`
	Balance    int  `json:"balance"`
	Affordable bool `json:"affordable"`
	Purchased  bool `json:"purchased"`
}

// price resolves what an item costs. amount only applies to variable items.
func price(it Item, amount int) (int, error) {
	if !it.Variable {
		return it.Price, nil
	}
	if amount < 1 {
		return 0, fmt.Errorf("%w: spend at least 1 point", quest.ErrInvalidAmount)
	}
	return amount, nil
}

// Quote checks a purchase against the current balance without changing
// anything. The check is optimistic; Purchase checks again.
func (s *Service) Quote(ctx context.Context, sc quest.SessionContext, itemID string, amount int) (Quote, error) {
	it, ok := ItemByID(itemID)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", quest.ErrUnknownItem, itemID)
	}
	p, err := price(it, amount)
	if err != nil {
		return Quote{}, err
	}
	bal, err := s.ledger.GetCurrentPoints(ctx, sc)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{Item: it, Price: p, Balance: bal, Affordable: bal >= p}
	if !it.Repeatable {
		if q.Purchased, err = s.hasPurchased(ctx, sc, it.ID); err != nil {
			return Quote{}, err
		}
	}
	return q, nil
}

func (s *Service) hasPurchased(ctx context.Context, sc quest.SessionContext, itemID string) (bool, error) {
	return retry.Value(ctx, s.policy, func(ctx context.Context) (bool, error) {
		return s.store.HasPurchased(ctx, sc, itemID)
	})
}

// Receipt is the outcome of a purchase.
type Receipt struct {
	Purchase quest.ShopPurchase `json:"purchase"`
	Balance  int                `json:"balance"`
}

// Purchase debits the price and records the purchase. A second purchase of
// a non-repeatable item fails with quest.ErrAlreadyPurchased before any
// debit; a balance below the price fails with quest.ErrInsufficientFunds.
func (s *Service) Purchase(ctx context.Context, sc quest.SessionContext, itemID string, amount int) (Receipt, error) {
	it, ok := ItemByID(itemID)
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %s", quest.ErrUnknownItem, itemID)
	}
	p, err := price(it, amount)
	if err != nil {
		return Receipt{}, err
	}

	if !it.Repeatable {
		bought, err := s.hasPurchased(ctx, sc, it.ID)
		if err != nil {
			return Receipt{}, err
		}
		if bought {
			return Receipt{}, quest.ErrAlreadyPurchased
		}
	}

	bal, err := s.ledger.GetCurrentPoints(ctx, sc)
	if err != nil {
		return Receipt{}, err
	}
	if bal < p {
		return Receipt{}, quest.ErrInsufficientFunds
	}

	bal, err = s.ledger.SubtractPoints(ctx, sc, p)
	if err != nil {
		return Receipt{}, err
	}

	// Fixed IDs make a retried insert return the row an earlier attempt
	// committed instead of tripping the one-per-item index.
	purchase := quest.ShopPurchase{ID: ulid.Make().String(), ItemID: it.ID, ItemName: it.Name, Price: p, Repeatable: it.Repeatable}
	row, err := retry.Value(ctx, s.policy, func(ctx context.Context) (quest.ShopPurchase, error) {
		return s.store.InsertPurchase(ctx, sc, purchase)
	})
	if err != nil {
		// The debit already happened; give the points back.
		if _, rerr := s.ledger.AddPoints(ctx, sc, p); rerr != nil {
			s.logger.Error("refund after failed purchase failed", "session_id", sc.ID, "item_id", it.ID, "amount", p, "error", rerr)
		}
		if errors.Is(err, quest.ErrAlreadyPurchased) {
			return Receipt{}, err
		}
		return Receipt{}, fmt.Errorf("recording purchase: %w", err)
	}

	entry := quest.PointsHistoryEntry{ID: ulid.Make().String(), Type: quest.TransactionSpent, Amount: p, Description: historyDescription(it, p)}
	_, err = retry.Value(ctx, s.policy, func(ctx context.Context) (quest.PointsHistoryEntry, error) {
		return s.store.AppendHistory(ctx, sc, entry)
	})
	if err != nil {
		s.logger.Warn("recording history failed", "session_id", sc.ID, "item_id", it.ID, "error", err)
	}

	s.logger.Info("item purchased", "session_id", sc.ID, "item_id", it.ID, "price", p, "balance", bal)
	return Receipt{Purchase: row, Balance: bal}, nil
}

// Owned is a catalog item with how often the session bought it.
type Owned struct {
	Item  Item `json:"item"`
	Count int  `json:"count"`
}

// Purchases lists the items a session bought, in catalog order.
func (s *Service) Purchases(ctx context.Context, sc quest.SessionContext) ([]Owned, error) {
	rows, err := retry.Value(ctx, s.policy, func(ctx context.Context) ([]quest.ShopPurchase, error) {
		return s.store.Purchases(ctx, sc)
	})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.ItemID]++
	}
	var out []Owned
	for _, it := range Catalog {
		if n := counts[it.ID]; n > 0 {
			out = append(out, Owned{Item: it, Count: n})
		}
	}
	return out, nil
}
