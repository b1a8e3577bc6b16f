// Package quest defines the core domain types of the party game: the bingo
// grid, its bonus rules, the treasure hunt stops and the records persisted
// per player session. It has no external dependencies.
package quest

import (
	"fmt"
	"strings"
	"time"
)

// SessionContext identifies the player session every core operation acts on.
// It is passed explicitly instead of being read from ambient state.
type SessionContext struct {
	ID       string
	UserName string
}

func (sc SessionContext) Validate() error {
	if strings.TrimSpace(sc.ID) == "" {
		return fmt.Errorf("%w: empty session id", ErrSessionNotFound)
	}
	return nil
}

type Session struct {
	ID            string    `json:"id"`
	UserName      string    `json:"userName"`
	PointsBalance *int      `json:"pointsBalance"` // nil until the first balance write
	LastActivity  time.Time `json:"lastActivity"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SyncStatus reports whether a locally accepted change reached the store.
type SyncStatus string

const (
	SyncSynced  SyncStatus = "synced"
	SyncPending SyncStatus = "pending"
)

type BingoTask struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId"`
	Position    int        `json:"position"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	PhotoURL    string     `json:"photoUrl,omitempty"`
}

type TreasureLocation struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"sessionId"`
	Stop         int        `json:"stop"`
	LocationName string     `json:"locationName"`
	Found        bool       `json:"found"`
	FoundAt      *time.Time `json:"foundAt,omitempty"`
	PhotoURL     string     `json:"photoUrl,omitempty"`
}

type TransactionType string

const (
	TransactionEarned TransactionType = "earned"
	TransactionSpent  TransactionType = "spent"
)

type PointsHistoryEntry struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId"`
	Type        TransactionType `json:"type"`
	Amount      int             `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type ShopPurchase struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	ItemID      string    `json:"itemId"`
	ItemName    string    `json:"itemName"`
	Price       int       `json:"price"`
	Repeatable  bool      `json:"repeatable"`
	PurchasedAt time.Time `json:"purchasedAt"`
}

// LiveMessage is a row on the command channel. An empty SessionID addresses
// every session.
type LiveMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
