package server

import (
	"context"
	"time"

	"github.com/playperu/partyquest/internal/admin"
	"github.com/playperu/partyquest/internal/feed"
	"github.com/playperu/partyquest/internal/handler/health"
	"github.com/playperu/partyquest/internal/offline"
	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/session"
	"github.com/playperu/partyquest/internal/shop"
	"github.com/playperu/partyquest/internal/slots"
	"github.com/playperu/partyquest/internal/store"
	"github.com/playperu/partyquest/internal/treasure"
	"github.com/playperu/partyquest/internal/workflow"
)

// AdminStore is what the admin login needs from persistence.
type AdminStore interface {
	AdminByEmail(ctx context.Context, email string) (adminID, passwordHash string, err error)
	CreateAdminSession(ctx context.Context, adminID string) (string, error)
	DeleteAdminSession(ctx context.Context, sessionID string) error
	AdminFromSession(ctx context.Context, sessionID string) (store.AdminSession, error)
}

// PlayerStore is the read side the player routes use directly.
type PlayerStore interface {
	Session(ctx context.Context, sc quest.SessionContext) (quest.Session, error)
	History(ctx context.Context, sc quest.SessionContext, limit int) ([]quest.PointsHistoryEntry, error)
	Messages(ctx context.Context, sessionID string, since time.Time) ([]quest.LiveMessage, error)
}

// Deps is everything the HTTP layer serves.
type Deps struct {
	Admins   AdminStore
	Players  PlayerStore
	Sessions *session.Manager
	Workflow *workflow.Service
	Shop     *shop.Service
	Slots    *slots.Service
	Treasure *treasure.Service
	Queue    *offline.Queue
	Console  *admin.Service
	Feed     *feed.Broker
	Checks   map[string]health.Checker

	PhotoDir      string // served under /photos/
	PublicBaseURL string // join links in session QR codes
	SPADir        string
}
