// Package storetest opens migrated in-memory stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/playperu/partyquest/internal/database"
	"github.com/playperu/partyquest/internal/migrations"
	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/store"
)

// New returns a store over a fresh in-memory database. notify may be nil.
func New(t testing.TB, notify store.Notifier) *store.Store {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := migrations.Run(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(db, notify)
}

// Session creates a session in s and returns its context.
func Session(t testing.TB, s *store.Store, id string) quest.SessionContext {
	t.Helper()
	sc := quest.SessionContext{ID: id, UserName: "speler-" + id}
	if _, err := s.CreateSession(context.Background(), sc); err != nil {
		t.Fatalf("create session %s: %v", id, err)
	}
	return sc
}
