package migrations_test

import (
	"context"
	"testing"

	"github.com/playperu/partyquest/internal/database"
	"github.com/playperu/partyquest/internal/migrations"
)

func TestMigrations(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if _, err := migrations.Run(ctx, db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	want := []string{"sessions", "bingo_tasks", "treasure_hunt", "shop_purchases", "points_history", "live_messages", "admins", "admin_sessions", "balance_ops"}

	for _, table := range want {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if _, err := migrations.Run(ctx, db); err != nil {
		t.Fatalf("first run: %v", err)
	}
	n, err := migrations.Run(ctx, db)
	if err != nil {
		t.Fatalf("second run (should be no-op): %v", err)
	}
	if n != 0 {
		t.Errorf("second run applied %d migrations, want 0", n)
	}
}

func TestNonRepeatablePurchaseIndex(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()
	if _, err := migrations.Run(ctx, db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	mustExec := func(q string, args ...any) error {
		_, err := db.ExecContext(ctx, q, args...)
		return err
	}
	if err := mustExec(`INSERT INTO sessions (id, last_activity, created_at) VALUES ('s1', 'now', 'now')`); err != nil {
		t.Fatal(err)
	}

	insert := `INSERT INTO shop_purchases (id, session_id, item_id, item_name, price, repeatable, purchased_at) VALUES (?, 's1', ?, 'x', 10, ?, 'now')`
	if err := mustExec(insert, "p1", "bierslaaf", 0); err != nil {
		t.Fatal(err)
	}
	if err := mustExec(insert, "p2", "bierslaaf", 0); !database.IsUniqueViolation(err) {
		t.Errorf("second non-repeatable insert err = %v, want unique violation", err)
	}
	if err := mustExec(insert, "p3", "adtje-voor-de-sfeer", 1); err != nil {
		t.Fatal(err)
	}
	if err := mustExec(insert, "p4", "adtje-voor-de-sfeer", 1); err != nil {
		t.Errorf("repeatable insert: %v", err)
	}
}
