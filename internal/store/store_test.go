package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/playperu/partyquest/internal/database"
	"github.com/playperu/partyquest/internal/feed"
	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/store"
	"github.com/playperu/partyquest/internal/store/storetest"
)

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t, nil)
	sc := quest.SessionContext{ID: "abc", UserName: "Jan"}

	created, err := s.CreateSession(ctx, sc)
	if err != nil || !created {
		t.Fatalf("CreateSession = %v, %v", created, err)
	}

	tasks, err := s.Tasks(ctx, sc)
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(tasks) != quest.TaskCount {
		t.Fatalf("len(tasks) = %d, want %d", len(tasks), quest.TaskCount)
	}
	for i, task := range tasks {
		if task.Position != i || task.Completed {
			t.Errorf("task %d = %+v", i, task)
		}
	}
	if tasks[0].Title != "Drink een shotje" {
		t.Errorf("first title = %q", tasks[0].Title)
	}

	stops, err := s.Treasure(ctx, sc)
	if err != nil || len(stops) != len(quest.TreasureStops) {
		t.Fatalf("Treasure = %d, %v", len(stops), err)
	}

	created, err = s.CreateSession(ctx, quest.SessionContext{ID: "abc", UserName: "Piet"})
	if err != nil || created {
		t.Fatalf("second CreateSession = %v, %v", created, err)
	}
	sess, err := s.Session(ctx, sc)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess.UserName != "Piet" {
		t.Errorf("UserName = %q, want renamed", sess.UserName)
	}
	if sess.PointsBalance != nil {
		t.Errorf("new session balance = %d, want unset", *sess.PointsBalance)
	}
	tasks, _ = s.Tasks(ctx, sc)
	if len(tasks) != quest.TaskCount {
		t.Errorf("tasks duplicated: %d", len(tasks))
	}
}

func TestSessionHandshake(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t, nil)
	ghost := quest.SessionContext{ID: "ghost"}

	if _, err := s.Tasks(ctx, ghost); !errors.Is(err, quest.ErrSessionNotFound) {
		t.Errorf("Tasks err = %v", err)
	}
	if err := s.SetBalance(ctx, ghost, 10); !errors.Is(err, quest.ErrSessionNotFound) {
		t.Errorf("SetBalance err = %v", err)
	}
	if _, err := s.Balance(ctx, quest.SessionContext{}); !errors.Is(err, quest.ErrSessionNotFound) {
		t.Errorf("empty id err = %v", err)
	}
}

func TestBalance(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t, nil)
	sc := storetest.Session(t, s, "p1")

	bal, err := s.Balance(ctx, sc)
	if err != nil || bal != nil {
		t.Fatalf("Balance = %v, %v; want unset", bal, err)
	}

	if err := s.SetBalance(ctx, sc, -5); err != nil {
		t.Fatal(err)
	}
	bal, _ = s.Balance(ctx, sc)
	if bal == nil || *bal != 0 {
		t.Fatalf("balance after negative set = %v", bal)
	}

	n, err := s.AdjustBalance(ctx, sc, "", 100)
	if err != nil || n != 100 {
		t.Fatalf("AdjustBalance(+100) = %d, %v", n, err)
	}
	n, err = s.AdjustBalance(ctx, sc, "", -250)
	if err != nil || n != 0 {
		t.Fatalf("AdjustBalance(-250) = %d, %v; want clamp to 0", n, err)
	}

	s.SetBalance(ctx, sc, 50)
	if _, err := s.DebitBalance(ctx, sc, "", 60); !errors.Is(err, quest.ErrInsufficientFunds) {
		t.Fatalf("DebitBalance(60) err = %v", err)
	}
	bal, _ = s.Balance(ctx, sc)
	if *bal != 50 {
		t.Errorf("balance after failed debit = %d, want 50", *bal)
	}
	n, err = s.DebitBalance(ctx, sc, "", 50)
	if err != nil || n != 0 {
		t.Errorf("DebitBalance(50) = %d, %v", n, err)
	}
}

func TestBalanceOpsApplyOnce(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t, nil)
	sc := storetest.Session(t, s, "ops")
	s.SetBalance(ctx, sc, 100)

	for range 2 {
		n, err := s.AdjustBalance(ctx, sc, "op-add", 35)
		if err != nil || n != 135 {
			t.Fatalf("AdjustBalance(op-add) = %d, %v; want 135", n, err)
		}
	}
	for range 2 {
		n, err := s.DebitBalance(ctx, sc, "op-debit", 50)
		if err != nil || n != 85 {
			t.Fatalf("DebitBalance(op-debit) = %d, %v; want 85", n, err)
		}
	}
	if bal, _ := s.Balance(ctx, sc); bal == nil || *bal != 85 {
		t.Errorf("balance = %v, want 85", bal)
	}
}

func TestRetriedInsertsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t, nil)
	sc := storetest.Session(t, s, "ins")

	p := quest.ShopPurchase{ID: "buy-1", ItemID: "bierslaaf", ItemName: "Bierslaaf", Price: 50}
	for range 2 {
		got, err := s.InsertPurchase(ctx, sc, p)
		if err != nil || got.ID != "buy-1" {
			t.Fatalf("InsertPurchase = %+v, %v", got, err)
		}
	}
	rows, _ := s.Purchases(ctx, sc)
	if len(rows) != 1 {
		t.Errorf("purchases = %d, want 1", len(rows))
	}

	e := quest.PointsHistoryEntry{ID: "h-1", Type: quest.TransactionSpent, Amount: 50, Description: "Shop: Bierslaaf"}
	s.AppendHistory(ctx, sc, e)
	s.AppendHistory(ctx, sc, e)
	if hist, _ := s.History(ctx, sc, 0); len(hist) != 1 {
		t.Errorf("history = %d entries, want 1", len(hist))
	}
}

func TestSchemaDrift(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for _, q := range []string{
		`CREATE TABLE sessions (id TEXT PRIMARY KEY, user_name TEXT, last_activity TEXT, created_at TEXT)`,
		`INSERT INTO sessions VALUES ('old', '', '', '')`,
	} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatal(err)
		}
	}

	s := store.New(db, nil)
	_, err = s.Balance(ctx, quest.SessionContext{ID: "old"})
	if !errors.Is(err, quest.ErrSchemaDrift) {
		t.Errorf("Balance err = %v, want schema drift", err)
	}
}

func TestCompleteTask(t *testing.T) {
	ctx := context.Background()
	b := feed.NewBroker()
	events := b.Subscribe("p1")
	s := storetest.New(t, b)
	sc := storetest.Session(t, s, "p1")

	at := time.Date(2025, 6, 14, 21, 0, 0, 0, time.UTC)
	task, err := s.CompleteTask(ctx, sc, 3, "/photos/bingo-x.jpg", at)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if !task.Completed || task.CompletedAt == nil || !task.CompletedAt.Equal(at) || task.PhotoURL != "/photos/bingo-x.jpg" {
		t.Errorf("task = %+v", task)
	}

	if _, err := s.CompleteTask(ctx, sc, 3, "", at); !errors.Is(err, quest.ErrTaskCompleted) {
		t.Errorf("second complete err = %v", err)
	}
	if _, err := s.CompleteTask(ctx, sc, 25, "", at); !errors.Is(err, quest.ErrInvalidPosition) {
		t.Errorf("invalid position err = %v", err)
	}

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Error("no change event published")
	}
}

func TestCompleteTaskKeepsEarlierPhoto(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t, nil)
	sc := storetest.Session(t, s, "p1")

	if err := s.SetTaskPhoto(ctx, sc, 7, "/photos/late.jpg"); err != nil {
		t.Fatal(err)
	}
	task, err := s.CompleteTask(ctx, sc, 7, "", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if task.PhotoURL != "/photos/late.jpg" {
		t.Errorf("PhotoURL = %q", task.PhotoURL)
	}
}

func TestResetTasks(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t, nil)
	p1 := storetest.Session(t, s, "p1")
	p2 := storetest.Session(t, s, "p2")

	s.CompleteTask(ctx, p1, 0, "/photos/a.jpg", time.Now())
	s.CompleteTask(ctx, p1, 1, "", time.Now())
	s.CompleteTask(ctx, p2, 0, "/photos/b.jpg", time.Now())

	photos, err := s.ResetTasks(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(photos) != 1 || photos[0] != "/photos/a.jpg" {
		t.Errorf("photos = %v", photos)
	}

	tasks, _ := s.Tasks(ctx, p1)
	if quest.GridOf(tasks).Count() != 0 {
		t.Error("p1 still has completed tasks")
	}
	tasks, _ = s.Tasks(ctx, p2)
	if quest.GridOf(tasks).Count() != 1 {
		t.Error("p2 tasks were reset")
	}

	photo, err := s.ReopenTask(ctx, "p2", 0)
	if err != nil || photo != "/photos/b.jpg" {
		t.Errorf("ReopenTask = %q, %v", photo, err)
	}
}

func TestTreasure(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t, nil)
	sc := storetest.Session(t, s, "p1")

	loc, err := s.MarkFound(ctx, sc, 1, "/photos/t1.jpg", time.Now())
	if err != nil || !loc.Found || loc.PhotoURL != "/photos/t1.jpg" {
		t.Fatalf("MarkFound = %+v, %v", loc, err)
	}
	if _, err := s.MarkFound(ctx, sc, 1, "", time.Now()); !errors.Is(err, quest.ErrAlreadyFound) {
		t.Errorf("second MarkFound err = %v", err)
	}
	if _, err := s.MarkFound(ctx, sc, 3, "", time.Now()); !errors.Is(err, quest.ErrStopLocked) {
		t.Errorf("MarkFound out of order err = %v", err)
	}

	photo, err := s.ResetTreasureStop(ctx, "p1", 1)
	if err != nil || photo != "/photos/t1.jpg" {
		t.Errorf("ResetTreasureStop = %q, %v", photo, err)
	}
	stops, _ := s.Treasure(ctx, sc)
	if stops[0].Found {
		t.Error("stop 1 still found")
	}
}

func TestPurchasesAndHistory(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t, nil)
	sc := storetest.Session(t, s, "p1")

	p := quest.ShopPurchase{ItemID: "bierslaaf", ItemName: "Bierslaaf", Price: 50}
	if _, err := s.InsertPurchase(ctx, sc, p); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertPurchase(ctx, sc, p); !errors.Is(err, quest.ErrAlreadyPurchased) {
		t.Errorf("duplicate err = %v", err)
	}
	ok, err := s.HasPurchased(ctx, sc, "bierslaaf")
	if err != nil || !ok {
		t.Errorf("HasPurchased = %v, %v", ok, err)
	}

	s.AppendHistory(ctx, sc, quest.PointsHistoryEntry{Type: quest.TransactionEarned, Amount: 20, Description: "Bingo"})
	s.AppendHistory(ctx, sc, quest.PointsHistoryEntry{Type: quest.TransactionSpent, Amount: 50, Description: "Shop: Bierslaaf"})

	hist, err := s.History(ctx, sc, 0)
	if err != nil || len(hist) != 2 {
		t.Fatalf("History = %d, %v", len(hist), err)
	}
	if hist[0].Type != quest.TransactionSpent || hist[0].Amount != 50 {
		t.Errorf("newest entry = %+v", hist[0])
	}

	hist, _ = s.History(ctx, sc, 1)
	if len(hist) != 1 {
		t.Errorf("limited history = %d", len(hist))
	}
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	b := feed.NewBroker()
	all := b.Subscribe(feed.All)
	s := storetest.New(t, b)
	storetest.Session(t, s, "p1")
	<-all // session insert

	since := time.Now().Add(-time.Minute)
	s.InsertMessage(ctx, "", "CMD:RELOAD")
	s.InsertMessage(ctx, "p1", "CMD:NAV:/shop")
	s.InsertMessage(ctx, "p2", "CMD:APP_RESET")

	msgs, err := s.Messages(ctx, "p1", since)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Message != "CMD:RELOAD" || msgs[1].Message != "CMD:NAV:/shop" {
		t.Errorf("messages = %+v", msgs)
	}
	if len(all) != 3 {
		t.Errorf("published %d message events, want 3", len(all))
	}
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t, nil)
	sc := storetest.Session(t, s, "p1")
	storetest.Session(t, s, "p2")

	if err := s.DeleteSession(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Tasks(ctx, sc); !errors.Is(err, quest.ErrSessionNotFound) {
		t.Errorf("Tasks after delete err = %v", err)
	}
	if err := s.DeleteSession(ctx, "p1"); !errors.Is(err, quest.ErrSessionNotFound) {
		t.Errorf("second delete err = %v", err)
	}

	n, err := s.DeleteAllSessions(ctx)
	if err != nil || n != 1 {
		t.Errorf("DeleteAllSessions = %d, %v", n, err)
	}
}

func TestAdminSessions(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t, nil)

	if err := s.EnsureAdmin(ctx, "Admin@PartyQuest.local", "geheim"); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureAdmin(ctx, "admin@partyquest.local", "other"); err != nil {
		t.Fatal(err)
	}

	id, hash, err := s.AdminByEmail(ctx, "admin@partyquest.local")
	if err != nil || id == "" || hash == "" {
		t.Fatalf("AdminByEmail = %q, %q, %v", id, hash, err)
	}

	sid, err := s.CreateAdminSession(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := s.AdminFromSession(ctx, sid)
	if err != nil || sess.Email != "admin@partyquest.local" {
		t.Errorf("AdminFromSession = %+v, %v", sess, err)
	}

	s.DeleteAdminSession(ctx, sid)
	if _, err := s.AdminFromSession(ctx, sid); !errors.Is(err, quest.ErrNotFound) {
		t.Errorf("deleted session err = %v", err)
	}
}
