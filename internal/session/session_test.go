package session_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/playperu/partyquest/internal/kv"
	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/session"
	"github.com/playperu/partyquest/internal/store/storetest"
)

func newManager(t *testing.T) (*session.Manager, *kv.Store) {
	t.Helper()
	local, err := kv.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { local.Close() })
	return session.NewManager(local, storetest.New(t, nil), slog.Default()), local
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	minted, err := m.Resolve(ctx, "dev1", "")
	if err != nil || minted == "" {
		t.Fatalf("Resolve = %q, %v", minted, err)
	}
	again, _ := m.Resolve(ctx, "dev1", "")
	if again != minted {
		t.Errorf("remembered id = %q, want %q", again, minted)
	}

	other, _ := m.Resolve(ctx, "dev2", "")
	if other == minted {
		t.Error("devices share a minted id")
	}

	fromURL, _ := m.Resolve(ctx, "dev1", "shared-session")
	if fromURL != "shared-session" {
		t.Errorf("URL id = %q", fromURL)
	}
	if got, _ := m.Resolve(ctx, "dev1", ""); got != "shared-session" {
		t.Errorf("after URL Resolve = %q", got)
	}

	m.Forget(ctx, "dev1")
	if got, _ := m.Resolve(ctx, "dev1", ""); got == "shared-session" {
		t.Error("Forget kept the id")
	}
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	sc := quest.SessionContext{ID: "s1", UserName: "Kees"}
	sess, err := m.Initialize(ctx, sc)
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID != "s1" || sess.UserName != "Kees" {
		t.Errorf("session = %+v", sess)
	}
	if _, err := m.Initialize(ctx, sc); err != nil {
		t.Errorf("second Initialize: %v", err)
	}
	if _, err := m.Initialize(ctx, quest.SessionContext{}); !errors.Is(err, quest.ErrSessionNotFound) {
		t.Errorf("empty id err = %v", err)
	}
}

func TestAppResetKeepsSessionID(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	id, _ := m.Resolve(ctx, "dev1", "s1")
	m.MarkOnboardingSeen(ctx, "dev1")
	m.MarkSkipUsed(ctx, id)

	d, err := m.ApplyCommand(ctx, "dev1", quest.Command{Kind: quest.CommandAppReset})
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != "reset" || d.Path != session.ResetLanding {
		t.Errorf("directive = %+v", d)
	}

	if got, _ := m.Resolve(ctx, "dev1", ""); got != "s1" {
		t.Errorf("session id after reset = %q, want s1", got)
	}
	if seen, _ := m.OnboardingSeen(ctx, "dev1"); seen {
		t.Error("onboarding flag survived reset")
	}
	if used, _ := m.SkipUsed(ctx, "s1"); used {
		t.Error("skip flag survived reset")
	}
}

func TestApplyCommandNavigate(t *testing.T) {
	m, _ := newManager(t)
	cmd, _ := quest.ParseCommand("CMD:NAV:/treasure")
	d, err := m.ApplyCommand(context.Background(), "dev1", cmd)
	if err != nil || d.Action != "navigate" || d.Path != "/treasure" {
		t.Errorf("directive = %+v, %v", d, err)
	}
}
