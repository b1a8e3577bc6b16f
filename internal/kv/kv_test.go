package kv

import (
	"context"
	"path/filepath"
	"testing"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	if _, ok, err := s.Get(ctx, "gameSessionId"); ok || err != nil {
		t.Fatalf("Get unset = %v, %v", ok, err)
	}
	if err := s.Set(ctx, "gameSessionId", "abc"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "gameSessionId", "def"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get(ctx, "gameSessionId")
	if v != "def" || !ok || err != nil {
		t.Errorf("Get = %q, %v, %v", v, ok, err)
	}
	s.Delete(ctx, "gameSessionId")
	if _, ok, _ := s.Get(ctx, "gameSessionId"); ok {
		t.Error("key survived Delete")
	}
}

func TestDeletePrefix(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	s.Set(ctx, "device/a/onboardingSeen", "true")
	s.Set(ctx, "device/a/gameSessionId", "x")
	s.Set(ctx, "device/ab/gameSessionId", "y")

	if err := s.DeletePrefix(ctx, "device/a/"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "device/a/gameSessionId"); ok {
		t.Error("prefixed key survived")
	}
	if _, ok, _ := s.Get(ctx, "device/ab/gameSessionId"); !ok {
		t.Error("non-matching key removed")
	}
}

func TestJSON(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	type item struct {
		ID   string `json:"id"`
		Data []byte `json:"data"`
	}
	in := []item{{ID: "1", Data: []byte{0xff, 0x00}}}
	if err := s.SetJSON(ctx, "offlinePendingActions", in); err != nil {
		t.Fatal(err)
	}
	var out []item
	ok, err := s.GetJSON(ctx, "offlinePendingActions", &out)
	if !ok || err != nil || len(out) != 1 || out[0].Data[0] != 0xff {
		t.Errorf("GetJSON = %+v, %v, %v", out, ok, err)
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	s.Set(ctx, "k", "v")
	s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if v, ok, _ := s.Get(ctx, "k"); !ok || v != "v" {
		t.Errorf("after reopen Get = %q, %v", v, ok)
	}
}
