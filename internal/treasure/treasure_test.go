package treasure_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/playperu/partyquest/internal/kv"
	"github.com/playperu/partyquest/internal/offline"
	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/retry"
	"github.com/playperu/partyquest/internal/store"
	"github.com/playperu/partyquest/internal/store/storetest"
	"github.com/playperu/partyquest/internal/treasure"
)

// offlineStore fails every read and write with quest.ErrOffline while down.
type offlineStore struct {
	*store.Store
	down bool
}

func (o *offlineStore) Treasure(ctx context.Context, sc quest.SessionContext) ([]quest.TreasureLocation, error) {
	if o.down {
		return nil, fmt.Errorf("list treasure: %w", quest.ErrOffline)
	}
	return o.Store.Treasure(ctx, sc)
}

func (o *offlineStore) MarkFound(ctx context.Context, sc quest.SessionContext, stop int, photoURL string, at time.Time) (quest.TreasureLocation, error) {
	if o.down {
		return quest.TreasureLocation{}, fmt.Errorf("mark found: %w", quest.ErrOffline)
	}
	return o.Store.MarkFound(ctx, sc, stop, photoURL, at)
}

type memPhotos struct{ down bool }

func (m *memPhotos) Upload(_ context.Context, name string, _ []byte) (string, error) {
	if m.down {
		return "", fmt.Errorf("upload %s: %w", name, quest.ErrOffline)
	}
	return "http://localhost/photos/" + name, nil
}

func setup(t *testing.T) (*treasure.Service, *offlineStore, *offline.Queue, quest.SessionContext) {
	t.Helper()
	svc, flaky, _, q, sc := setupWithPhotos(t)
	return svc, flaky, q, sc
}

func setupWithPhotos(t *testing.T) (*treasure.Service, *offlineStore, *memPhotos, *offline.Queue, quest.SessionContext) {
	t.Helper()
	policy := retry.Policy{MaxRetries: 1, Base: time.Millisecond, Cap: time.Millisecond}
	s := storetest.New(t, nil)
	sc := storetest.Session(t, s, "s1")
	local, err := kv.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { local.Close() })
	q := offline.New(local, slog.Default())
	flaky := &offlineStore{Store: s}
	ph := &memPhotos{}
	return treasure.New(flaky, ph, q, policy, policy, slog.Default()), flaky, ph, q, sc
}

func at(stop int) treasure.Proof {
	st, _ := quest.StopByNumber(stop)
	return treasure.Proof{Kind: treasure.ProofGPS, Lat: st.Lat, Lng: st.Lng}
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()
	svc, _, _, sc := setup(t)

	res, err := svc.Answer(ctx, sc, 1, "A")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Correct || res.Location == nil || res.Location.Lat != quest.TreasureStops[0].Lat {
		t.Errorf("correct answer = %+v", res)
	}

	res, _ = svc.Answer(ctx, sc, 1, "B")
	if res.Correct || res.Location != nil || res.Hint == "" {
		t.Errorf("wrong answer = %+v", res)
	}

	if _, err := svc.Answer(ctx, sc, 1, "Z"); !errors.Is(err, quest.ErrNotFound) {
		t.Errorf("unknown answer err = %v", err)
	}
	if _, err := svc.Answer(ctx, sc, 2, "B"); !errors.Is(err, quest.ErrStopLocked) {
		t.Errorf("locked stop err = %v", err)
	}
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	svc, _, _, sc := setup(t)

	v, err := svc.Verify(ctx, sc, 1, at(1))
	if err != nil || !v.Accepted {
		t.Errorf("on site = %+v, %v", v, err)
	}

	far := at(1)
	far.Lat += 0.001 // about 111 m north
	if v, _ := svc.Verify(ctx, sc, 1, far); v.Accepted || v.Distance < 100 {
		t.Errorf("far away = %+v", v)
	}

	qr := treasure.Proof{Kind: treasure.ProofQR, Code: "treasure-1"}
	if v, _ := svc.Verify(ctx, sc, 1, qr); !v.Accepted {
		t.Error("matching QR rejected")
	}
	qr.Code = "TREASURE-2"
	if v, _ := svc.Verify(ctx, sc, 1, qr); v.Accepted {
		t.Error("QR of another stop accepted")
	}
}

func TestFoundSequence(t *testing.T) {
	ctx := context.Background()
	svc, _, _, sc := setup(t)

	if _, err := svc.Found(ctx, sc, 2, at(2), nil); !errors.Is(err, quest.ErrStopLocked) {
		t.Fatalf("out of order err = %v", err)
	}
	if _, err := svc.Found(ctx, sc, 1, at(2), nil); !errors.Is(err, quest.ErrProofRejected) {
		t.Fatalf("wrong place err = %v", err)
	}

	res, err := svc.Found(ctx, sc, 1, treasure.Proof{Kind: treasure.ProofPhoto}, []byte("jpeg"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Stop.Found || res.Stop.PhotoURL == "" || res.Sync != quest.SyncSynced || res.Complete {
		t.Errorf("found = %+v", res)
	}
	if _, err := svc.Found(ctx, sc, 1, at(1), nil); !errors.Is(err, quest.ErrAlreadyFound) {
		t.Errorf("again err = %v", err)
	}

	svc.Found(ctx, sc, 2, at(2), nil)
	res, err = svc.Found(ctx, sc, 3, at(3), nil)
	if err != nil || !res.Complete {
		t.Errorf("last stop = %+v, %v", res, err)
	}

	p, _ := svc.Progress(ctx, sc)
	if !p.Complete || p.Current != 0 {
		t.Errorf("progress = %+v", p)
	}
}

func TestProgress(t *testing.T) {
	ctx := context.Background()
	svc, _, _, sc := setup(t)
	svc.Found(ctx, sc, 1, at(1), nil)

	p, err := svc.Progress(ctx, sc)
	if err != nil {
		t.Fatal(err)
	}
	if p.Current != 2 || p.Complete || len(p.Stops) != 3 {
		t.Fatalf("progress = %+v", p)
	}
	if !p.Stops[0].Found || p.Stops[0].Location == nil {
		t.Errorf("stop 1 = %+v", p.Stops[0])
	}
	if !p.Stops[1].Unlocked || p.Stops[2].Unlocked || p.Stops[1].Location != nil {
		t.Errorf("stops 2-3 = %+v / %+v", p.Stops[1], p.Stops[2])
	}
}

func TestFoundOfflineIsQueued(t *testing.T) {
	ctx := context.Background()
	svc, flaky, q, sc := setup(t)
	flaky.down = true

	res, err := svc.Found(ctx, sc, 1, at(1), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Sync != quest.SyncPending || !res.Stop.Found {
		t.Errorf("found = %+v", res)
	}

	flaky.down = false
	if r, err := q.Flush(ctx); err != nil || r.Replayed != 1 {
		t.Fatalf("flush = %+v, %v", r, err)
	}
	p, _ := svc.Progress(ctx, sc)
	if !p.Stops[0].Found {
		t.Error("queued find not applied")
	}
}

func TestFoundOfflineChecksOrderOnReplay(t *testing.T) {
	ctx := context.Background()
	svc, flaky, q, sc := setup(t)
	flaky.down = true

	for _, stop := range []int{1, 2} {
		res, err := svc.Found(ctx, sc, stop, at(stop), nil)
		if err != nil {
			t.Fatalf("stop %d: %v", stop, err)
		}
		if res.Sync != quest.SyncPending {
			t.Errorf("stop %d sync = %s", stop, res.Sync)
		}
	}
	if _, err := svc.Found(ctx, sc, 1, at(2), nil); !errors.Is(err, quest.ErrProofRejected) {
		t.Errorf("wrong place while offline err = %v", err)
	}
	if q.Online() {
		t.Error("queue still online")
	}

	flaky.down = false
	if r, err := q.Flush(ctx); err != nil || r.Replayed != 2 || r.Remaining != 0 {
		t.Fatalf("flush = %+v, %v", r, err)
	}
	p, _ := svc.Progress(ctx, sc)
	if !p.Stops[0].Found || !p.Stops[1].Found || p.Current != 3 {
		t.Errorf("progress = %+v", p)
	}
}

func TestQueuedFindOutOfOrderIsDropped(t *testing.T) {
	ctx := context.Background()
	svc, flaky, q, sc := setup(t)
	flaky.down = true

	if _, err := svc.Found(ctx, sc, 3, at(3), nil); err != nil {
		t.Fatal(err)
	}

	flaky.down = false
	if r, err := q.Flush(ctx); err != nil || r.Remaining != 0 {
		t.Fatalf("flush = %+v, %v", r, err)
	}
	p, _ := svc.Progress(ctx, sc)
	if p.Stops[2].Found || p.Current != 1 {
		t.Errorf("progress = %+v", p)
	}
}

func TestFoundPhotoBucketDownKeepsStoreOnline(t *testing.T) {
	ctx := context.Background()
	svc, _, ph, q, sc := setupWithPhotos(t)
	ph.down = true

	res, err := svc.Found(ctx, sc, 1, treasure.Proof{Kind: treasure.ProofPhoto}, []byte("jpeg"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Sync != quest.SyncPending {
		t.Errorf("sync = %s", res.Sync)
	}
	if !q.Online() {
		t.Error("photo failure marked the store offline")
	}

	ph.down = false
	if r, err := q.Flush(ctx); err != nil || r.Replayed != 1 {
		t.Fatalf("flush = %+v, %v", r, err)
	}
	p, _ := svc.Progress(ctx, sc)
	if !p.Stops[0].Found || p.Stops[0].PhotoURL == "" {
		t.Errorf("stop 1 = %+v", p.Stops[0])
	}
}
