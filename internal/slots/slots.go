// Package slots is the "Simply Wild" slot machine. Credits are the session's
// points: every change is written back to the ledger as an overwrite.
package slots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/playperu/partyquest/internal/offline"
	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/retry"
)

// GambleCap is the highest pending win a gamble can reach; reaching it
// collects automatically.
const GambleCap = 200

var (
	ErrNotStarted      = errors.New("slot machine not started")
	ErrNothingToGamble = errors.New("no pending win")
	ErrInvalidChoice   = errors.New("choice must be heads or tails")
)

type Coin string

const (
	Heads Coin = "heads"
	Tails Coin = "tails"
)

func (c Coin) other() Coin {
	if c == Heads {
		return Tails
	}
	return Heads
}

type Ledger interface {
	GetCurrentPoints(ctx context.Context, sc quest.SessionContext) (int, error)
	SetPoints(ctx context.Context, sc quest.SessionContext, amount int) error
}

type Queue interface {
	Hold(ctx context.Context, t offline.ActionType, payload any) (offline.Action, error)
	Register(t offline.ActionType, h offline.Handler)
}

type machine struct {
	mu      sync.Mutex
	sc      quest.SessionContext
	credits int
	pending int
}

type State struct {
	Credits    int              `json:"credits"`
	PendingWin int              `json:"pendingWin"`
	Sync       quest.SyncStatus `json:"sync"`
}

type Service struct {
	ledger Ledger
	queue  Queue
	logger *slog.Logger

	rngMu sync.Mutex
	rng   RNG

	mu       sync.Mutex
	machines map[string]*machine
}

// New builds the service and registers the points_update replay handler.
// rng may be nil.
func New(ledger Ledger, q Queue, rng RNG, logger *slog.Logger) *Service {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	s := &Service{ledger: ledger, queue: q, rng: rng, logger: logger, machines: make(map[string]*machine)}
	q.Register(offline.PointsUpdate, s.replayPoints)
	return s
}

func (s *Service) intN(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.IntN(n)
}

func (s *Service) float() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

// lockedRNG lets Evaluate draw under the service lock.
type lockedRNG struct{ s *Service }

func (l lockedRNG) IntN(n int) int   { return l.s.intN(n) }
func (l lockedRNG) Float64() float64 { return l.s.float() }

// Start loads the session's points as credits. Starting again reloads them.
func (s *Service) Start(ctx context.Context, sc quest.SessionContext) (State, error) {
	if err := sc.Validate(); err != nil {
		return State{}, err
	}
	pts, err := s.ledger.GetCurrentPoints(ctx, sc)
	if err != nil {
		return State{}, err
	}
	m := &machine{sc: sc, credits: pts}

	s.mu.Lock()
	s.machines[sc.ID] = m
	s.mu.Unlock()

	s.logger.Info("slot machine started", "session_id", sc.ID, "credits", pts)
	return State{Credits: pts, Sync: quest.SyncSynced}, nil
}

func (s *Service) machine(sessionID string) (*machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[sessionID]
	if !ok {
		return nil, ErrNotStarted
	}
	return m, nil
}

type SpinResult struct {
	Outcome Outcome `json:"outcome"`
	State   State   `json:"state"`
}

// Spin banks any pending win, pays one credit and spins. A win becomes the
// new pending win.
func (s *Service) Spin(ctx context.Context, sc quest.SessionContext) (SpinResult, error) {
	m, err := s.machine(sc.ID)
	if err != nil {
		return SpinResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending > 0 {
		m.credits += m.pending
		m.pending = 0
	}
	if m.credits < 1 {
		return SpinResult{State: State{Credits: m.credits, Sync: quest.SyncSynced}}, quest.ErrInsufficientFunds
	}
	m.credits--
	status := s.sync(ctx, m)

	var stops [3]int
	for r := range stops {
		stops[r] = s.intN(len(Reels[r]))
	}
	o := Evaluate(stops, lockedRNG{s})
	m.pending = o.Win

	return SpinResult{Outcome: o, State: State{Credits: m.credits, PendingWin: m.pending, Sync: status}}, nil
}

type GambleResult struct {
	Choice        Coin  `json:"choice"`
	Result        Coin  `json:"result"`
	Won           bool  `json:"won"`
	AutoCollected bool  `json:"autoCollected,omitempty"`
	State         State `json:"state"`
}

// Gamble bets the pending win on a coin flip. A win doubles it up to
// GambleCap, a loss clears it.
func (s *Service) Gamble(ctx context.Context, sc quest.SessionContext, choice Coin) (GambleResult, error) {
	if choice != Heads && choice != Tails {
		return GambleResult{}, ErrInvalidChoice
	}
	m, err := s.machine(sc.ID)
	if err != nil {
		return GambleResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == 0 {
		return GambleResult{}, ErrNothingToGamble
	}

	res := GambleResult{Choice: choice, Won: s.float() < gambleOdds(m.pending)}
	res.Result = choice
	if !res.Won {
		res.Result = choice.other()
		m.pending = 0
		res.State = State{Credits: m.credits, Sync: quest.SyncSynced}
		return res, nil
	}

	m.pending = min(m.pending*2, GambleCap)
	res.State = State{Credits: m.credits, PendingWin: m.pending, Sync: quest.SyncSynced}
	if m.pending >= GambleCap {
		m.credits += m.pending
		m.pending = 0
		res.AutoCollected = true
		res.State = State{Credits: m.credits, Sync: s.sync(ctx, m)}
	}
	return res, nil
}

// Collect banks the pending win.
func (s *Service) Collect(ctx context.Context, sc quest.SessionContext) (State, error) {
	m, err := s.machine(sc.ID)
	if err != nil {
		return State{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return s.collect(ctx, m), nil
}

func (s *Service) collect(ctx context.Context, m *machine) State {
	if m.pending == 0 {
		return State{Credits: m.credits, Sync: quest.SyncSynced}
	}
	m.credits += m.pending
	m.pending = 0
	return State{Credits: m.credits, Sync: s.sync(ctx, m)}
}

// Exit banks the pending win and closes the machine.
func (s *Service) Exit(ctx context.Context, sc quest.SessionContext) (State, error) {
	m, err := s.machine(sc.ID)
	if err != nil {
		return State{}, err
	}
	m.mu.Lock()
	st := s.collect(ctx, m)
	m.mu.Unlock()

	s.mu.Lock()
	if s.machines[sc.ID] == m {
		delete(s.machines, sc.ID)
	}
	s.mu.Unlock()
	return st, nil
}

// Forget drops the machine of a session, or every machine when sessionID is
// empty, without writing anything. Admin resets call it.
func (s *Service) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID == "" {
		clear(s.machines)
		return
	}
	delete(s.machines, sessionID)
}

type pointsPayload struct {
	SessionID string `json:"sessionId"`
	UserName  string `json:"userName"`
	Balance   int    `json:"balance"`
}

// sync writes the credits to the ledger, or queues the write when the store
// is unreachable.
func (s *Service) sync(ctx context.Context, m *machine) quest.SyncStatus {
	err := s.ledger.SetPoints(ctx, m.sc, m.credits)
	if err == nil {
		return quest.SyncSynced
	}
	if retry.Transient(err) {
		p := pointsPayload{SessionID: m.sc.ID, UserName: m.sc.UserName, Balance: m.credits}
		if _, err = s.queue.Hold(ctx, offline.PointsUpdate, p); err == nil {
			return quest.SyncPending
		}
	}
	s.logger.Warn("syncing slot credits failed", "session_id", m.sc.ID, "credits", m.credits, "error", err)
	return quest.SyncPending
}

func (s *Service) replayPoints(ctx context.Context, raw json.RawMessage) error {
	var p pointsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decoding points update: %w", err)
	}
	err := s.ledger.SetPoints(ctx, quest.SessionContext{ID: p.SessionID, UserName: p.UserName}, p.Balance)
	if errors.Is(err, quest.ErrSessionNotFound) {
		s.logger.Warn("dropping queued points update", "session_id", p.SessionID)
		return nil
	}
	return err
}
