// Package treasure runs the three-stop treasure hunt: a quiz question per
// stop reveals its location, and the stop counts as found once the player
// proves being there.
package treasure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playperu/partyquest/internal/offline"
	"github.com/playperu/partyquest/internal/photos"
	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/retry"
)

type Store interface {
	Treasure(ctx context.Context, sc quest.SessionContext) ([]quest.TreasureLocation, error)
	MarkFound(ctx context.Context, sc quest.SessionContext, stop int, photoURL string, at time.Time) (quest.TreasureLocation, error)
}

type Photos interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

type Queue interface {
	Enqueue(ctx context.Context, t offline.ActionType, payload any) (offline.Action, error)
	Hold(ctx context.Context, t offline.ActionType, payload any) (offline.Action, error)
	Pending(ctx context.Context) ([]offline.Action, error)
	Register(t offline.ActionType, h offline.Handler)
}

type Service struct {
	store  Store
	photos Photos
	queue  Queue
	policy retry.Policy
	upload retry.Policy
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, ph Photos, q Queue, write, upload retry.Policy, logger *slog.Logger) *Service {
	s := &Service{
		store:  store,
		photos: ph,
		queue:  q,
		policy: write,
		upload: upload,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	q.Register(offline.TreasureFound, s.replayFound)
	return s
}

type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

func locationOf(st quest.TreasureStop) *Location {
	return &Location{Name: st.Name, Lat: st.Lat, Lng: st.Lng}
}

type StopView struct {
	Number   int            `json:"number"`
	Question string         `json:"question"`
	Answers  []quest.Answer `json:"answers"`
	Unlocked bool           `json:"unlocked"`
	Found    bool           `json:"found"`
	FoundAt  *time.Time     `json:"foundAt,omitempty"`
	PhotoURL string         `json:"photoUrl,omitempty"`
	Location *Location      `json:"location,omitempty"` // only once found
}

type Progress struct {
	Stops    []StopView `json:"stops"`
	Current  int        `json:"current"` // next stop to find, 0 when done
	Complete bool       `json:"complete"`
}

func (s *Service) rows(ctx context.Context, sc quest.SessionContext) (map[int]quest.TreasureLocation, error) {
	rows, err := retry.Value(ctx, s.policy, func(ctx context.Context) ([]quest.TreasureLocation, error) {
		return s.store.Treasure(ctx, sc)
	})
	if err != nil {
		return nil, err
	}
	out := make(map[int]quest.TreasureLocation, len(rows))
	for _, r := range rows {
		out[r.Stop] = r
	}
	return out, nil
}

// Progress returns every stop with its state. A stop is unlocked once all
// earlier stops are found.
func (s *Service) Progress(ctx context.Context, sc quest.SessionContext) (Progress, error) {
	rows, err := s.rows(ctx, sc)
	if err != nil {
		return Progress{}, err
	}
	var p Progress
	unlocked := true
	for _, st := range quest.TreasureStops {
		r := rows[st.Number]
		v := StopView{Number: st.Number, Question: st.Question, Answers: st.Answers, Unlocked: unlocked, Found: r.Found, FoundAt: r.FoundAt, PhotoURL: r.PhotoURL}
		if r.Found {
			v.Location = locationOf(st)
		} else {
			if p.Current == 0 {
				p.Current = st.Number
			}
			unlocked = false
		}
		p.Stops = append(p.Stops, v)
	}
	p.Complete = p.Current == 0
	return p, nil
}

// reachable returns the stop if it is the next one to find.
func (s *Service) reachable(ctx context.Context, sc quest.SessionContext, number int) (quest.TreasureStop, error) {
	st, ok := quest.StopByNumber(number)
	if !ok {
		return quest.TreasureStop{}, fmt.Errorf("stop %d: %w", number, quest.ErrNotFound)
	}
	rows, err := s.rows(ctx, sc)
	if err != nil {
		return quest.TreasureStop{}, err
	}
	if rows[number].Found {
		return quest.TreasureStop{}, quest.ErrAlreadyFound
	}
	for n := 1; n < number; n++ {
		if !rows[n].Found {
			return quest.TreasureStop{}, quest.ErrStopLocked
		}
	}
	return st, nil
}

type AnswerResult struct {
	Correct  bool      `json:"correct"`
	Location *Location `json:"location,omitempty"`
	Hint     string    `json:"hint,omitempty"`
}

// Answer checks a quiz answer. A correct answer reveals the location, a
// wrong one only the hint.
func (s *Service) Answer(ctx context.Context, sc quest.SessionContext, number int, answerID string) (AnswerResult, error) {
	st, err := s.reachable(ctx, sc, number)
	if err != nil {
		return AnswerResult{}, err
	}
	for _, a := range st.Answers {
		if a.ID != answerID {
			continue
		}
		if a.Correct {
			return AnswerResult{Correct: true, Location: locationOf(st)}, nil
		}
		return AnswerResult{Hint: st.Hint}, nil
	}
	return AnswerResult{}, fmt.Errorf("answer %q: %w", answerID, quest.ErrNotFound)
}

type ProofKind string

const (
	ProofGPS   ProofKind = "gps"
	ProofQR    ProofKind = "qr"
	ProofPhoto ProofKind = "photo"
)

// Proof shows the player is at a stop.
type Proof struct {
	Kind ProofKind `json:"kind"`
	Lat  float64   `json:"lat,omitempty"`
	Lng  float64   `json:"lng,omitempty"`
	Code string    `json:"code,omitempty"`
}

type Verdict struct {
	Accepted bool    `json:"accepted"`
	Distance float64 `json:"distanceMeters,omitempty"`
}

// check judges a proof. Photo proofs are judged by whoever looks at the
// photo, so any photo is accepted.
func check(st quest.TreasureStop, p Proof, hasPhoto bool) Verdict {
	switch p.Kind {
	case ProofGPS:
		d := quest.Distance(p.Lat, p.Lng, st.Lat, st.Lng)
		return Verdict{Accepted: d <= quest.LocationToleranceMeters, Distance: d}
	case ProofQR:
		return Verdict{Accepted: strings.EqualFold(strings.TrimSpace(p.Code), st.QRCode)}
	case ProofPhoto:
		return Verdict{Accepted: hasPhoto}
	}
	return Verdict{}
}

// Verify judges a GPS or QR proof without recording anything.
func (s *Service) Verify(ctx context.Context, sc quest.SessionContext, number int, p Proof) (Verdict, error) {
	st, err := s.reachable(ctx, sc, number)
	if err != nil {
		return Verdict{}, err
	}
	return check(st, p, false), nil
}

type FoundResult struct {
	Stop         quest.TreasureLocation `json:"stop"`
	Location     *Location              `json:"location"`
	Sync         quest.SyncStatus       `json:"sync"`
	PhotoWarning string                 `json:"photoWarning,omitempty"`
	Complete     bool                   `json:"complete"`
}

type foundPayload struct {
	SessionID string    `json:"sessionId"`
	UserName  string    `json:"userName"`
	Stop      int       `json:"stop"`
	PhotoURL  string    `json:"photoUrl,omitempty"`
	PhotoName string    `json:"photoName,omitempty"`
	PhotoData []byte    `json:"photoData,omitempty"`
	FoundAt   time.Time `json:"foundAt"`
}

// Found records a stop as found after checking the proof. An optional photo
// is stored with it. When the store is unreachable the find is queued and
// the stop order is checked when it is replayed.
func (s *Service) Found(ctx context.Context, sc quest.SessionContext, number int, p Proof, photo []byte) (FoundResult, error) {
	st, err := s.reachable(ctx, sc, number)
	offlineRead := retry.Transient(err)
	if offlineRead {
		// reachable rejects unknown stops before reading.
		st, _ = quest.StopByNumber(number)
	} else if err != nil {
		return FoundResult{}, err
	}
	if v := check(st, p, len(photo) > 0); !v.Accepted {
		return FoundResult{}, quest.ErrProofRejected
	}

	now := s.now()
	res := FoundResult{Location: locationOf(st), Sync: quest.SyncSynced, Complete: number == len(quest.TreasureStops)}
	payload := foundPayload{SessionID: sc.ID, UserName: sc.UserName, Stop: number, FoundAt: now}

	if len(photo) > 0 {
		name := photos.Key("treasure", fmt.Sprintf("%s-%d", sc.ID, number), now)
		url, err := retry.Value(ctx, s.upload, func(ctx context.Context) (string, error) {
			return s.photos.Upload(ctx, name, photo)
		})
		switch {
		case err == nil:
			payload.PhotoURL = url
		case retry.Transient(err):
			payload.PhotoName, payload.PhotoData = name, photo
		default:
			s.logger.Warn("treasure photo upload failed", "session_id", sc.ID, "stop", number, "error", err)
			res.PhotoWarning = "photo could not be uploaded"
		}
	}

	pending := func(hold bool) (FoundResult, error) {
		enqueue := s.queue.Enqueue
		if hold {
			enqueue = s.queue.Hold
		}
		if _, err := enqueue(ctx, offline.TreasureFound, payload); err != nil {
			return FoundResult{}, fmt.Errorf("queueing find: %w", err)
		}
		res.Stop = quest.TreasureLocation{SessionID: sc.ID, Stop: number, LocationName: st.Name, Found: true, FoundAt: &now}
		res.Sync = quest.SyncPending
		s.logger.Info("treasure find queued", "session_id", sc.ID, "stop", number, "store_down", hold)
		return res, nil
	}

	switch {
	case offlineRead:
		return pending(true)
	case payload.PhotoData != nil:
		// Only the photo bucket failed; the store is still reachable.
		return pending(false)
	}

	loc, err := retry.Value(ctx, s.policy, func(ctx context.Context) (quest.TreasureLocation, error) {
		return s.store.MarkFound(ctx, sc, number, payload.PhotoURL, now)
	})
	if retry.Transient(err) {
		return pending(true)
	}
	if err != nil {
		return FoundResult{}, err
	}

	res.Stop = loc
	s.logger.Info("treasure stop found", "session_id", sc.ID, "stop", number, "proof", p.Kind)
	return res, nil
}

func (s *Service) replayFound(ctx context.Context, raw json.RawMessage) error {
	var p foundPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decoding find: %w", err)
	}
	sc := quest.SessionContext{ID: p.SessionID, UserName: p.UserName}

	if len(p.PhotoData) > 0 {
		url, err := s.photos.Upload(ctx, p.PhotoName, p.PhotoData)
		if err != nil {
			return err
		}
		p.PhotoURL = url
	}
	_, err := s.store.MarkFound(ctx, sc, p.Stop, p.PhotoURL, p.FoundAt)
	switch {
	case errors.Is(err, quest.ErrAlreadyFound):
		return nil
	case errors.Is(err, quest.ErrStopLocked) && s.earlierQueued(ctx, p):
		return err
	case errors.Is(err, quest.ErrSessionNotFound), errors.Is(err, quest.ErrStopLocked):
		s.logger.Warn("dropping queued find", "session_id", p.SessionID, "stop", p.Stop, "error", err)
		return nil
	}
	return err
}

// earlierQueued reports whether a find for an earlier stop of the same
// session is still waiting in the queue.
func (s *Service) earlierQueued(ctx context.Context, p foundPayload) bool {
	actions, err := s.queue.Pending(ctx)
	if err != nil {
		return true
	}
	for _, a := range actions {
		if a.Type != offline.TreasureFound {
			continue
		}
		var q foundPayload
		if json.Unmarshal(a.Payload, &q) == nil && q.SessionID == p.SessionID && q.Stop < p.Stop {
			return true
		}
	}
	return false
}
