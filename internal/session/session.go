// Package session resolves which player session a device plays and keeps the
// device-local flags that belong to it.
package session

import (
	"context"
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/playperu/partyquest/internal/quest"
)

const (
	keySessionID  = "gameSessionId"
	keyOnboarding = "hasSeenOnboarding"
	skipPrefix    = "skipUsed:"

	// ResetLanding is where a device goes after an app reset.
	ResetLanding = "/info"
)

type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

type Store interface {
	CreateSession(ctx context.Context, sc quest.SessionContext) (bool, error)
	Session(ctx context.Context, sc quest.SessionContext) (quest.Session, error)
	Touch(ctx context.Context, sc quest.SessionContext) error
}

type Manager struct {
	kv     KV
	store  Store
	logger *slog.Logger
}

func NewManager(kv KV, store Store, logger *slog.Logger) *Manager {
	return &Manager{kv: kv, store: store, logger: logger}
}

// NewID mints a session or device identifier.
func NewID() (string, error) {
	return gonanoid.New()
}

func deviceKey(device, key string) string { return "device/" + device + "/" + key }

// Resolve returns the session a device plays. A session ID from the URL wins
// and is remembered; otherwise the remembered one is used; otherwise a new
// one is minted and remembered.
func (m *Manager) Resolve(ctx context.Context, device, fromURL string) (string, error) {
	key := deviceKey(device, keySessionID)

	if fromURL != "" {
		if err := m.kv.Set(ctx, key, fromURL); err != nil {
			return "", fmt.Errorf("remembering session: %w", err)
		}
		return fromURL, nil
	}

	id, ok, err := m.kv.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("reading session: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}

	id, err = NewID()
	if err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	if err := m.kv.Set(ctx, key, id); err != nil {
		return "", fmt.Errorf("remembering session: %w", err)
	}
	m.logger.Info("new session id minted", "device", device, "session_id", id)
	return id, nil
}

// Forget drops the remembered session of a device.
func (m *Manager) Forget(ctx context.Context, device string) error {
	return m.kv.Delete(ctx, deviceKey(device, keySessionID))
}

// Initialize creates the session rows if they do not exist yet.
func (m *Manager) Initialize(ctx context.Context, sc quest.SessionContext) (quest.Session, error) {
	created, err := m.store.CreateSession(ctx, sc)
	if err != nil {
		return quest.Session{}, fmt.Errorf("initializing session: %w", err)
	}
	if created {
		m.logger.Info("session initialized", "session_id", sc.ID, "user_name", sc.UserName)
	}
	return m.store.Session(ctx, sc)
}

// Touch records activity. Failures are logged, not returned.
func (m *Manager) Touch(ctx context.Context, sc quest.SessionContext) {
	if err := m.store.Touch(ctx, sc); err != nil {
		m.logger.Warn("touch session failed", "session_id", sc.ID, "error", err)
	}
}

func (m *Manager) OnboardingSeen(ctx context.Context, device string) (bool, error) {
	v, _, err := m.kv.Get(ctx, deviceKey(device, keyOnboarding))
	return v == "true", err
}

func (m *Manager) MarkOnboardingSeen(ctx context.Context, device string) error {
	return m.kv.Set(ctx, deviceKey(device, keyOnboarding), "true")
}

// SkipUsed reports whether the one-time skip of a session was consumed.
func (m *Manager) SkipUsed(ctx context.Context, sessionID string) (bool, error) {
	v, _, err := m.kv.Get(ctx, skipPrefix+sessionID)
	return v == "true", err
}

func (m *Manager) MarkSkipUsed(ctx context.Context, sessionID string) error {
	return m.kv.Set(ctx, skipPrefix+sessionID, "true")
}

// ClearSkip restores the skip of a session, or of every session when
// sessionID is empty. Admin resets use it.
func (m *Manager) ClearSkip(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return m.kv.DeletePrefix(ctx, skipPrefix)
	}
	return m.kv.Delete(ctx, skipPrefix+sessionID)
}

// Directive tells the device what to do after a remote command.
type Directive struct {
	Action string `json:"action"` // "reset", "reload" or "navigate"
	Path   string `json:"path,omitempty"`
}

// ApplyCommand carries out a remote command for a device. APP_RESET clears
// every local flag of the device but keeps its session ID.
func (m *Manager) ApplyCommand(ctx context.Context, device string, cmd quest.Command) (Directive, error) {
	switch cmd.Kind {
	case quest.CommandAppReset:
		key := deviceKey(device, keySessionID)
		id, ok, err := m.kv.Get(ctx, key)
		if err != nil {
			return Directive{}, err
		}
		if err := m.kv.DeletePrefix(ctx, deviceKey(device, "")); err != nil {
			return Directive{}, err
		}
		if ok {
			if err := m.kv.Set(ctx, key, id); err != nil {
				return Directive{}, err
			}
			if err := m.ClearSkip(ctx, id); err != nil {
				return Directive{}, err
			}
		}
		m.logger.Info("app reset applied", "device", device, "session_id", id)
		return Directive{Action: "reset", Path: ResetLanding}, nil
	case quest.CommandReload:
		return Directive{Action: "reload"}, nil
	case quest.CommandNavigate:
		return Directive{Action: "navigate", Path: cmd.Path}, nil
	}
	return Directive{}, fmt.Errorf("unknown command %q", cmd.Kind)
}
