package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/playperu/partyquest/internal/quest"
)

// gone reports a replay whose session or task no longer exists. Such
// actions are dropped instead of retried forever.
func gone(err error) bool {
	return errors.Is(err, quest.ErrSessionNotFound) || errors.Is(err, quest.ErrInvalidPosition)
}

func (s *Service) replayCompletion(ctx context.Context, raw json.RawMessage) error {
	var p completionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decoding completion: %w", err)
	}
	sc := quest.SessionContext{ID: p.SessionID, UserName: p.UserName}

	prev, err := s.store.Tasks(ctx, sc)
	if gone(err) {
		s.logger.Warn("dropping queued completion", "session_id", p.SessionID, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	if quest.GridOf(prev)[p.Position] {
		return nil
	}
	if p.Skipped {
		bought, err := s.store.HasPurchased(ctx, sc, quest.SkipItemID)
		if err != nil {
			return err
		}
		if !bought {
			s.logger.Warn("dropping queued skip without purchase", "session_id", p.SessionID, "position", p.Position)
			if err := s.skips.ClearSkip(ctx, p.SessionID); err != nil {
				s.logger.Warn("clearing skip flag", "session_id", p.SessionID, "error", err)
			}
			return nil
		}
	}

	done, err := s.store.CompleteTask(ctx, sc, p.Position, p.PhotoURL, p.CompletedAt)
	switch {
	case errors.Is(err, quest.ErrTaskCompleted):
		return nil
	case gone(err):
		s.logger.Warn("dropping queued completion", "session_id", p.SessionID, "error", err)
		return nil
	case err != nil:
		return err
	}

	desc := "Bingo: " + done.Title
	if p.Skipped {
		desc = "Bingo (skip): " + done.Title
	}
	earned, _, _ := s.credit(ctx, sc, quest.GridOf(prev), p.Position, desc)
	s.logger.Info("queued completion replayed", "session_id", p.SessionID, "position", p.Position, "earned", earned)
	return nil
}

func (s *Service) replayPhoto(ctx context.Context, raw json.RawMessage) error {
	var p photoPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decoding photo: %w", err)
	}
	sc := quest.SessionContext{ID: p.SessionID, UserName: p.UserName}

	url, err := s.photos.Upload(ctx, p.Name, p.Data)
	if err != nil {
		return err
	}
	err = s.store.SetTaskPhoto(ctx, sc, p.Position, url)
	if gone(err) {
		s.logger.Warn("dropping queued photo", "session_id", p.SessionID, "error", err)
		return nil
	}
	return err
}
