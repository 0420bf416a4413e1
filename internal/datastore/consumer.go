package datastore

import (
	"context"
	"time"

	"github.com/tphakala/voxrec/internal/logger"
	"github.com/tphakala/voxrec/internal/recorder"
)

const saveTimeout = 5 * time.Second

// Name implements events.EventConsumer.
func (s *Store) Name() string {
	return "session-history"
}

// ProcessEvent stores the summary carried by idle events and ignores the rest.
func (s *Store) ProcessEvent(ev recorder.Event) error {
	if ev.Type != recorder.EventIdle || ev.Summary == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.Save(ctx, ev.Summary); err != nil {
		return err
	}
	s.log.Debug("session saved",
		logger.String("session_id", ev.SessionID),
		logger.String("reason", string(ev.Summary.Reason)))
	return nil
}
