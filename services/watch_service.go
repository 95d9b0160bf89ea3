package services

import (
	"context"
	"errors"
	"log"

	"cirrusdrive/models"
)

// WatchService exposes live views over the record and user stores. Each
// emission is a complete ordered snapshot of the matching set; consumers
// replace their prior view wholesale. Cancelling the context stops
// emissions and touches no stored data.
type WatchService struct {
	records RecordStore
	users   UserStore
	bus     *EventBus
}

func NewWatchService(records RecordStore, users UserStore, bus *EventBus) *WatchService {
	return &WatchService{
		records: records,
		users:   users,
		bus:     bus,
	}
}

// WatchOwnFiles streams the caller's file list: one snapshot immediately,
// then one after every mutation touching the caller's files. The channel
// closes when ctx is cancelled.
func (s *WatchService) WatchOwnFiles(ctx context.Context, sess models.Session) (<-chan []models.File, error) {
	subID, events := s.bus.Subscribe(TopicFiles)
	out := make(chan []models.File, 1)

	go func() {
		defer close(out)
		defer s.bus.Unsubscribe(TopicFiles, subID)

		s.emitFiles(ctx, sess.UserID, out)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if event.OwnerID != "" && event.OwnerID != sess.UserID {
					continue
				}
				s.emitFiles(ctx, sess.UserID, out)
			}
		}
	}()

	return out, nil
}

func (s *WatchService) emitFiles(ctx context.Context, ownerID string, out chan []models.File) {
	files, err := s.records.ListByOwner(ctx, ownerID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[WatchService] failed to snapshot files for %s: %v", ownerID, err)
		}
		return
	}
	if files == nil {
		files = []models.File{}
	}

	// Latest snapshot wins; a stale one still sitting in the buffer is
	// dropped rather than blocking.
	select {
	case out <- files:
	default:
		select {
		case <-out:
		default:
		}
		out <- files
	}
}

// WatchAllUsers streams the full user list to administrators. The
// caller's role is read from the store at subscribe time and again before
// every emission; a caller without the admin role receives empty
// snapshots, never the underlying data.
func (s *WatchService) WatchAllUsers(ctx context.Context, sess models.Session) (<-chan []models.User, error) {
	subID, events := s.bus.Subscribe(TopicUsers)
	out := make(chan []models.User, 1)

	go func() {
		defer close(out)
		defer s.bus.Unsubscribe(TopicUsers, subID)

		s.emitUsers(ctx, sess.UserID, out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				s.emitUsers(ctx, sess.UserID, out)
			}
		}
	}()

	return out, nil
}

func (s *WatchService) emitUsers(ctx context.Context, callerID string, out chan []models.User) {
	users := []models.User{}

	caller, err := s.users.GetByID(ctx, callerID)
	switch {
	case errors.Is(err, ErrNotFound):
		// Caller deleted mid-subscription; they see nothing from now on.
	case err != nil:
		if ctx.Err() == nil {
			log.Printf("[WatchService] role check failed for %s: %v", callerID, err)
		}
		return
	case caller.Role == models.RoleAdmin:
		users, err = s.users.List(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[WatchService] failed to snapshot users: %v", err)
			}
			return
		}
	}

	select {
	case out <- users:
	default:
		select {
		case <-out:
		default:
		}
		out <- users
	}
}
