// Package feed delivers notification updates to connected clients. The store
// is polled on a fixed interval; subscribers receive only notifications newer
// than the last batch they were sent.
package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"flowboard/api/internal/store"
)

// NotificationLister reads notifications for a user.
type NotificationLister interface {
	ListNotificationsForUser(ctx context.Context, userID string, limit int) ([]store.Notification, error)
}

// Service polls the store and fans notifications out to subscribers.
type Service struct {
	store    NotificationLister
	interval time.Duration

	mu   sync.Mutex
	subs map[string]map[*Subscriber]struct{}
	done chan struct{}
	once sync.Once
}

// Subscriber receives notification batches for one user.
type Subscriber struct {
	C        chan []store.Notification
	userID   string
	lastSeen time.Time
}

// NewService creates a feed service polling at the given interval.
func NewService(lister NotificationLister, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Service{
		store:    lister,
		interval: interval,
		subs:     make(map[string]map[*Subscriber]struct{}),
		done:     make(chan struct{}),
	}
}

// Subscribe registers a listener for a user's notifications. The returned
// subscriber must be released with Unsubscribe.
func (s *Service) Subscribe(userID string) *Subscriber {
	sub := &Subscriber{
		C:        make(chan []store.Notification, 4),
		userID:   userID,
		lastSeen: time.Now(),
	}
	s.mu.Lock()
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[*Subscriber]struct{})
	}
	s.subs[userID][sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// Unsubscribe removes a listener and closes its channel.
func (s *Service) Unsubscribe(sub *Subscriber) {
	s.mu.Lock()
	if set, ok := s.subs[sub.userID]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			close(sub.C)
		}
		if len(set) == 0 {
			delete(s.subs, sub.userID)
		}
	}
	s.mu.Unlock()
}

// Run polls until the context is cancelled or Close is called.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// Close stops the poller.
func (s *Service) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Service) poll(ctx context.Context) {
	s.mu.Lock()
	userIDs := make([]string, 0, len(s.subs))
	for userID := range s.subs {
		userIDs = append(userIDs, userID)
	}
	s.mu.Unlock()

	for _, userID := range userIDs {
		notifications, err := s.store.ListNotificationsForUser(ctx, userID, 50)
		if err != nil {
			log.Printf("feed: poll user %s: %v", userID, err)
			continue
		}
		s.deliver(userID, notifications)
	}
}

func (s *Service) deliver(userID string, notifications []store.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs[userID] {
		var fresh []store.Notification
		for _, n := range notifications {
			if n.CreatedAt.After(sub.lastSeen) {
				fresh = append(fresh, n)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		sub.lastSeen = fresh[0].CreatedAt
		for _, n := range fresh {
			if n.CreatedAt.After(sub.lastSeen) {
				sub.lastSeen = n.CreatedAt
			}
		}
		select {
		case sub.C <- fresh:
		default:
			// Slow consumer; drop the batch rather than block the poller.
		}
	}
}
