package cache

import (
	"sync"

	"bitget-connector/pkg/interfaces"
	"bitget-connector/pkg/schema"
)

// SubscriptionSet tracks the active logical streams of one session.
// 断线后订阅集保持不变,重连时据此恢复订阅
type SubscriptionSet struct {
	mu   sync.RWMutex
	subs map[string]schema.Subscription
}

// NewSubscriptionSet creates an empty subscription set.
func NewSubscriptionSet() interfaces.SubscriptionStore {
	return &SubscriptionSet{subs: make(map[string]schema.Subscription)}
}

// Add records subscriptions and returns only the newly added ones, making
// repeated subscribe calls idempotent (no duplicate frames get sent).
func (s *SubscriptionSet) Add(subs []schema.Subscription) []schema.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newlyAdded []schema.Subscription
	for _, sub := range subs {
		n := sub.Normalize()
		if _, exists := s.subs[n.Key()]; !exists {
			s.subs[n.Key()] = n
			newlyAdded = append(newlyAdded, n)
		}
	}
	return newlyAdded
}

// Remove deletes subscriptions, returning the ones actually removed.
func (s *SubscriptionSet) Remove(subs []schema.Subscription) []schema.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	var actuallyRemoved []schema.Subscription
	for _, sub := range subs {
		n := sub.Normalize()
		if _, exists := s.subs[n.Key()]; exists {
			delete(s.subs, n.Key())
			actuallyRemoved = append(actuallyRemoved, n)
		}
	}
	return actuallyRemoved
}

// Snapshot returns all active subscriptions.
func (s *SubscriptionSet) Snapshot() []schema.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]schema.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

// Contains reports whether a subscription is active.
func (s *SubscriptionSet) Contains(sub schema.Subscription) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subs[sub.Normalize().Key()]
	return ok
}

// Clear removes everything.
func (s *SubscriptionSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = make(map[string]schema.Subscription)
}
