// Copyright 2024 the quotefeed authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package subscription holds the in-memory registry of active asset
// subscriptions: which clients currently care about which (exchange,
// identifier) pair, and the last quote observed for each pair.
//
// The registry is process state only. It is created once at startup and
// clients re-subscribe after a restart.
package subscription

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AssetKey identifies a tradable instrument on a specific exchange.
// Both fields are case-sensitive and compared verbatim.
type AssetKey struct {
	Exchange   string `json:"exchange"`
	Identifier string `json:"identifier"`
}

// Quote is the last observed price tick for an asset.
type Quote struct {
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Time     time.Time       `json:"observedAt"`
}

// Subscription records interest in one AssetKey. Quote is nil until the
// first successful poll. Subscribers keeps insertion order and never
// contains duplicates.
type Subscription struct {
	Key         AssetKey `json:"key"`
	Quote       *Quote   `json:"quote"`
	Subscribers []string `json:"subscribers"`
}

// ExchangeGroup is the poll-time batching unit: all identifiers on one
// exchange that currently have at least one subscriber.
type ExchangeGroup struct {
	Exchange    string
	Identifiers []string
}

// Registry is the authoritative map of active subscriptions. An entry
// exists iff its subscriber set is non-empty. All methods are safe for
// concurrent use; mutators and GroupedByExchange serialize on one lock so
// snapshots are consistent.
type Registry struct {
	log *zap.Logger

	mu sync.Mutex
	// exchange -> identifier -> entry, mirroring how upstream requests
	// are batched.
	subs map[string]map[string]*Subscription
}

func New(log *zap.Logger) *Registry {
	return &Registry{
		log:  log,
		subs: make(map[string]map[string]*Subscription),
	}
}

// Add subscribes client to every key in keys. Keys without an entry get a
// fresh Subscription with no quote; existing entries merge client into
// their subscriber set. Adding an already-subscribed client is a no-op.
// Exchange codes are accepted opaquely, Add never fails.
func (r *Registry) Add(keys []AssetKey, client string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		ex, ok := r.subs[k.Exchange]
		if !ok {
			ex = make(map[string]*Subscription)
			r.subs[k.Exchange] = ex
		}
		s, ok := ex[k.Identifier]
		if !ok {
			ex[k.Identifier] = &Subscription{Key: k, Subscribers: []string{client}}
			r.log.Debug("new subscription",
				zap.String("exchange", k.Exchange),
				zap.String("identifier", k.Identifier),
				zap.String("client", client))
			continue
		}
		if contains(s.Subscribers, client) {
			continue
		}
		s.Subscribers = append(s.Subscribers, client)
		r.log.Debug("client joined subscription",
			zap.String("exchange", k.Exchange),
			zap.String("identifier", k.Identifier),
			zap.String("client", client))
	}
}

// Remove unsubscribes client from every key in keys. Entries whose
// subscriber set becomes empty are deleted. Unknown keys and clients not
// present in the subscriber set are silent no-ops.
func (r *Registry) Remove(keys []AssetKey, client string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		ex, ok := r.subs[k.Exchange]
		if !ok {
			continue
		}
		s, ok := ex[k.Identifier]
		if !ok {
			continue
		}
		s.Subscribers = remove(s.Subscribers, client)
		if len(s.Subscribers) == 0 {
			delete(ex, k.Identifier)
			r.log.Debug("subscription dropped, no subscribers left",
				zap.String("exchange", k.Exchange),
				zap.String("identifier", k.Identifier))
		}
		if len(ex) == 0 {
			delete(r.subs, k.Exchange)
		}
	}
}

// GroupedByExchange returns one group per exchange that has active
// subscriptions. Group and identifier order is whatever map iteration
// yields; callers must not rely on it.
func (r *Registry) GroupedByExchange() []ExchangeGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	groups := make([]ExchangeGroup, 0, len(r.subs))
	for exchange, entries := range r.subs {
		g := ExchangeGroup{Exchange: exchange, Identifiers: make([]string, 0, len(entries))}
		for id := range entries {
			g.Identifiers = append(g.Identifiers, id)
		}
		groups = append(groups, g)
	}
	return groups
}

// Get looks up a single subscription and returns a copy of it, so the
// caller sees the quote and the subscriber set of one consistent moment.
func (r *Registry) Get(identifier, exchange string) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.lookup(identifier, exchange)
	if !ok {
		return Subscription{}, false
	}
	out := Subscription{Key: s.Key, Subscribers: append([]string(nil), s.Subscribers...)}
	if s.Quote != nil {
		q := *s.Quote
		out.Quote = &q
	}
	return out, true
}

// UpdateQuote replaces the cached quote of the matching subscription. If
// the subscription is gone (unsubscribed while a poll was in flight) the
// update is dropped with a warning; nobody is interested anymore.
func (r *Registry) UpdateQuote(identifier, exchange string, q Quote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.lookup(identifier, exchange)
	if !ok {
		r.log.Warn("quote update for unknown subscription",
			zap.String("exchange", exchange),
			zap.String("identifier", identifier))
		return
	}
	s.Quote = &q
}

// Clear drops all subscriptions. Test and ops tooling only.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string]map[string]*Subscription)
}

// Size returns the number of active subscriptions across all exchanges.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, entries := range r.subs {
		n += len(entries)
	}
	return n
}

// Exchanges returns the number of exchanges with active subscriptions.
func (r *Registry) Exchanges() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Registry) lookup(identifier, exchange string) (*Subscription, bool) {
	ex, ok := r.subs[exchange]
	if !ok {
		return nil, false
	}
	s, ok := ex[identifier]
	return s, ok
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	for i, s := range list {
		if s == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
