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

// Package poller drives the recurring quote refresh: snapshot the
// registry, fetch one batch per exchange, detect price changes and fan
// the changes out to the subscribed clients.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quotefeed/quotefeed/push"
	"github.com/quotefeed/quotefeed/quotes"
	"github.com/quotefeed/quotefeed/subscription"
)

const (
	DefaultInterval     = time.Minute
	DefaultTimeframe    = "1d"
	DefaultFetchTimeout = 10 * time.Second
)

// Poller polls the quote provider at a fixed interval. Cycles never
// overlap: a tick that fires while a fetch is still in flight is skipped
// outright rather than queued.
type Poller struct {
	Registry  *subscription.Registry
	Provider  quotes.Provider
	Publisher push.Publisher
	Logger    *zap.Logger
	Trace     trace.Tracer

	// zero values fall back to the package defaults. The defaults match
	// the original deployment's 1-minute cron and 1-day lookback; both
	// are assumed, not negotiated with the upstream provider.
	Interval     time.Duration
	Timeframe    string
	FetchTimeout time.Duration

	inFlight int32

	mu          sync.Mutex
	lastCycle   time.Time
	lastChanges int
	cycles      int64
}

// change is one detected quote change together with the subscriber set
// snapshot taken at detection time.
type change struct {
	event       push.Event
	subscribers []string
}

// Run blocks, polling every Interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.interval())
	defer t.Stop()
	p.Logger.Info("quote poller started",
		zap.Duration("interval", p.interval()),
		zap.String("timeframe", p.timeframe()))
	for {
		select {
		case <-ctx.Done():
			p.Logger.Info("quote poller stopped")
			return
		case <-t.C:
			p.Poll(ctx)
		}
	}
}

// Poll executes one cycle and returns the number of changes published.
// Returns -1 when the cycle was skipped because another one is in flight.
func (p *Poller) Poll(ctx context.Context) int {
	if !atomic.CompareAndSwapInt32(&p.inFlight, 0, 1) {
		p.Logger.Warn("previous poll cycle still in flight, skipping tick")
		return -1
	}
	defer atomic.StoreInt32(&p.inFlight, 0)

	ctx, span := p.tracer().Start(ctx, "poll cycle")
	defer span.End()

	groups := p.Registry.GroupedByExchange()
	if len(groups) == 0 {
		p.finishCycle(0)
		return 0
	}

	var mu sync.Mutex
	var changes []change
	g, gctx := errgroup.WithContext(ctx)
	for _, grp := range groups {
		grp := grp
		g.Go(func() error {
			got := p.fetchGroup(gctx, grp)
			if len(got) == 0 {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, aq := range got {
				if c, ok := p.apply(aq); ok {
					changes = append(changes, c)
				}
			}
			// group fetch failures are contained here, never
			// escalated: one bad exchange must not starve the rest
			return nil
		})
	}
	g.Wait()

	for _, c := range changes {
		for _, clientID := range c.subscribers {
			if err := p.Publisher.Publish(ctx, clientID, c.event); err != nil {
				p.Logger.Warn("event delivery failed",
					zap.String("client", clientID),
					zap.String("exchange", c.event.Exchange),
					zap.String("identifier", c.event.Identifier),
					zap.Error(err))
			}
		}
	}
	if len(changes) > 0 {
		p.Logger.Info("poll cycle published changes", zap.Int("changes", len(changes)))
	}
	p.finishCycle(len(changes))
	return len(changes)
}

// fetchGroup runs the single upstream request for one exchange group
// under a bounded timeout. No registry lock is held here.
func (p *Poller) fetchGroup(ctx context.Context, grp subscription.ExchangeGroup) []quotes.AssetQuote {
	ctx, cancel := context.WithTimeout(ctx, p.fetchTimeout())
	defer cancel()
	ctx, span := p.tracer().Start(ctx, "fetch exchange group")
	defer span.End()

	got, err := p.Provider.GetQuotes(ctx, grp.Exchange, grp.Identifiers, p.timeframe())
	if err != nil {
		p.Logger.Warn("quote fetch failed for exchange group",
			zap.String("exchange", grp.Exchange),
			zap.Int("identifiers", len(grp.Identifiers)),
			zap.Error(err))
		return nil
	}
	return got
}

// apply diffs one returned quote against the cached one and, on change,
// writes it back and snapshots the subscriber set as of right now. The
// re-read (rather than reusing the cycle-start snapshot) picks up clients
// that joined mid-cycle and drops ones that left.
func (p *Poller) apply(aq quotes.AssetQuote) (change, bool) {
	cur, ok := p.Registry.Get(aq.Identifier, aq.Exchange)
	if !ok {
		// unsubscribed while the fetch was in flight
		p.Logger.Warn("dropping quote for vanished subscription",
			zap.String("exchange", aq.Exchange),
			zap.String("identifier", aq.Identifier))
		return change{}, false
	}
	if cur.Quote != nil &&
		cur.Quote.Price.Equal(aq.Quote.Price) &&
		cur.Quote.Currency == aq.Quote.Currency {
		return change{}, false
	}

	p.Registry.UpdateQuote(aq.Identifier, aq.Exchange, aq.Quote)
	after, ok := p.Registry.Get(aq.Identifier, aq.Exchange)
	if !ok || len(after.Subscribers) == 0 {
		return change{}, false
	}
	return change{
		event: push.Event{
			Exchange:   aq.Exchange,
			Identifier: aq.Identifier,
			Quote:      aq.Quote,
		},
		subscribers: after.Subscribers,
	}, true
}

// Stats reports the last completed cycle for the status surface.
func (p *Poller) Stats() (lastCycle time.Time, lastChanges int, cycles int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCycle, p.lastChanges, p.cycles
}

func (p *Poller) finishCycle(changes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastCycle = time.Now()
	p.lastChanges = changes
	p.cycles++
}

func (p *Poller) interval() time.Duration {
	if p.Interval > 0 {
		return p.Interval
	}
	return DefaultInterval
}

func (p *Poller) timeframe() string {
	if p.Timeframe != "" {
		return p.Timeframe
	}
	return DefaultTimeframe
}

func (p *Poller) fetchTimeout() time.Duration {
	if p.FetchTimeout > 0 {
		return p.FetchTimeout
	}
	return DefaultFetchTimeout
}

func (p *Poller) tracer() trace.Tracer {
	if p.Trace != nil {
		return p.Trace
	}
	return trace.NewNoopTracerProvider().Tracer("")
}
