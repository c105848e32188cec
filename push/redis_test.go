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

package push

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/quotefeed/quotefeed/subscription"
)

func TestRedisPublisher(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()

	sub := rc.Subscribe(ctx, Channel("client1"))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil { // wait for subscription confirmation
		t.Fatal(err)
	}

	p := &RedisPublisher{R: rc}
	ev := Event{
		Exchange:   "LSX",
		Identifier: "US56035L1044",
		Quote: subscription.Quote{
			Price:    decimal.RequireFromString("42.86"),
			Currency: "EUR",
			Time:     time.Date(2024, 3, 1, 17, 30, 0, 0, time.UTC),
		},
	}
	if err := p.Publish(ctx, "client1", ev); err != nil {
		t.Fatal(err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Channel != "update:client1" {
		t.Fatalf("channel=%s, want update:client1", msg.Channel)
	}
	var got Event
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatal(err)
	}
	if got.Exchange != ev.Exchange || got.Identifier != ev.Identifier {
		t.Fatalf("got %+v, want %+v", got, ev)
	}
	if !got.Quote.Price.Equal(ev.Quote.Price) || got.Quote.Currency != "EUR" {
		t.Fatalf("quote round-trip mismatch: %+v", got.Quote)
	}
}

func TestMulti_allAttemptedOnError(t *testing.T) {
	var calls []string
	mk := func(name string, fail bool) Publisher {
		return publisherFunc(func(ctx context.Context, clientID string, ev Event) error {
			calls = append(calls, name)
			if fail {
				return context.DeadlineExceeded
			}
			return nil
		})
	}
	m := Multi{mk("a", true), mk("b", false)}
	err := m.Publish(context.Background(), "client1", Event{})
	if err == nil {
		t.Fatal("expected first error to surface")
	}
	if len(calls) != 2 {
		t.Fatalf("calls=%v, every transport must be attempted", calls)
	}
}

type publisherFunc func(ctx context.Context, clientID string, ev Event) error

func (f publisherFunc) Publish(ctx context.Context, clientID string, ev Event) error {
	return f(ctx, clientID, ev)
}
