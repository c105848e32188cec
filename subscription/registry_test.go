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

package subscription

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// US56035L1044: Main Street Capital, US04010L1035: Ares Capital
var (
	mainStreet = AssetKey{Exchange: "LSX", Identifier: "US56035L1044"}
	aresLSX    = AssetKey{Exchange: "LSX", Identifier: "US04010L1035"}
	aresFRA    = AssetKey{Exchange: "FRA", Identifier: "US04010L1035"}
)

func newTestRegistry() *Registry { return New(zap.NewNop()) }

func TestAdd_singleAsset(t *testing.T) {
	r := newTestRegistry()
	r.Add([]AssetKey{mainStreet}, "client1")

	got, ok := r.Get("US56035L1044", "LSX")
	if !ok {
		t.Fatal("expected subscription to exist")
	}
	want := Subscription{Key: mainStreet, Subscribers: []string{"client1"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}
	if r.Exchanges() != 1 {
		t.Fatalf("exchanges=%d, want 1", r.Exchanges())
	}
}

func TestAdd_mergesSubscribers(t *testing.T) {
	r := newTestRegistry()
	r.Add([]AssetKey{mainStreet}, "client1")
	r.Add([]AssetKey{mainStreet}, "client2")

	got, _ := r.Get("US56035L1044", "LSX")
	if diff := cmp.Diff([]string{"client1", "client2"}, got.Subscribers); diff != "" {
		t.Fatal(diff)
	}
	if r.Size() != 1 {
		t.Fatalf("size=%d, want a single merged entry", r.Size())
	}
}

func TestAdd_duplicateClientIsNoop(t *testing.T) {
	r := newTestRegistry()
	r.Add([]AssetKey{mainStreet}, "client1")
	r.Add([]AssetKey{mainStreet}, "client1")

	got, _ := r.Get("US56035L1044", "LSX")
	if diff := cmp.Diff([]string{"client1"}, got.Subscribers); diff != "" {
		t.Fatal(diff)
	}
}

func TestAdd_differentExchanges(t *testing.T) {
	r := newTestRegistry()
	r.Add([]AssetKey{mainStreet, aresFRA}, "client1")

	if r.Exchanges() != 2 {
		t.Fatalf("exchanges=%d, want 2", r.Exchanges())
	}
	if _, ok := r.Get("US56035L1044", "LSX"); !ok {
		t.Fatal("LSX entry missing")
	}
	if _, ok := r.Get("US04010L1035", "FRA"); !ok {
		t.Fatal("FRA entry missing")
	}
	// identifiers must not leak across exchanges
	if _, ok := r.Get("US04010L1035", "LSX"); ok {
		t.Fatal("FRA identifier visible under LSX")
	}
}

func TestRemove_lastSubscriberDeletesEntry(t *testing.T) {
	r := newTestRegistry()
	r.Add([]AssetKey{mainStreet}, "client1")
	r.Remove([]AssetKey{mainStreet}, "client1")

	if _, ok := r.Get("US56035L1044", "LSX"); ok {
		t.Fatal("entry should be gone after last unsubscribe")
	}
	if got := r.GroupedByExchange(); len(got) != 0 {
		t.Fatalf("GroupedByExchange() = %v, want empty", got)
	}
}

func TestRemove_partial(t *testing.T) {
	r := newTestRegistry()
	r.Add([]AssetKey{mainStreet}, "client1")
	r.Add([]AssetKey{mainStreet}, "client2")
	r.Remove([]AssetKey{mainStreet}, "client1")

	got, ok := r.Get("US56035L1044", "LSX")
	if !ok {
		t.Fatal("entry must survive while subscribers remain")
	}
	if diff := cmp.Diff([]string{"client2"}, got.Subscribers); diff != "" {
		t.Fatal(diff)
	}
}

func TestRemove_unknownIsNoop(t *testing.T) {
	r := newTestRegistry()
	r.Remove([]AssetKey{mainStreet}, "client1")
	if r.Size() != 0 {
		t.Fatalf("size=%d, want 0", r.Size())
	}

	// removing a client that never subscribed leaves others alone
	r.Add([]AssetKey{mainStreet}, "client1")
	r.Remove([]AssetKey{mainStreet}, "client2")
	got, _ := r.Get("US56035L1044", "LSX")
	if diff := cmp.Diff([]string{"client1"}, got.Subscribers); diff != "" {
		t.Fatal(diff)
	}
}

func TestGroupedByExchange(t *testing.T) {
	r := newTestRegistry()
	r.Add([]AssetKey{mainStreet}, "client1")
	r.Add([]AssetKey{aresFRA}, "client2")

	got := r.GroupedByExchange()
	sort.Slice(got, func(i, j int) bool { return got[i].Exchange < got[j].Exchange })
	want := []ExchangeGroup{
		{Exchange: "FRA", Identifiers: []string{"US04010L1035"}},
		{Exchange: "LSX", Identifiers: []string{"US56035L1044"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}
}

func TestGroupedByExchange_multipleAssetsOneExchange(t *testing.T) {
	r := newTestRegistry()
	r.Add([]AssetKey{mainStreet, aresLSX}, "client1")

	got := r.GroupedByExchange()
	if len(got) != 1 {
		t.Fatalf("groups=%d, want 1", len(got))
	}
	sort.Strings(got[0].Identifiers)
	want := []string{"US04010L1035", "US56035L1044"}
	if diff := cmp.Diff(want, got[0].Identifiers); diff != "" {
		t.Fatal(diff)
	}
}

func TestUpdateQuote(t *testing.T) {
	r := newTestRegistry()
	r.Add([]AssetKey{mainStreet}, "client1")

	q := Quote{
		Price:    decimal.RequireFromString("42.86"),
		Currency: "EUR",
		Time:     time.Date(2024, 3, 1, 17, 30, 0, 0, time.UTC),
	}
	r.UpdateQuote("US56035L1044", "LSX", q)

	got, _ := r.Get("US56035L1044", "LSX")
	if got.Quote == nil {
		t.Fatal("quote not stored")
	}
	if !got.Quote.Price.Equal(q.Price) || got.Quote.Currency != q.Currency || !got.Quote.Time.Equal(q.Time) {
		t.Fatalf("stored quote %+v, want %+v", got.Quote, q)
	}
}

func TestUpdateQuote_afterUnsubscribeIsNoop(t *testing.T) {
	r := newTestRegistry()
	r.Add([]AssetKey{mainStreet}, "client1")
	r.Remove([]AssetKey{mainStreet}, "client1")

	// the racing poller writes into the void, no entry is resurrected
	r.UpdateQuote("US56035L1044", "LSX", Quote{Price: decimal.NewFromInt(1), Currency: "EUR"})
	if r.Size() != 0 {
		t.Fatalf("size=%d, want 0", r.Size())
	}
}

func TestGet_returnsCopy(t *testing.T) {
	r := newTestRegistry()
	r.Add([]AssetKey{mainStreet}, "client1")

	got, _ := r.Get("US56035L1044", "LSX")
	got.Subscribers[0] = "mutated"

	again, _ := r.Get("US56035L1044", "LSX")
	if again.Subscribers[0] != "client1" {
		t.Fatal("Get must return a defensive copy")
	}
}

func TestClear(t *testing.T) {
	r := newTestRegistry()
	r.Add([]AssetKey{mainStreet, aresFRA}, "client1")
	r.Clear()

	if r.Size() != 0 || r.Exchanges() != 0 {
		t.Fatalf("size=%d exchanges=%d after Clear", r.Size(), r.Exchanges())
	}
}

func TestRegistry_concurrentMutation(t *testing.T) {
	r := newTestRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client := fmt.Sprintf("client%d", i)
			r.Add([]AssetKey{mainStreet, aresFRA}, client)
			r.GroupedByExchange()
			r.UpdateQuote("US56035L1044", "LSX", Quote{Price: decimal.NewFromInt(int64(i)), Currency: "EUR"})
			r.Remove([]AssetKey{aresFRA}, client)
		}(i)
	}
	wg.Wait()

	got, ok := r.Get("US56035L1044", "LSX")
	if !ok || len(got.Subscribers) != 50 {
		t.Fatalf("got %d subscribers, want 50", len(got.Subscribers))
	}
	if _, ok := r.Get("US04010L1035", "FRA"); ok {
		t.Fatal("FRA entry should have been removed by every goroutine")
	}
}
