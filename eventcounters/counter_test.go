package eventcounters

import (
	"context"
	"testing"
	"time"

	"github.com/quotefeed/quotefeed/testutil"
)

func TestEventCounters(t *testing.T) {
	r := testutil.MockRedis(t)
	ctx := context.Background()
	counter := EventCounter{DB: r}

	now := time.Date(2050, time.January, 10, 10, 30, 20, 0, time.UTC)
	minusHr := func(i int) time.Time { return now.Add(-time.Duration(i) * time.Hour) }
	minusMin := func(i int) time.Time { return now.Add(-time.Duration(i) * time.Minute) }

	// outside the window
	if err := counter.IncrMessages(ctx, minusHr(30)); err != nil {
		t.Fatal(err)
	}
	if err := counter.IncrMessages(ctx, minusHr(25)); err != nil {
		t.Fatal(err)
	}
	// inside the window
	if err := counter.IncrMessages(ctx, minusHr(10)); err != nil {
		t.Fatal(err)
	}
	if err := counter.IncrMessages(ctx, minusHr(1)); err != nil {
		t.Fatal(err)
	}
	if err := counter.IncrMessages(ctx, minusMin(1)); err != nil {
		t.Fatal(err)
	}

	msgs, err := counter.PastDayMessages(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if msgs != 3 {
		t.Errorf("Expected 3 messages, got %d", msgs)
	}

	if err := counter.IncrDeliveries(ctx, minusHr(2), 40); err != nil {
		t.Fatal(err)
	}
	if err := counter.IncrDeliveries(ctx, minusMin(5), 2); err != nil {
		t.Fatal(err)
	}
	deliveries, err := counter.PastDayDeliveries(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if deliveries != 42 {
		t.Errorf("Expected 42 deliveries, got %d", deliveries)
	}
}
