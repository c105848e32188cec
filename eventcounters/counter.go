// Package eventcounters is a library for counting subscription traffic
// on the service: inbound subscribe/unsubscribe messages and outbound
// quote update deliveries. Counts live in redis in hourly buckets that
// expire after a day, so they survive restarts but never grow unbounded.
package eventcounters

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type EventCounter struct {
	DB *redis.Client
}

// IncrMessages increments the inbound subscribe/unsubscribe message count.
func (ec EventCounter) IncrMessages(ctx context.Context, now time.Time) error {
	p := ec.DB.Pipeline()
	defer p.Close()
	p.Incr(ctx, keyHourlyMessages(now))
	p.ExpireAt(ctx, keyHourlyMessages(now), keyExpiration(now))
	_, err := p.Exec(ctx)
	return err
}

// IncrDeliveries increments the outbound delivery count by n, one per
// (event, subscriber) pair published.
func (ec EventCounter) IncrDeliveries(ctx context.Context, now time.Time, n int64) error {
	p := ec.DB.Pipeline()
	defer p.Close()
	p.IncrBy(ctx, keyHourlyDeliveries(now), n)
	p.ExpireAt(ctx, keyHourlyDeliveries(now), keyExpiration(now))
	_, err := p.Exec(ctx)
	return err
}

func (ec EventCounter) PastDayMessages(ctx context.Context, now time.Time) (int, error) {
	return ec.sumPastDay(ctx, now, keyHourlyMessages)
}

func (ec EventCounter) PastDayDeliveries(ctx context.Context, now time.Time) (int, error) {
	return ec.sumPastDay(ctx, now, keyHourlyDeliveries)
}

func (ec EventCounter) sumPastDay(ctx context.Context, now time.Time, keyFunc func(time.Time) string) (int, error) {
	res, err := ec.DB.MGet(ctx, genCacheKeys(now, 24, keyFunc)...).Result()
	var total int
	for _, c := range res {
		if v, ok := c.(string); ok {
			vv, _ := strconv.Atoi(v)
			total += vv
		}
	}
	return total, err
}

func keyExpiration(t time.Time) time.Time {
	return t.Truncate(time.Hour).Add(time.Hour * 25)
}

// genCacheKeys generates cache keys looking past from the specified now time
// for the specified number of hours using the given cache key function.
func genCacheKeys(now time.Time, nHours int, keyFunc func(time.Time) string) []string {
	keys := make([]string, 0, nHours)
	for i := 0; i < nHours; i++ {
		keys = append(keys, keyFunc(now.Add(-time.Hour*time.Duration(i))))
	}
	return keys
}

func keyHourlyMessages(t time.Time) string {
	return fmt.Sprintf("submsgs_hr::%s", t.Truncate(time.Hour).Format(time.RFC3339))
}

func keyHourlyDeliveries(t time.Time) string {
	return fmt.Sprintf("deliveries_hr::%s", t.Truncate(time.Hour).Format(time.RFC3339))
}
