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

// Package ratelimiter is a redis-backed fixed-window rate limiter used to
// cap how many subscribe/unsubscribe messages a client may send per
// minute.
package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/trace"
)

// ErrRateLimited is wrapped by Hit when the caller exceeded its quota.
var ErrRateLimited = errors.New("rate limited")

type TimeProvider func() time.Time

type RateLimiter interface {
	// Hit records a request for id and fails if id exceeded max requests
	// in the current one-minute window.
	Hit(ctx context.Context, id string, max int64) error
}

type rateLimiter struct {
	R     *redis.Client
	T     TimeProvider
	Trace trace.Tracer
}

func New(r *redis.Client, t TimeProvider, trace trace.Tracer) RateLimiter {
	return &rateLimiter{R: r, T: t, Trace: trace}
}

func (r *rateLimiter) Hit(ctx context.Context, id string, max int64) error {
	ctx, s := r.Trace.Start(ctx, "rate limiter")
	defer s.End()

	bucket := r.T().Truncate(time.Minute)
	k := RateKey(id, bucket)
	p := r.R.TxPipeline()
	incr := p.Incr(ctx, k)
	p.Expire(ctx, k, time.Minute*2)
	if _, err := p.Exec(ctx); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	cur := incr.Val()
	if cur >= max {
		return fmt.Errorf("%w: %d requests in the past minute (max: %d)", ErrRateLimited, cur, max)
	}
	return nil
}

func RateKey(id string, t time.Time) string {
	return fmt.Sprintf("%s::%d", id, t.Unix())
}
