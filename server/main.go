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

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/quotefeed/quotefeed/eventcounters"
	"github.com/quotefeed/quotefeed/poller"
	"github.com/quotefeed/quotefeed/push"
	"github.com/quotefeed/quotefeed/quotes/assetapi"
	"github.com/quotefeed/quotefeed/ratelimiter"
	"github.com/quotefeed/quotefeed/serverutil"
	"github.com/quotefeed/quotefeed/subscription"
)

// countingPublisher records each delivery in the hourly traffic counters
// before handing it to the underlying transports.
type countingPublisher struct {
	push.Publisher
	counter eventcounters.EventCounter
}

func (p countingPublisher) Publish(ctx context.Context, clientID string, ev push.Event) error {
	p.counter.IncrDeliveries(ctx, time.Now(), 1) // best effort, counts only
	return p.Publisher.Publish(ctx, clientID, ev)
}

var (
	flPollInterval time.Duration
	flTimeframe    string
	flFetchTimeout time.Duration
)

func init() {
	flag.DurationVar(&flPollInterval, "poll-interval", poller.DefaultInterval,
		"how often subscribed quotes are refreshed from upstream")
	flag.StringVar(&flTimeframe, "timeframe", poller.DefaultTimeframe,
		"lookback window requested from the quote provider, must cover at least one tick")
	flag.DurationVar(&flFetchTimeout, "fetch-timeout", poller.DefaultFetchTimeout,
		"per-exchange-group timeout for upstream quote requests")
}

func main() {
	flag.Parse()
	ctx := context.Background()
	ctx, _ = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	onCloudRun := os.Getenv("K_SERVICE") != ""

	log, err := serverutil.GetLogging(onCloudRun)
	if err != nil {
		panic(err)
	}

	trace, flushTraces := serverutil.GetTracer("quotefeed-server", onCloudRun)
	defer flushTraces(log.With(zap.String("facility", "tracing")))

	quoteAPI := os.Getenv("QUOTE_API_URL")
	if quoteAPI == "" {
		log.Fatal("please set QUOTE_API_URL environment variable")
	}

	rc, closeRedis, err := serverutil.ConnectRedis(ctx, os.Getenv("REDIS_IP"))
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer closeRedis()

	registry := subscription.New(log.With(zap.String("facility", "subscriptions")))
	hub := newHub(log.With(zap.String("facility", "hub")))
	counter := eventcounters.EventCounter{DB: rc}
	provider := &assetapi.Client{
		BaseURL: quoteAPI,
		HTTP:    &http.Client{Timeout: flFetchTimeout},
		Logger:  log.With(zap.String("facility", "assetapi")),
	}
	p := &poller.Poller{
		Registry: registry,
		Provider: provider,
		Publisher: countingPublisher{
			Publisher: push.Multi{hub, &push.RedisPublisher{R: rc}},
			counter:   counter,
		},
		Logger:       log.With(zap.String("facility", "poller")),
		Trace:        trace,
		Interval:     flPollInterval,
		Timeframe:    flTimeframe,
		FetchTimeout: flFetchTimeout,
	}
	go p.Run(ctx)

	srv := &server{
		registry:   registry,
		poller:     p,
		hub:        hub,
		rate:       ratelimiter.New(rc, time.Now, trace),
		counter:    counter,
		adminToken: os.Getenv("ADMIN_TOKEN"),
	}

	addr := os.Getenv("LISTEN_ADDR")
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	httpServer := &http.Server{
		Handler: srv.handler(log),
		Addr:    addr + ":" + port,
	}
	log.Debug("starting to listen", zap.String("addr", addr+":"+port))
	go func() {
		<-ctx.Done()
		log.Debug("shutdown signal received")
		httpServer.Shutdown(context.TODO())
	}()

	err = httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		log.Debug("http server closed")
	} else {
		log.Fatal("http server failed", zap.Error(err))
	}
}
