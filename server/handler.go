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
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/purini-to/zapmw"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quotefeed/quotefeed/eventcounters"
	"github.com/quotefeed/quotefeed/poller"
	"github.com/quotefeed/quotefeed/ratelimiter"
	"github.com/quotefeed/quotefeed/subscription"
)

type server struct {
	registry *subscription.Registry
	poller   *poller.Poller
	hub      *Hub
	rate     ratelimiter.RateLimiter
	counter  eventcounters.EventCounter

	// bearer token required on administrative endpoints; empty disables
	// them entirely
	adminToken string
}

func (s *server) handler(log *zap.Logger) http.Handler {
	m := mux.NewRouter()
	// no CompressHandler here: its response writer cannot be hijacked,
	// which breaks the websocket upgrade on /ws
	m.Use(handlers.ProxyHeaders,
		otelmux.Middleware("quotefeed-server"),
		zapmw.WithZap(log, withStackdriverFields),
		zapmw.Request(zapcore.InfoLevel, "request"),
		zapmw.Recoverer(zapcore.ErrorLevel, "recover", zapmw.RecovererDefault))
	m.HandleFunc("/health", s.health)
	m.HandleFunc("/status", s.status)
	m.HandleFunc("/ws", s.wsSubscriptions)
	m.HandleFunc("/_admin/reset", s.adminReset).Methods(http.MethodPost)
	return m
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "ok")
}

// adminReset drops all subscriptions. Ops tooling only, never reachable
// without the configured token.
func (s *server) adminReset(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context())
	if s.adminToken == "" {
		http.Error(w, "administrative endpoints disabled", http.StatusNotFound)
		return
	}
	if r.Header.Get("authorization") != "Bearer "+s.adminToken {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	n := s.registry.Size()
	s.registry.Clear()
	log.Warn("registry cleared by admin", zap.Int("dropped", n))
	fmt.Fprintf(w, "dropped %d subscriptions", n)
}
