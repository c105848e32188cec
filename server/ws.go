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
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quotefeed/quotefeed/ratelimiter"
	"github.com/quotefeed/quotefeed/subscription"
)

const subscribeRateLimitPerMinute = 120

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsMessage is what clients send over the socket.
type wsMessage struct {
	Action string                  `json:"action"` // "subscribe" or "unsubscribe"
	Items  []subscription.AssetKey `json:"items"`
}

// wsSubscriptions translates one connection's lifecycle into registry
// calls: subscribe/unsubscribe messages while it lives, removal of
// everything it still holds when it disconnects.
func (s *server) wsSubscriptions(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context())

	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	log = log.With(zap.String("client", clientID))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{id: clientID, conn: conn, send: make(chan []byte, 256)}
	s.hub.register(c)
	go c.writePump(log)
	log.Info("client connected")

	held := make(map[subscription.AssetKey]bool)
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("read failed", zap.Error(err))
			}
			break
		}
		if err := s.counter.IncrMessages(r.Context(), time.Now()); err != nil {
			log.Debug("failed to count message", zap.Error(err))
		}
		if err := s.rate.Hit(r.Context(), clientID, subscribeRateLimitPerMinute); err != nil {
			if errors.Is(err, ratelimiter.ErrRateLimited) {
				log.Warn("client rate limited, message dropped")
				continue
			}
			log.Warn("rate limiter unavailable, letting message through", zap.Error(err))
		}
		switch msg.Action {
		case "subscribe":
			s.registry.Add(msg.Items, clientID)
			for _, k := range msg.Items {
				held[k] = true
			}
			log.Info("subscribed", zap.Int("items", len(msg.Items)))
		case "unsubscribe":
			s.registry.Remove(msg.Items, clientID)
			for _, k := range msg.Items {
				delete(held, k)
			}
			log.Info("unsubscribed", zap.Int("items", len(msg.Items)))
		default:
			log.Warn("unknown action", zap.String("action", msg.Action))
		}
	}

	// connection gone: drop whatever it still held so the poller stops
	// fetching assets nobody watches
	if len(held) > 0 {
		keys := make([]subscription.AssetKey, 0, len(held))
		for k := range held {
			keys = append(keys, k)
		}
		s.registry.Remove(keys, clientID)
	}
	s.hub.unregister(c)
	log.Info("client disconnected", zap.Int("released", len(held)))
}
