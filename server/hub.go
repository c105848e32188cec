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
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quotefeed/quotefeed/push"
)

// client is one websocket connection. A clientID can have several
// connections open (browser tabs); each gets its own outbound buffer.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// writePump drains the outbound buffer onto the wire. It exits when the
// hub closes send (unregister) or a write fails.
func (c *client) writePump(log *zap.Logger) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Debug("write to client failed", zap.String("client", c.id), zap.Error(err))
			c.conn.Close()
			return
		}
	}
	c.conn.Close()
}

// Hub tracks locally connected clients by clientID and implements
// push.Publisher for them. Delivery is best-effort: if a connection's
// buffer is full the message is dropped rather than blocking the poller.
type Hub struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[string]map[*client]bool
}

func newHub(log *zap.Logger) *Hub {
	return &Hub{log: log, clients: make(map[string]map[*client]bool)}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.id]
	if !ok {
		conns = make(map[*client]bool)
		h.clients[c.id] = conns
	}
	conns[c] = true
}

// unregister removes the connection and closes its outbound buffer,
// which terminates its writePump.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.id]
	if !ok || !conns[c] {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.clients, c.id)
	}
}

func (h *Hub) Publish(ctx context.Context, clientID string, ev push.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[clientID] {
		select {
		case c.send <- b:
		default:
			// slow consumer, drop the message
			h.log.Debug("dropped event for slow client", zap.String("client", clientID))
		}
	}
	return nil
}

// connections reports the number of open websocket connections.
func (h *Hub) connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}
