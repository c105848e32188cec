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

// Package push delivers quote change events to subscribed clients.
// Delivery is best-effort: the engine neither blocks on nor retries a
// failed delivery, that is the transport's concern.
package push

import (
	"context"

	"github.com/quotefeed/quotefeed/subscription"
)

// Event is one quote change for one asset, addressed to a single client.
type Event struct {
	Exchange   string             `json:"exchange"`
	Identifier string             `json:"identifier"`
	Quote      subscription.Quote `json:"quote"`
}

// Publisher delivers an event to one client. Implementations decide what
// a client address means (a websocket connection, a redis channel, ...).
type Publisher interface {
	Publish(ctx context.Context, clientID string, ev Event) error
}

// Multi fans a publish out to several transports. Every transport is
// attempted; the first error is returned after all have run.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, clientID string, ev Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, clientID, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
