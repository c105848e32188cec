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
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisPublisher publishes events on the per-client channel
// "update:{clientId}". Other service instances (or any transport bridge)
// subscribe to these channels to reach clients not connected locally.
type RedisPublisher struct {
	R *redis.Client
}

// Channel returns the redis channel events for clientID are published on.
func Channel(clientID string) string {
	return "update:" + clientID
}

func (p *RedisPublisher) Publish(ctx context.Context, clientID string, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.R.Publish(ctx, Channel(clientID), b).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}
