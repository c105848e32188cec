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
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"go.uber.org/zap"
)

var processStart = time.Now()

type statusResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	Subscriptions int    `json:"subscriptions"`
	Exchanges     int    `json:"exchanges"`
	Connections   int    `json:"connections"`
	PollCycles    int64  `json:"pollCycles"`
	LastPoll      string `json:"lastPoll"`
	LastChanges   int    `json:"lastPollChanges"`
	DayMessages   int    `json:"pastDayMessages"`
	DayDeliveries int    `json:"pastDayDeliveries"`
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context())
	lastPoll, lastChanges, cycles := s.poller.Stats()
	msgs, err := s.counter.PastDayMessages(r.Context(), time.Now())
	if err != nil {
		log.Warn("failed to read message counter", zap.Error(err))
	}
	deliveries, err := s.counter.PastDayDeliveries(r.Context(), time.Now())
	if err != nil {
		log.Warn("failed to read delivery counter", zap.Error(err))
	}
	resp := statusResponse{
		Status:        "OK",
		Uptime:        durafmt.Parse(time.Since(processStart)).LimitFirstN(2).String(),
		Subscriptions: s.registry.Size(),
		Exchanges:     s.registry.Exchanges(),
		Connections:   s.hub.connections(),
		PollCycles:    cycles,
		LastChanges:   lastChanges,
		DayMessages:   msgs,
		DayDeliveries: deliveries,
	}
	if !lastPoll.IsZero() {
		resp.LastPoll = humanize.Time(lastPoll)
	} else {
		resp.LastPoll = "never"
	}
	w.Header().Set("content-type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warn("failed to encode status", zap.Error(err))
	}
}
