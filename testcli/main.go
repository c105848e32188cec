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

// testcli is a development client: it connects to the server's
// websocket endpoint, subscribes to the assets given on the command
// line as EXCHANGE:IDENTIFIER pairs, and prints every quote update
// pushed back until interrupted.
//
//	go run ./testcli -addr localhost:8080 LSX:US56035L1044 FRA:US04010L1035
package main

import (
	"context"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quotefeed/quotefeed/subscription"
)

var (
	flAddr   = flag.String("addr", "localhost:8080", "server host:port")
	flClient = flag.String("client", "", "client id to subscribe as (default: random)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Ltime)
	if flag.NArg() == 0 {
		log.Fatal("pass at least one EXCHANGE:IDENTIFIER pair")
	}
	var keys []subscription.AssetKey
	for _, arg := range flag.Args() {
		parts := strings.SplitN(arg, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			log.Fatalf("malformed asset %q, want EXCHANGE:IDENTIFIER", arg)
		}
		keys = append(keys, subscription.AssetKey{Exchange: parts[0], Identifier: parts[1]})
	}
	clientID := *flClient
	if clientID == "" {
		clientID = uuid.NewString()
	}

	ctx := context.Background()
	ctx, _ = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	u := url.URL{Scheme: "ws", Host: *flAddr, Path: "/ws",
		RawQuery: url.Values{"client": []string{clientID}}.Encode()}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		log.Fatalf("dial %s failed: %v", u.String(), err)
	}
	defer conn.Close()
	log.Printf("connected as client %s", clientID)

	sub := struct {
		Action string                  `json:"action"`
		Items  []subscription.AssetKey `json:"items"`
	}{Action: "subscribe", Items: keys}
	if err := conn.WriteJSON(sub); err != nil {
		log.Fatalf("subscribe failed: %v", err)
	}
	log.Printf("subscribed to %d asset(s), waiting for updates", len(keys))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		var update map[string]interface{}
		if err := conn.ReadJSON(&update); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Fatalf("read failed: %v", err)
		}
		log.Printf("update: %v", update)
	}
}
