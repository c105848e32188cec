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

// Package assetapi implements quotes.Provider against the batched REST
// quote endpoint of the asset data service (POST /v1/quotes). One request
// carries every identifier of an exchange group; the response is a chart
// series per identifier and only the newest tick is used.
package assetapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quotefeed/quotefeed/quotes"
	"github.com/quotefeed/quotefeed/subscription"
)

// quotes are requested in this currency; upstream converts.
const requestCurrency = "EUR"

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *zap.Logger
}

type quoteRequest struct {
	Identifier string `json:"identifier"`
	Timeframe  string `json:"timeframe"`
	Exchange   string `json:"exchange"`
}

type chartQuote struct {
	AssetIdentifier string `json:"assetIdentifier"`
	Exchange        string `json:"exchange"`
	Currency        string `json:"currency"`
	Interval        struct {
		From time.Time `json:"from"`
		To   time.Time `json:"to"`
	} `json:"interval"`
	Quotes []struct {
		Date  time.Time       `json:"date"`
		Price decimal.Decimal `json:"price"`
	} `json:"quotes"`
}

// GetQuotes issues one batched request for all identifiers on exchange.
// A network failure, a non-2xx status or a response that fails schema
// validation fails the whole call; the caller decides how to isolate it.
func (c *Client) GetQuotes(ctx context.Context, exchange string, identifiers []string, timeframe string) ([]quotes.AssetQuote, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}
	body := make([]quoteRequest, 0, len(identifiers))
	for _, id := range identifiers {
		body = append(body, quoteRequest{Identifier: id, Timeframe: timeframe, Exchange: exchange})
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	q := url.Values{"currency": []string{requestCurrency}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/v1/quotes?"+q.Encode(), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json; charset=utf-8")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("quote request returned status %d", resp.StatusCode)
	}

	var series []chartQuote
	if err := json.NewDecoder(resp.Body).Decode(&series); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	out := make([]quotes.AssetQuote, 0, len(series))
	for _, s := range series {
		if err := validate(s); err != nil {
			return nil, fmt.Errorf("response validation failed: %w", err)
		}
		if len(s.Quotes) == 0 {
			// an identifier upstream knows but has no ticks for in
			// the window; skip it, the cached quote stays
			c.logger().Debug("empty quote series",
				zap.String("identifier", s.AssetIdentifier),
				zap.String("exchange", s.Exchange))
			continue
		}
		newest := s.Quotes[len(s.Quotes)-1]
		out = append(out, quotes.AssetQuote{
			Identifier: s.AssetIdentifier,
			Exchange:   s.Exchange,
			Quote: subscription.Quote{
				Price:    newest.Price,
				Currency: s.Currency,
				Time:     s.Interval.To,
			},
		})
	}
	return out, nil
}

func validate(s chartQuote) error {
	if s.AssetIdentifier == "" {
		return fmt.Errorf("series without assetIdentifier")
	}
	if s.Exchange == "" {
		return fmt.Errorf("series %q without exchange", s.AssetIdentifier)
	}
	if s.Currency == "" {
		return fmt.Errorf("series %q without currency", s.AssetIdentifier)
	}
	if s.Interval.To.IsZero() {
		return fmt.Errorf("series %q without interval end", s.AssetIdentifier)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
