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

// Package quotes defines the contract for fetching asset quotes from an
// upstream provider in exchange-grouped batches.
package quotes

import (
	"context"

	"github.com/quotefeed/quotefeed/subscription"
)

// AssetQuote is the most recent tick the provider returned for one asset.
type AssetQuote struct {
	Identifier string
	Exchange   string
	Quote      subscription.Quote
}

// Provider fetches the latest quotes for a batch of identifiers on one
// exchange. timeframe is the lookback window requested from upstream
// ("1d" is enough to obtain the latest tick). An error means the whole
// batch yielded nothing this round; callers treat it as transient.
// Can quit early if ctx is cancelled.
type Provider interface {
	GetQuotes(ctx context.Context, exchange string, identifiers []string, timeframe string) ([]AssetQuote, error)
}

// ProviderFunc is a function adapter for Provider.
type ProviderFunc func(ctx context.Context, exchange string, identifiers []string, timeframe string) ([]AssetQuote, error)

func (f ProviderFunc) GetQuotes(ctx context.Context, exchange string, identifiers []string, timeframe string) ([]AssetQuote, error) {
	return f(ctx, exchange, identifiers, timeframe)
}
