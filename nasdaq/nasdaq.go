// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nasdaq implements the extended-trading quote API of nasdaq.com.
//
// The API splits the pre-market session into numbered time windows, each
// returning a page of trade details. A page for a window without trades has a
// null data block or a null row list; both are reported as no rows.
//
// The API is unauthenticated, but it rejects requests which do not look like
// they come from a desktop browser. Every request carries the fixed header set
// of Header().
package nasdaq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/guregu/null/v5"
	"github.com/stockparfait/datasets/retry"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/logging"
)

// URL is the default base URL of the server. It may be overwritten in tests.
var URL = "https://api.nasdaq.com/api"

// NumWindows is the number of time windows of the extended-trading session.
const NumWindows = 11

// Retry is the policy for a single window request. It may be overwritten in
// tests.
var Retry = retry.Policy{Attempts: 4, Delay: time.Second, MaxDelay: time.Minute}

// Header returns a new copy of the browser-mimicking request headers.
func Header() http.Header {
	h := make(http.Header)
	for k, v := range map[string]string{
		"authority":                 "api.nasdaq.com",
		"accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"accept-language":           "en-US,en;q=0.5",
		"cache-control":             "max-age=0",
		"sec-ch-ua":                 `"Brave";v="113", "Chromium";v="113", "Not-A.Brand";v="24"`,
		"sec-ch-ua-mobile":          "?0",
		"sec-ch-ua-platform":        `"macOS"`,
		"sec-fetch-dest":            "document",
		"sec-fetch-mode":            "navigate",
		"sec-fetch-site":            "none",
		"sec-fetch-user":            "?1",
		"sec-gpc":                   "1",
		"upgrade-insecure-requests": "1",
		"user-agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36",
	} {
		h.Set(k, v)
	}
	return h
}

// headerTransport adds Header() to every request which doesn't set them.
type headerTransport struct {
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range Header() {
		if req.Header.Get(k) == "" {
			req.Header[k] = v
		}
	}
	return t.base.RoundTrip(req)
}

// UseHeaders returns the context whose HTTP client, as used by fetch, sends
// Header() with every request. It wraps the client already in the context, if
// any, or the default one.
func UseHeaders(ctx context.Context) context.Context {
	client := fetch.GetClient(ctx)
	if client == nil {
		client = http.DefaultClient
	}
	if _, ok := client.Transport.(*headerTransport); ok {
		return ctx
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c := *client
	c.Transport = &headerTransport{base: base}
	return fetch.UseClient(ctx, &c)
}

// TradeRow is a single trade as reported by the vendor. All the values are
// vendor-formatted strings, e.g. Price = "$150.25", ShareVolume = "1,000".
type TradeRow struct {
	Time        null.String `json:"time"` // null when the vendor omits it
	Price       string      `json:"price"`
	ShareVolume string      `json:"shareVolume"`
}

// tradeDetailTable is the part of the page holding the trades. Rows is nil when
// the vendor sends null.
type tradeDetailTable struct {
	Rows []TradeRow `json:"rows"`
}

// extendedTradingData is the data block of the page.
type extendedTradingData struct {
	TradeDetailTable *tradeDetailTable `json:"tradeDetailTable"`
}

// extendedTradingPage is the format of a single window's response.
type extendedTradingPage struct {
	Data *extendedTradingData `json:"data"`
}

// TestExtendedTradingPage generates the JSON string in a format as returned by
// the extended-trading API. A nil rows value produces a page with a null data
// block. For use in tests.
func TestExtendedTradingPage(rows []TradeRow) (string, error) {
	var page extendedTradingPage
	if rows != nil {
		page.Data = &extendedTradingData{
			TradeDetailTable: &tradeDetailTable{Rows: rows},
		}
	}
	bytes, err := json.Marshal(&page)
	return string(bytes), err
}

// Path returns the URL path of the extended-trading endpoint for the ticker.
func Path(ticker string) string {
	return fmt.Sprintf("/quote/%s/extended-trading", url.PathEscape(ticker))
}

// Query returns the query values for the given time window.
func Query(window int) url.Values {
	return url.Values{
		"markettype": []string{"pre"},
		"assetclass": []string{"stocks"},
		"time":       []string{fmt.Sprintf("%d", window)},
	}
}

// FetchExtendedTrading downloads the trades of the ticker for a single time
// window, 1..NumWindows. It returns nil rows when the window has no trades.
// Failed requests are retried according to Retry; exhausting it yields
// *retry.ConnectionError. Malformed responses are returned as errors.
func FetchExtendedTrading(ctx context.Context, ticker string, window int) ([]TradeRow, error) {
	ctx = UseHeaders(ctx)
	uri := URL + Path(ticker)
	query := Query(window)
	var page extendedTradingPage
	err := Retry.Do(ctx, uri+"?"+query.Encode(), func() error {
		resp, err := retry.Get(ctx, uri, query)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		page = extendedTradingPage{}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return errors.Annotate(err, "failed to unmarshal JSON")
		}
		return nil
	})
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch window %d for %s", window, ticker)
	}
	if page.Data == nil || page.Data.TradeDetailTable == nil {
		logging.Debugf(ctx, "Nasdaq: no data for %s in window %d", ticker, window)
		return nil, nil
	}
	rows := page.Data.TradeDetailTable.Rows
	logging.Debugf(ctx, "Nasdaq: fetched %d trades for %s in window %d",
		len(rows), ticker, window)
	return rows, nil
}
