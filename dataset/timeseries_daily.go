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

package dataset

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stockparfait/datasets/db"
	"github.com/stockparfait/datasets/yahoo"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
)

// TimeseriesDailyColumns is the canonical schema of the daily timeseries
// dataset.
var TimeseriesDailyColumns = []string{
	"symbol",
	"date",
	"open",
	"high",
	"low",
	"close",
	"adj_close",
	"volume",
}

// TimeseriesDailyRow is a daily OHLCV sample. Invalid decimals are the values
// the vendor reported as missing.
type TimeseriesDailyRow struct {
	Symbol   string
	Date     db.Date
	Open     decimal.NullDecimal
	High     decimal.NullDecimal
	Low      decimal.NullDecimal
	Close    decimal.NullDecimal
	AdjClose decimal.NullDecimal
	Volume   decimal.NullDecimal
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// CSV implements table.Row.
func (r TimeseriesDailyRow) CSV() []string {
	return []string{
		r.Symbol,
		r.Date.String(),
		nullString(r.Open),
		nullString(r.High),
		nullString(r.Low),
		nullString(r.Close),
		nullString(r.AdjClose),
		nullString(r.Volume),
	}
}

func lessTimeseriesDaily(x, y TimeseriesDailyRow) bool {
	if x.Symbol != y.Symbol {
		return x.Symbol < y.Symbol
	}
	return x.Date.Before(y.Date)
}

// TimeseriesDaily is the dataset of daily prices since yahoo.Start.
type TimeseriesDaily struct {
	base[TimeseriesDailyRow]
}

var _ Builder = &TimeseriesDaily{}

// NewTimeseriesDaily creates an empty daily timeseries dataset.
func NewTimeseriesDaily(c Config) *TimeseriesDaily {
	return &TimeseriesDaily{
		base: newBase[TimeseriesDailyRow](
			c, "timeseries-daily-"+c.Suffix, TimeseriesDailyColumns),
	}
}

// AppendFrame downloads the full daily history of the symbol. When the vendor
// has no data, the symbol's frame is recorded as nil. Exhausting the download
// retries is an error.
func (t *TimeseriesDaily) AppendFrame(ctx context.Context, symbol string) error {
	ticker := t.config.Ticker(symbol)
	prices, err := yahoo.DownloadDaily(ctx, ticker, yahoo.Start, t.config.now(), t.config.Retry)
	if err != nil {
		return errors.Annotate(err, "failed to download daily prices for %s", symbol)
	}
	if prices == nil {
		logging.Infof(ctx, "no daily data for %s", symbol)
		t.frames[symbol] = nil
		return nil
	}
	frame := &Frame[TimeseriesDailyRow]{
		Symbol: symbol,
		Rows:   make([]TimeseriesDailyRow, len(prices)),
	}
	for i, p := range prices {
		frame.Rows[i] = TimeseriesDailyRow{
			Symbol:   symbol,
			Date:     p.Date,
			Open:     p.Open,
			High:     p.High,
			Low:      p.Low,
			Close:    p.Close,
			AdjClose: p.AdjClose,
			Volume:   p.Volume,
		}
	}
	t.frames[symbol] = frame
	return nil
}

// SetDataset aggregates the present frames sorted by symbol and date. Previous
// versions of the dataset are not merged: every run downloads the full history.
func (t *TimeseriesDaily) SetDataset(ctx context.Context, store Store) error {
	t.aggregate(nil, lessTimeseriesDaily)
	return nil
}
