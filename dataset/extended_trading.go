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
	"strconv"
	"strings"

	"github.com/guregu/null/v5"
	"github.com/shopspring/decimal"
	"github.com/stockparfait/datasets/db"
	"github.com/stockparfait/datasets/nasdaq"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
)

// ExtendedTradingColumns is the canonical schema of the extended trading
// dataset.
var ExtendedTradingColumns = []string{
	"symbol",
	"date",
	"time",
	"price",
	"share_volume",
}

// ExtendedTradingRow is a single pre-market trade.
type ExtendedTradingRow struct {
	Symbol      string
	Date        db.Date     // the tag date of the run
	Time        null.String // vendor's trade time, if reported
	Price       decimal.Decimal
	ShareVolume int64
}

// CSV implements table.Row.
func (r ExtendedTradingRow) CSV() []string {
	return []string{
		r.Symbol,
		r.Date.String(),
		r.Time.ValueOrZero(),
		r.Price.String(),
		strconv.FormatInt(r.ShareVolume, 10),
	}
}

func lessExtendedTrading(x, y ExtendedTradingRow) bool {
	if x.Symbol != y.Symbol {
		return x.Symbol < y.Symbol
	}
	if x.Date != y.Date {
		return x.Date.Before(y.Date)
	}
	// Trades without a time go last.
	if x.Time.Valid != y.Time.Valid {
		return x.Time.Valid
	}
	return x.Time.ValueOrZero() < y.Time.ValueOrZero()
}

// ParsePrice converts a currency-formatted price like "$1,150.25" to a
// decimal.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.Annotate(err, "invalid price")
	}
	if d.IsNegative() {
		return decimal.Decimal{}, errors.Reason("negative price: %s", s)
	}
	return d, nil
}

// ParseVolume converts a share volume like "1,000" to an integer.
func ParseVolume(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Annotate(err, "invalid share volume")
	}
	return v, nil
}

// ExtendedTrading is the dataset of pre-market trades on the tag date.
type ExtendedTrading struct {
	base[ExtendedTradingRow]
}

var _ Builder = &ExtendedTrading{}

// NewExtendedTrading creates an empty extended trading dataset.
func NewExtendedTrading(c Config) *ExtendedTrading {
	return &ExtendedTrading{
		base: newBase[ExtendedTradingRow](
			c, "extended-trading-"+c.Suffix, ExtendedTradingColumns),
	}
}

// AppendFrame fetches all the time windows of the symbol. A symbol without any
// trades is left out of the frames.
func (e *ExtendedTrading) AppendFrame(ctx context.Context, symbol string) error {
	ticker := e.config.Ticker(symbol)
	var trades []nasdaq.TradeRow
	for n := 1; n <= e.config.windows(); n++ {
		rows, err := nasdaq.FetchExtendedTrading(ctx, ticker, n)
		if err != nil {
			return errors.Annotate(err, "failed to fetch trades for %s", symbol)
		}
		trades = append(trades, rows...)
	}
	if len(trades) == 0 {
		logging.Infof(ctx, "no extended trading data for %s", symbol)
		return nil
	}
	frame := &Frame[ExtendedTradingRow]{
		Symbol: symbol,
		Rows:   make([]ExtendedTradingRow, len(trades)),
	}
	for i, t := range trades {
		price, err := ParsePrice(t.Price)
		if err != nil {
			return errors.Annotate(err, "%s: trade %d", symbol, i)
		}
		volume, err := ParseVolume(t.ShareVolume)
		if err != nil {
			return errors.Annotate(err, "%s: trade %d", symbol, i)
		}
		frame.Rows[i] = ExtendedTradingRow{
			Symbol:      symbol,
			Date:        e.config.TagDate,
			Time:        t.Time,
			Price:       price,
			ShareVolume: volume,
		}
	}
	e.frames[symbol] = frame
	return nil
}

// mergePrevious returns the rows of the previously saved dataset which are not
// superseded by the new rows. A (symbol, date) pair present in the new rows
// replaces all of its previous rows.
func mergePrevious(previous, rows []ExtendedTradingRow) []ExtendedTradingRow {
	type key struct {
		symbol string
		date   db.Date
	}
	fresh := make(map[key]struct{})
	for _, r := range rows {
		fresh[key{r.Symbol, r.Date}] = struct{}{}
	}
	var kept []ExtendedTradingRow
	for _, r := range previous {
		if _, ok := fresh[key{r.Symbol, r.Date}]; !ok {
			kept = append(kept, r)
		}
	}
	return kept
}

// SetDataset aggregates the frames, merges in the previously saved dataset if
// there is one, and sorts the rows by symbol, date and time.
func (e *ExtendedTrading) SetDataset(ctx context.Context, store Store) error {
	var kept []ExtendedTradingRow
	if store != nil && store.Exists(e.name) {
		var previous []ExtendedTradingRow
		if err := store.Read(e.name, &previous); err != nil {
			return errors.Annotate(err, "failed to read previous %s", e.name)
		}
		kept = mergePrevious(previous, e.frames.Concat())
		logging.Infof(ctx, "%s: keeping %d of %d previous rows",
			e.name, len(kept), len(previous))
	}
	e.aggregate(kept, lessExtendedTrading)
	return nil
}
