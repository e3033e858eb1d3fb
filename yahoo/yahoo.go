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

// Package yahoo downloads daily price history from Yahoo Finance in CSV
// format.
package yahoo

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockparfait/datasets/db"
	"github.com/stockparfait/datasets/retry"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
)

// URL is the default base URL of the server. It may be overwritten in tests.
var URL = "https://query1.finance.yahoo.com/v7/finance/download"

// Start is the earliest date of the downloaded history.
var Start = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Price is a single daily price sample. Values which the vendor reports as
// "null" are invalid decimals.
type Price struct {
	Date     db.Date
	Open     decimal.NullDecimal
	High     decimal.NullDecimal
	Low      decimal.NullDecimal
	Close    decimal.NullDecimal
	AdjClose decimal.NullDecimal
	Volume   decimal.NullDecimal
}

// Vendor CSV column names.
const (
	ColumnDate     = "Date"
	ColumnOpen     = "Open"
	ColumnHigh     = "High"
	ColumnLow      = "Low"
	ColumnClose    = "Close"
	ColumnAdjClose = "Adj Close"
	ColumnVolume   = "Volume"
)

const (
	priceDate int = iota
	priceOpen
	priceHigh
	priceLow
	priceClose
	priceAdjClose
	priceVolume
	priceLast // keep it last; not a real value.
)

var columns = [priceLast]string{
	priceDate:     ColumnDate,
	priceOpen:     ColumnOpen,
	priceHigh:     ColumnHigh,
	priceLow:      ColumnLow,
	priceClose:    ColumnClose,
	priceAdjClose: ColumnAdjClose,
	priceVolume:   ColumnVolume,
}

// mapColumns maps the i'th header column to the Price field index, or -1 for
// unrecognized columns. The Date column is required.
func mapColumns(header []string) ([]int, error) {
	m := make([]int, len(header))
	hasDate := false
	for i, h := range header {
		m[i] = -1
		for j, n := range columns {
			if strings.TrimSpace(h) == n {
				m[i] = j
				if j == priceDate {
					hasDate = true
				}
				break
			}
		}
	}
	if !hasDate {
		return nil, errors.Reason("CSV header has no %s column: %s",
			ColumnDate, strings.Join(header, ","))
	}
	return m, nil
}

func parseDecimal(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, errors.Annotate(err, "invalid decimal: '%s'", s)
	}
	return decimal.NewNullDecimal(d), nil
}

// parsePrice converts a CSV row to a Price using the column map.
func parsePrice(row []string, colMap []int) (p Price, err error) {
	for i, r := range row {
		if i >= len(colMap) {
			break
		}
		var v decimal.NullDecimal
		switch colMap[i] {
		case -1:
			continue
		case priceDate:
			if p.Date, err = db.NewDateFromString(r); err != nil {
				err = errors.Annotate(err, "failed to parse date")
				return
			}
			continue
		}
		if v, err = parseDecimal(r); err != nil {
			err = errors.Annotate(err, "failed to parse %s", columns[colMap[i]])
			return
		}
		switch colMap[i] {
		case priceOpen:
			p.Open = v
		case priceHigh:
			p.High = v
		case priceLow:
			p.Low = v
		case priceClose:
			p.Close = v
		case priceAdjClose:
			p.AdjClose = v
		case priceVolume:
			p.Volume = v
		}
	}
	return
}

// ReadCSVPrices parses the vendor CSV. The first row must be the header;
// unrecognized columns are ignored, missing ones are left invalid. It returns
// nil when there are no data rows.
func ReadCSVPrices(r io.Reader) ([]Price, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.Annotate(err, "failed to read prices from CSV")
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	colMap, err := mapColumns(rows[0])
	if err != nil {
		return nil, errors.Annotate(err, "unexpected CSV header")
	}
	prices := make([]Price, 0, len(rows)-1)
	for i, row := range rows[1:] {
		p, err := parsePrice(row, colMap)
		if err != nil {
			return nil, errors.Annotate(err, "failed to parse row %d", i+1)
		}
		prices = append(prices, p)
	}
	return prices, nil
}

// DownloadURL returns the URL and the query of the history download for the
// ticker between the two moments, with second precision.
func DownloadURL(ticker string, from, to time.Time) (string, url.Values) {
	uri := URL + "/" + url.PathEscape(ticker)
	query := url.Values{
		"period1":              []string{fmt.Sprintf("%d", from.Unix())},
		"period2":              []string{fmt.Sprintf("%d", to.Unix())},
		"interval":             []string{"1d"},
		"events":               []string{"history"},
		"includeAdjustedClose": []string{"true"},
	}
	return uri, query
}

// DownloadDaily downloads and parses daily prices of the ticker. Network
// failures and HTTP error statuses are retried according to the policy; when
// the attempts are exhausted, the error is *retry.ConnectionError. A response
// without data rows yields nil prices and no error.
func DownloadDaily(ctx context.Context, ticker string, from, to time.Time, p retry.Policy) ([]Price, error) {
	uri, query := DownloadURL(ticker, from, to)
	full := uri + "?" + query.Encode()
	var prices []Price
	err := p.Do(ctx, full, func() error {
		resp, err := retry.Get(ctx, uri, query)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		prices, err = ReadCSVPrices(resp.Body)
		return err
	})
	if err != nil {
		var ce *retry.ConnectionError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, errors.Annotate(err, "failed to download daily prices for %s", ticker)
	}
	logging.Debugf(ctx, "Yahoo: downloaded %d daily prices for %s", len(prices), ticker)
	return prices, nil
}
