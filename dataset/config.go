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
	"strings"
	"time"

	"github.com/stockparfait/datasets/db"
	"github.com/stockparfait/datasets/nasdaq"
	"github.com/stockparfait/datasets/retry"
)

// Config is the per-run configuration shared by all the datasets. It is passed
// by value and is not modified after construction.
type Config struct {
	Suffix   string            // dataset name suffix, e.g. "sp500"
	TagDate  db.Date           // the reference date of the run
	Username string            // owner of the published datasets
	Tickers  map[string]string // symbol -> ticker overrides
	Retry    retry.Policy      // for the daily timeseries download
	Windows  int               // extended-trading windows; 0 = nasdaq.NumWindows
	Now      func() time.Time  // default: time.Now
}

// NewConfig creates a Config with default values for the given suffix and tag
// date.
func NewConfig(suffix string, tagDate db.Date) Config {
	return Config{
		Suffix:  suffix,
		TagDate: tagDate,
		Retry:   retry.DefaultPolicy(),
		Windows: nasdaq.NumWindows,
	}
}

// Ticker translates a symbol into the vendor ticker. Explicit overrides take
// precedence; otherwise class-share dots become dashes, e.g. BRK.B -> BRK-B.
func (c Config) Ticker(symbol string) string {
	if t, ok := c.Tickers[symbol]; ok {
		return t
	}
	return strings.ReplaceAll(symbol, ".", "-")
}

func (c Config) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c Config) windows() int {
	if c.Windows <= 0 {
		return nasdaq.NumWindows
	}
	return c.Windows
}
