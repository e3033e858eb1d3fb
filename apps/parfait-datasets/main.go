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

// Command parfait-datasets builds a raw market dataset for the configured
// symbols and saves it in the cache directory.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/stockparfait/datasets/dataset"
	"github.com/stockparfait/datasets/db"
	"github.com/stockparfait/datasets/table"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	extendedTrading = "extended-trading"
	timeseriesDaily = "timeseries-daily"
)

type Flags struct {
	DBDir    string // default: ~/.stockparfait/datasets
	Dataset  string // required: extended-trading or timeseries-daily
	LogLevel logging.Level
	Print    string // text, csv or empty for no printing
}

func parseFlags(args []string) (*Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("parfait-datasets", flag.ExitOnError)
	fs.StringVar(&flags.DBDir, "cache",
		filepath.Join(os.Getenv("HOME"), ".stockparfait", "datasets"),
		"configuration and data path")
	fs.StringVar(&flags.Dataset, "dataset", "",
		"dataset to build: extended-trading or timeseries-daily (required)")
	flags.LogLevel = logging.Info
	fs.Var(&flags.LogLevel, "log-level", "Log level: debug, info, warning, error")
	fs.StringVar(&flags.Print, "print", "",
		"print the dataset as text or csv; default: don't print")

	err := fs.Parse(args)
	if err != nil {
		return nil, err
	}
	switch flags.Dataset {
	case extendedTrading, timeseriesDaily:
	case "":
		return nil, errors.Reason("missing required -dataset argument")
	default:
		return nil, errors.Reason("unknown dataset: '%s'", flags.Dataset)
	}
	switch flags.Print {
	case "", "text", "csv":
	default:
		return nil, errors.Reason("-print must be text or csv, got '%s'", flags.Print)
	}
	return &flags, nil
}

type Config struct {
	Suffix     string            `toml:"suffix"`      // dataset name suffix
	TagDate    db.Date           `toml:"tag_date"`    // default: today in New York
	Username   string            `toml:"username"`    // data is saved in <cache>/<username>
	Symbols    []string          `toml:"symbols"`     // symbols to fetch, in order
	Tickers    map[string]string `toml:"tickers"`     // vendor ticker overrides
	Retries    int               `toml:"retries"`     // default: 10
	RetryDelay int               `toml:"retry_delay"` // seconds; default: 300
	Windows    int               `toml:"windows"`     // default: 11
}

func parseConfig(dbdir string) (*Config, error) {
	filePath := filepath.Join(dbdir, "config.toml")
	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			sample := `suffix = "sp500"
username = "trader"
symbols = ["AAPL", "MSFT", "BRK.B"]
# Optional:
# tag_date = "2023-05-26"
# retries = 10
# retry_delay = 300
`
			err = errors.Annotate(err,
				"config file '%s' does not exist.\nPlease create config file containing:\n%s",
				filePath, sample)
			return nil, err
		} else {
			return nil, errors.Annotate(err,
				"cannot check config file for existence: '%s'", filePath)
		}
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open config file %s", filePath)
	}
	defer f.Close()

	d := toml.NewDecoder(f)
	var c Config
	if err := d.Decode(&c); err != nil {
		return nil, errors.Annotate(err, "failed to read config file %s", filePath)
	}
	if c.Suffix == "" {
		return nil, errors.Reason("config file %s: missing suffix", filePath)
	}
	if c.Username == "" {
		return nil, errors.Reason("config file %s: missing username", filePath)
	}
	if c.Retries < 0 || c.RetryDelay < 0 || c.Windows < 0 {
		return nil, errors.Reason(
			"config file %s: retries, retry_delay and windows must be non-negative",
			filePath)
	}
	return &c, nil
}

// datasetConfig converts the app config to the dataset config, filling in the
// defaults.
func datasetConfig(c *Config, now time.Time) dataset.Config {
	tagDate := c.TagDate
	if tagDate.IsZero() {
		tagDate = db.DateInNY(now)
	}
	dc := dataset.NewConfig(c.Suffix, tagDate)
	dc.Username = c.Username
	dc.Tickers = c.Tickers
	if c.Retries > 0 {
		dc.Retry.Attempts = c.Retries
	}
	if c.RetryDelay > 0 {
		dc.Retry.Delay = time.Duration(c.RetryDelay) * time.Second
	}
	if c.Windows > 0 {
		dc.Windows = c.Windows
	}
	return dc
}

func newBuilder(name string, c dataset.Config) dataset.Builder {
	if name == extendedTrading {
		return dataset.NewExtendedTrading(c)
	}
	return dataset.NewTimeseriesDaily(c)
}

func printTable(w io.Writer, t *table.Table, format string) error {
	switch format {
	case "text":
		return t.WriteText(w, table.Params{Index: true})
	case "csv":
		return t.WriteCSV(w, table.Params{Index: true})
	}
	return nil
}

func download(ctx context.Context, flags *Flags, w io.Writer) error {
	config, err := parseConfig(flags.DBDir)
	if err != nil {
		return errors.Annotate(err, "failed to parse config")
	}
	dc := datasetConfig(config, time.Now())
	logging.Debugf(ctx, "%s: tag date %s, retry policy %+v",
		flags.Dataset, dc.TagDate, dc.Retry)

	b := newBuilder(flags.Dataset, dc)
	store := db.NewStore(filepath.Join(flags.DBDir, config.Username))
	if err := dataset.Run(ctx, b, config.Symbols, store); err != nil {
		return errors.Annotate(err, "failed to build %s", b.Name())
	}
	if err := printTable(w, b.Table(), flags.Print); err != nil {
		return errors.Annotate(err, "failed to print %s", b.Name())
	}
	return nil
}

func main() {
	ctx := context.Background()
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		ctx = logging.Use(ctx, logging.DefaultGoLogger(logging.Info))
		logging.Errorf(ctx, "failed to parse flags: %s", err.Error())
		os.Exit(1)
	}
	ctx = logging.Use(ctx, logging.DefaultGoLogger(flags.LogLevel))

	if err := download(ctx, flags, os.Stdout); err != nil {
		logging.Errorf(ctx, err.Error())
		os.Exit(1)
	}
}
