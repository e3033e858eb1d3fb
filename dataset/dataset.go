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

// Package dataset builds raw market datasets: it fetches each symbol from a
// vendor, normalizes the result into a per-symbol frame with a fixed column
// schema, and aggregates the frames into a single sorted table.
//
// A typical use:
//   store := db.NewStore(dir)
//   b := dataset.NewTimeseriesDaily(config)
//   err := dataset.Run(ctx, b, []string{"AAPL", "MSFT"}, store)
package dataset

import (
	"context"
	"sort"

	"github.com/stockparfait/datasets/table"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/iterator"
	"github.com/stockparfait/logging"
)

// Store persists datasets by name. It is implemented by db.Store.
type Store interface {
	Exists(name string) bool
	Read(name string, v interface{}) error
	Write(name string, v interface{}) error
	WriteCSV(name string, t *table.Table) error
}

// Frame is the normalized table of a single symbol.
type Frame[R table.Row] struct {
	Symbol string
	Rows   []R
}

// Frames maps a symbol to its frame. A nil frame records that the symbol was
// fetched but had no data.
type Frames[R table.Row] map[string]*Frame[R]

// Concat returns the rows of all the present frames. Frames are concatenated in
// the order of their symbols.
func (f Frames[R]) Concat() []R {
	symbols := make([]string, 0, len(f))
	for s, fr := range f {
		if fr != nil {
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)
	return iterator.Reduce[string, []R](iterator.FromSlice(symbols), []R{},
		func(s string, rows []R) []R {
			return append(rows, f[s].Rows...)
		})
}

// base holds the state common to all the datasets.
type base[R table.Row] struct {
	config  Config
	name    string
	columns []string
	frames  Frames[R]
	rows    []R // the aggregated dataset; the row index is the slice index
}

func newBase[R table.Row](c Config, name string, columns []string) base[R] {
	return base[R]{
		config:  c,
		name:    name,
		columns: columns,
		frames:  make(Frames[R]),
	}
}

// Name of the dataset.
func (b *base[R]) Name() string { return b.name }

// Columns of the dataset, in their canonical order.
func (b *base[R]) Columns() []string { return b.columns }

// Frames fetched so far.
func (b *base[R]) Frames() Frames[R] { return b.frames }

// Rows of the aggregated dataset, available after SetDataset.
func (b *base[R]) Rows() []R { return b.rows }

// Table of the aggregated dataset.
func (b *base[R]) Table() *table.Table {
	t := table.NewTable(b.columns...)
	for _, r := range b.rows {
		t.AddRow(r)
	}
	return t
}

// aggregate concatenates the present frames with any extra rows and sorts the
// result stably.
func (b *base[R]) aggregate(extra []R, less func(x, y R) bool) {
	rows := append(b.frames.Concat(), extra...)
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
	b.rows = rows
}

// Save the dataset rows and their CSV export.
func (b *base[R]) Save(ctx context.Context, store Store) error {
	t := b.Table()
	if err := t.Check(); err != nil {
		return errors.Annotate(err, "dataset %s does not match its schema", b.name)
	}
	if err := store.Write(b.name, b.rows); err != nil {
		return errors.Annotate(err, "failed to save %s", b.name)
	}
	if err := store.WriteCSV(b.name, t); err != nil {
		return errors.Annotate(err, "failed to export %s", b.name)
	}
	logging.Infof(ctx, "saved %d rows of %s", len(b.rows), b.name)
	return nil
}

// Builder is a dataset which is fetched one symbol at a time.
type Builder interface {
	Name() string
	// AppendFrame fetches and normalizes the data of a single symbol.
	AppendFrame(ctx context.Context, symbol string) error
	// SetDataset aggregates the fetched frames into the dataset.
	SetDataset(ctx context.Context, store Store) error
	Save(ctx context.Context, store Store) error
	Table() *table.Table
}

// Run fetches all the symbols in sequence, aggregates and saves the dataset. Any
// error aborts the run before the dataset is saved.
func Run(ctx context.Context, b Builder, symbols []string, store Store) error {
	for i, s := range symbols {
		logging.Infof(ctx, "%s: fetching %s [%d/%d]", b.Name(), s, i+1, len(symbols))
		if err := b.AppendFrame(ctx, s); err != nil {
			return errors.Annotate(err, "failed to fetch %s for %s", b.Name(), s)
		}
	}
	if err := b.SetDataset(ctx, store); err != nil {
		return errors.Annotate(err, "failed to aggregate %s", b.Name())
	}
	if err := b.Save(ctx, store); err != nil {
		return errors.Annotate(err, "failed to save %s", b.Name())
	}
	return nil
}
