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

// Package db persists datasets on the local disk. Each dataset is stored under
// its name as a gob file with the rows, and optionally as a CSV export.
package db

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/stockparfait/datasets/table"
	"github.com/stockparfait/errors"
)

func writeGob(fileName string, v interface{}) error {
	f, err := os.OpenFile(fileName, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Annotate(err, "failed to open file for writing: '%s'", fileName)
	}
	defer f.Close()
	enc := gob.NewEncoder(f)
	if err = enc.Encode(v); err != nil {
		return errors.Annotate(err, "failed to write to '%s'", fileName)
	}
	return nil
}

func readGob(fileName string, v interface{}) error {
	f, err := os.Open(fileName)
	if err != nil {
		return errors.Annotate(err, "failed to open file for reading: '%s'", fileName)
	}
	defer f.Close()
	dec := gob.NewDecoder(f)
	if err = dec.Decode(v); err != nil {
		return errors.Annotate(err, "failed to read from '%s'", fileName)
	}
	return nil
}

// Store of datasets in a directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. The directory is created on the first
// write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir of the store.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) gobPath(name string) string {
	return filepath.Join(s.dir, name+".gob")
}

func (s *Store) csvPath(name string) string {
	return filepath.Join(s.dir, name+".csv")
}

// Exists checks whether the named dataset was previously written.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.gobPath(name))
	return err == nil
}

// Read the named dataset into v, which must be a pointer to the same type that
// was written.
func (s *Store) Read(name string, v interface{}) error {
	if err := readGob(s.gobPath(name), v); err != nil {
		return errors.Annotate(err, "failed to read dataset %s", name)
	}
	return nil
}

// Write v as the named dataset, replacing any previous version.
func (s *Store) Write(name string, v interface{}) error {
	if err := os.MkdirAll(s.dir, 0777); err != nil {
		return errors.Annotate(err, "failed to create directory '%s'", s.dir)
	}
	if err := writeGob(s.gobPath(name), v); err != nil {
		return errors.Annotate(err, "failed to write dataset %s", name)
	}
	return nil
}

// WriteCSV exports the table as <name>.csv, with the row index as the first
// column.
func (s *Store) WriteCSV(name string, t *table.Table) error {
	if err := os.MkdirAll(s.dir, 0777); err != nil {
		return errors.Annotate(err, "failed to create directory '%s'", s.dir)
	}
	fileName := s.csvPath(name)
	f, err := os.OpenFile(fileName, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Annotate(err, "failed to open file for writing: '%s'", fileName)
	}
	defer f.Close()
	if err := t.WriteCSV(f, table.Params{Index: true}); err != nil {
		return errors.Annotate(err, "failed to write CSV for dataset %s", name)
	}
	return nil
}
