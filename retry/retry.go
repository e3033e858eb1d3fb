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

// Package retry implements a bounded retry policy for vendor downloads on top
// of fetch.Retry.
package retry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/logging"
)

// Default values of the Policy fields.
const (
	DefaultAttempts = 10
	DefaultDelay    = 300 * time.Second
)

// Policy defines how many times an operation is attempted, and how long to
// wait between the attempts.
type Policy struct {
	Attempts int           // must be >= 1
	Delay    time.Duration // delay after the first failure
	MaxDelay time.Duration // when > Delay, the delay doubles up to MaxDelay
}

// DefaultPolicy returns the policy with the default values.
func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts, Delay: DefaultDelay}
}

// Params converts the policy to fetch.Params. Only fetch.RetriableError
// failures are retried.
func (p Policy) Params() *fetch.Params {
	maxDelay := p.MaxDelay
	if maxDelay < p.Delay {
		maxDelay = p.Delay
	}
	return fetch.NewParams().Retries(p.Attempts - 1).MinWait(p.Delay).MaxWait(maxDelay)
}

// Transient marks err as a transient failure which Policy.Do will retry. A nil
// error remains nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fetch.NewRetriableError(err)
}

// ConnectionError is returned by Policy.Do when all the attempts failed with
// transient errors.
type ConnectionError struct {
	URL      string
	Attempts int
	Last     error // the error of the last attempt
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s after %d retries: %s",
		e.URL, e.Attempts, e.Last.Error())
}

func (e *ConnectionError) Unwrap() error { return e.Last }

// transientCause returns the error wrapped by a retriable error, or nil if err
// is not retriable.
func transientCause(err error) error {
	var re *fetch.RetriableError
	if !errors.As(err, &re) {
		return nil
	}
	if re.Err == nil {
		return errors.Reason("transient failure")
	}
	return re.Err
}

// Do calls f until it succeeds, returns a non-transient error, or the number of
// attempts is exhausted. The uri is used only for logging and error reporting.
func (p Policy) Do(ctx context.Context, uri string, f func() error) error {
	if p.Attempts < 1 {
		return errors.Reason("number of attempts = %d must be >= 1", p.Attempts)
	}
	var last error
	err := fetch.Retry(ctx, p.Params(), func(attempt int) error {
		err := f()
		cause := transientCause(err)
		if cause == nil {
			return err
		}
		last = cause
		if attempt+1 < p.Attempts {
			logging.Warningf(ctx, "Connection error with %s: %s. Retrying...",
				uri, cause.Error())
		}
		return Transient(cause)
	})
	if err == nil {
		return nil
	}
	if transientCause(err) != nil {
		return &ConnectionError{URL: uri, Attempts: p.Attempts, Last: last}
	}
	return err
}

// Get sends a single GET request. Transport failures and HTTP error statuses
// are returned as transient errors; the response is returned only on success,
// and the caller must close its body.
func Get(ctx context.Context, uri string, query url.Values) (*http.Response, error) {
	resp, err := fetch.Get(ctx, uri, query)
	if err == nil {
		return resp, nil
	}
	if resp == nil {
		return nil, Transient(err)
	}
	defer resp.Body.Close()
	// 5xx errors from fetch.Get carry no cause.
	if fetch.ResponseRetriable(resp) {
		err = errors.Reason("url: %s, response code %s", uri, resp.Status)
	}
	return nil, Transient(err)
}
