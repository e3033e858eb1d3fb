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

package nasdaq

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/guregu/null/v5"
	"github.com/stockparfait/datasets/retry"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNasdaq(t *testing.T) {
	t.Parallel()

	Convey("Request parts are correct", t, func() {
		So(Path("AAPL"), ShouldEqual, "/quote/AAPL/extended-trading")
		So(Query(3), ShouldResemble, url.Values{
			"markettype": []string{"pre"},
			"assetclass": []string{"stocks"},
			"time":       []string{"3"},
		})
		h := Header()
		So(len(h), ShouldEqual, 14)
		So(h.Get("authority"), ShouldEqual, "api.nasdaq.com")
		So(h.Get("User-Agent"), ShouldContainSubstring, "Mozilla/5.0")
		h.Set("authority", "changed")
		So(Header().Get("authority"), ShouldEqual, "api.nasdaq.com")
	})

	Convey("FetchExtendedTrading works", t, func() {
		server := testutil.NewTestServer()
		defer server.Close()
		server.ResponseBody = []string{"{}"}

		ctx := fetch.UseClient(context.Background(), server.Client())
		URL = server.URL() + "/api"
		Retry = retry.Policy{Attempts: 2}

		Convey("returns trades", func() {
			page, err := TestExtendedTradingPage([]TradeRow{
				{Time: null.StringFrom("08:00:01"), Price: "$150.25", ShareVolume: "1,000"},
				{Price: "$150.30", ShareVolume: "10"},
			})
			So(err, ShouldBeNil)
			server.ResponseBody = []string{page}
			rows, err := FetchExtendedTrading(ctx, "AAPL", 3)
			So(err, ShouldBeNil)
			So(rows, ShouldResemble, []TradeRow{
				{Time: null.StringFrom("08:00:01"), Price: "$150.25", ShareVolume: "1,000"},
				{Price: "$150.30", ShareVolume: "10"},
			})
			So(server.RequestPath, ShouldEqual, "/api/quote/AAPL/extended-trading")
			So(server.RequestQuery, ShouldResemble, Query(3))
		})

		Convey("vendor page without time", func() {
			server.ResponseBody = []string{
				`{"data": {"tradeDetailTable": {"rows": [{"price": "$150.25", "shareVolume": "1000"}]}}}`}
			rows, err := FetchExtendedTrading(ctx, "AAPL", 3)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 1)
			So(rows[0].Time.Valid, ShouldBeFalse)
			So(rows[0].Price, ShouldEqual, "$150.25")
			So(rows[0].ShareVolume, ShouldEqual, "1000")
		})

		Convey("null data block", func() {
			page, err := TestExtendedTradingPage(nil)
			So(err, ShouldBeNil)
			So(page, ShouldEqual, `{"data":null}`)
			server.ResponseBody = []string{page}
			rows, err := FetchExtendedTrading(ctx, "AAPL", 1)
			So(err, ShouldBeNil)
			So(rows, ShouldBeNil)
		})

		Convey("null trade table", func() {
			server.ResponseBody = []string{`{"data": {"tradeDetailTable": null}}`}
			rows, err := FetchExtendedTrading(ctx, "AAPL", 1)
			So(err, ShouldBeNil)
			So(rows, ShouldBeNil)
		})

		Convey("null rows", func() {
			server.ResponseBody = []string{`{"data": {"tradeDetailTable": {"rows": null}}}`}
			rows, err := FetchExtendedTrading(ctx, "AAPL", 1)
			So(err, ShouldBeNil)
			So(rows, ShouldBeNil)
		})

		Convey("malformed JSON is an error", func() {
			server.ResponseBody = []string{`{"data": `}
			_, err := FetchExtendedTrading(ctx, "AAPL", 1)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to unmarshal JSON")
		})

		Convey("recovers from a server error", func() {
			server.ResponseStatus = []int{http.StatusServiceUnavailable, http.StatusOK}
			server.ResponseBody = []string{"", `{"data": null}`}
			rows, err := FetchExtendedTrading(ctx, "AAPL", 1)
			So(err, ShouldBeNil)
			So(rows, ShouldBeNil)
		})

		Convey("persistent server error is a connection error", func() {
			server.ResponseStatus = []int{http.StatusServiceUnavailable}
			_, err := FetchExtendedTrading(ctx, "AAPL", 1)
			var ce *retry.ConnectionError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Attempts, ShouldEqual, 2)
			So(err.Error(), ShouldContainSubstring, "503")
		})
	})

	Convey("Requests carry the browser headers", t, func() {
		var received http.Header
		server := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				received = r.Header.Clone()
				w.Write([]byte(`{"data": null}`))
			}))
		defer server.Close()
		ctx := fetch.UseClient(context.Background(), server.Client())
		URL = server.URL + "/api"

		_, err := FetchExtendedTrading(ctx, "AAPL", 1)
		So(err, ShouldBeNil)
		So(received.Get("authority"), ShouldEqual, "api.nasdaq.com")
		So(received.Get("user-agent"), ShouldEqual, Header().Get("user-agent"))
		So(received.Get("sec-fetch-mode"), ShouldEqual, "navigate")
		for k := range Header() {
			So(received.Get(k), ShouldNotBeEmpty)
		}

		Convey("the client in the context is wrapped once", func() {
			hctx := UseHeaders(ctx)
			So(fetch.GetClient(hctx), ShouldNotEqual, server.Client())
			So(fetch.GetClient(UseHeaders(hctx)), ShouldEqual, fetch.GetClient(hctx))
		})
	})
}
