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
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stockparfait/datasets/db"
	"github.com/stockparfait/datasets/retry"
	"github.com/stockparfait/datasets/yahoo"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

const dailyHeader = "Date,Open,High,Low,Close,Adj Close,Volume\n"

func TestTimeseriesDaily(t *testing.T) {
	t.Parallel()
	tmpdir, tmpdirErr := os.MkdirTemp("", "test_timeseries_daily")
	defer os.RemoveAll(tmpdir)

	Convey("Test setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	Convey("Config", t, func() {
		c := NewConfig("sp500", db.NewDate(2023, 5, 26))
		So(c.Retry, ShouldResemble, retry.Policy{Attempts: 10, Delay: 300 * time.Second})
		So(c.windows(), ShouldEqual, 11)
		So(c.Ticker("AAPL"), ShouldEqual, "AAPL")
		So(c.Ticker("BRK.B"), ShouldEqual, "BRK-B")
		c.Tickers = map[string]string{"BRK.B": "BRK/B"}
		So(c.Ticker("BRK.B"), ShouldEqual, "BRK/B")
		now := time.Date(2023, 5, 27, 0, 0, 0, 0, time.UTC)
		c.Now = func() time.Time { return now }
		So(c.now(), ShouldResemble, now)
	})

	Convey("TimeseriesDaily works", t, func() {
		server := testutil.NewTestServer()
		defer server.Close()
		ctx := fetch.UseClient(context.Background(), server.Client())
		yahoo.URL = server.URL() + "/download"

		c := NewConfig("sp500", db.NewDate(2023, 5, 26))
		c.Retry = retry.Policy{Attempts: 2}
		c.Now = func() time.Time { return time.Date(2023, 5, 27, 0, 0, 0, 0, time.UTC) }
		d := NewTimeseriesDaily(c)
		So(d.Name(), ShouldEqual, "timeseries-daily-sp500")

		Convey("a single day", func() {
			server.ResponseBody = []string{
				dailyHeader + "2023-05-26,170.0,172.0,169.0,171.5,171.5,5000000\n"}
			So(d.AppendFrame(ctx, "AAPL"), ShouldBeNil)
			So(server.RequestPath, ShouldEqual, "/download/AAPL")
			_, query := yahoo.DownloadURL("AAPL", yahoo.Start, c.Now())
			So(server.RequestQuery, ShouldResemble, query)
			So(d.SetDataset(ctx, nil), ShouldBeNil)
			So(d.Table().Header, ShouldResemble, TimeseriesDailyColumns)
			So(csvString(d.Table()), ShouldEqual, `,symbol,date,open,high,low,close,adj_close,volume
0,AAPL,2023-05-26,170,172,169,171.5,171.5,5000000
`)
		})

		Convey("no data records an absent frame", func() {
			server.ResponseBody = []string{dailyHeader}
			So(d.AppendFrame(ctx, "DEAD"), ShouldBeNil)
			f, ok := d.Frames()["DEAD"]
			So(ok, ShouldBeTrue)
			So(f, ShouldBeNil)
			So(d.SetDataset(ctx, nil), ShouldBeNil)
			So(len(d.Rows()), ShouldEqual, 0)
		})

		Convey("frames are merged and sorted, missing values kept empty", func() {
			server.ResponseBody = []string{
				dailyHeader +
					"2023-05-26,2,2,2,2,2,200\n" +
					"2023-05-25,1,1,1,1,1,100\n",
				dailyHeader,
				dailyHeader +
					"2023-05-25 00:00:00-04:00,null,null,null,null,null,null\n" +
					"2023-05-24,3,3,3,3,3,300\n",
			}
			So(d.AppendFrame(ctx, "MSFT"), ShouldBeNil)
			So(d.AppendFrame(ctx, "DEAD"), ShouldBeNil)
			So(d.AppendFrame(ctx, "AAPL"), ShouldBeNil)
			So(d.SetDataset(ctx, nil), ShouldBeNil)
			So(d.Table().Check(), ShouldBeNil)
			So(csvString(d.Table()), ShouldEqual, `,symbol,date,open,high,low,close,adj_close,volume
0,AAPL,2023-05-24,3,3,3,3,3,300
1,AAPL,2023-05-25,,,,,,
2,MSFT,2023-05-25,1,1,1,1,1,100
3,MSFT,2023-05-26,2,2,2,2,2,200
`)
		})
	})

	Convey("Run", t, func() {
		store := db.NewStore(filepath.Join(tmpdir, "user"))
		c := NewConfig("test", db.NewDate(2023, 5, 26))
		c.Retry = retry.Policy{Attempts: 2}

		Convey("saves the dataset", func() {
			server := testutil.NewTestServer()
			defer server.Close()
			ctx := fetch.UseClient(context.Background(), server.Client())
			yahoo.URL = server.URL() + "/download"
			server.ResponseBody = []string{
				dailyHeader + "2023-05-26,170.0,172.0,169.0,171.5,171.5,5000000\n",
				dailyHeader + "2023-05-26,1,1,1,1,1,1\n",
			}
			d := NewTimeseriesDaily(c)
			So(Run(ctx, d, []string{"MSFT", "AAPL"}, store), ShouldBeNil)
			So(store.Exists(d.Name()), ShouldBeTrue)
			var saved []TimeseriesDailyRow
			So(store.Read(d.Name(), &saved), ShouldBeNil)
			So(len(saved), ShouldEqual, 2)
			So(saved[0].Symbol, ShouldEqual, "AAPL")
			data, err := os.ReadFile(filepath.Join(store.Dir(), d.Name()+".csv"))
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, `,symbol,date,open,high,low,close,adj_close,volume
0,AAPL,2023-05-26,1,1,1,1,1,1
1,MSFT,2023-05-26,170,172,169,171.5,171.5,5000000
`)
		})

		Convey("exhausted retries abort without saving", func() {
			server := testutil.NewTestServer()
			defer server.Close()
			ctx := fetch.UseClient(context.Background(), server.Client())
			yahoo.URL = server.URL() + "/download"
			server.ResponseStatus = []int{http.StatusNotFound}
			c.Suffix = "failed"
			d := NewTimeseriesDaily(c)
			err := Run(ctx, d, []string{"AAPL"}, store)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to connect")
			So(err.Error(), ShouldContainSubstring, "after 2 retries")
			So(store.Exists(d.Name()), ShouldBeFalse)
		})

		Convey("a persistent server error aborts without saving", func() {
			server := testutil.NewTestServer()
			defer server.Close()
			ctx := fetch.UseClient(context.Background(), server.Client())
			yahoo.URL = server.URL() + "/download"
			server.ResponseStatus = []int{http.StatusOK, http.StatusServiceUnavailable}
			server.ResponseBody = []string{
				dailyHeader + "2023-05-26,1,1,1,1,1,1\n", ""}
			c.Suffix = "unavailable"
			d := NewTimeseriesDaily(c)
			err := Run(ctx, d, []string{"AAPL", "MSFT"}, store)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "MSFT")
			So(err.Error(), ShouldContainSubstring, "503")
			So(store.Exists(d.Name()), ShouldBeFalse)
		})
	})
}
