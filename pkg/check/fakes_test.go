package check

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gravito-framework/quasar-teradata/pkg/config"
	"github.com/gravito-framework/quasar-teradata/pkg/db"
	"github.com/gravito-framework/quasar-teradata/pkg/queries"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func fixedClock() time.Time { return fixedNow }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// response is what the fake cursor returns for SQL containing its key
type response struct {
	rows []db.Row
	err  error
}

type fakeConnector struct {
	availErr   error
	connectErr error
	conn       *fakeConn
	connects   int
	lastParams string
}

func (f *fakeConnector) Available() error { return f.availErr }

func (f *fakeConnector) Connect(_ context.Context, params string) (db.Conn, error) {
	f.connects++
	f.lastParams = params
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return f.conn, nil
}

type fakeConn struct {
	responses map[string]response
	closeErr  error
	closes    int
	executed  []string
}

func newFakeConn(responses map[string]response) *fakeConn {
	return &fakeConn{responses: responses}
}

func (c *fakeConn) Cursor() (db.Cursor, error) {
	if c.closes > 0 {
		return nil, errors.New("connection is closed")
	}
	return &fakeCursor{conn: c}, nil
}

func (c *fakeConn) Close() error {
	c.closes++
	return c.closeErr
}

type fakeCursor struct {
	conn *fakeConn
	rows []db.Row
}

func (c *fakeCursor) Execute(_ context.Context, query string) error {
	c.conn.executed = append(c.conn.executed, query)
	for key, resp := range c.conn.responses {
		if strings.Contains(query, key) {
			if resp.err != nil {
				return resp.err
			}
			c.rows = resp.rows
			return nil
		}
	}
	c.rows = nil
	return nil
}

func (c *fakeCursor) RowCount() int { return len(c.rows) }

func (c *fakeCursor) FetchAll() ([]db.Row, error) { return c.rows, nil }

func (c *fakeCursor) Close() error { return nil }

var (
	diskSpaceQuery = queries.Query{
		Name: "disk_space",
		SQL:  "SELECT DatabaseName, SUM(CurrentPerm) FROM DBC.AllSpaceV WHERE DatabaseName = '{}' GROUP BY 1",
		Columns: []queries.Column{
			{Name: "td_database", Type: queries.ColumnTag},
			{Name: "disk_space.curr_perm", Type: queries.ColumnGauge},
		},
	}
	ampUsageQuery = queries.Query{
		Name: "amp_usage",
		SQL:  "SELECT UserName, SUM(CpuTime) FROM DBC.AMPUsageV GROUP BY 1",
		Columns: []queries.Column{
			{Name: "td_user", Type: queries.ColumnTag},
			{Name: "amp.cpu_time", Type: queries.ColumnMonotonicCount},
		},
	}
	resUsageQuery = queries.Query{
		Name:  "res_usage",
		Class: queries.ClassResourceUsage,
		SQL:   "SELECT TheTimestamp, CPUIdle FROM DBC.ResSpmaView",
		Columns: []queries.Column{
			{Name: "timestamp", Type: queries.ColumnSource},
			{Name: "cpu.idle", Type: queries.ColumnGauge},
		},
	}
	testQueries = []queries.Query{diskSpaceQuery, ampUsageQuery, resUsageQuery}
)

func healthyResponses() map[string]response {
	return map[string]response{
		"DBC.AllSpaceV":   {rows: []db.Row{{"AdventureWorksDW", int64(1024)}}},
		"DBC.AMPUsageV":   {rows: []db.Row{{"datadog", int64(77)}}},
		"DBC.ResSpmaView": {rows: []db.Row{{fixedNow.Unix() - 60, 12.5}}},
	}
}

func testInstance() config.Instance {
	in := config.DefaultConfig().Instance
	in.Server = "tdserver"
	in.Database = "AdventureWorksDW"
	in.Username = "datadog"
	in.Password = "td_datadog"
	in.Tags = []string{"td_env:dev"}
	in.CollectResUsage = true
	return in
}
