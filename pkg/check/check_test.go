package check

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gravito-framework/quasar-teradata/pkg/db"
	"github.com/gravito-framework/quasar-teradata/pkg/queries"
	"github.com/gravito-framework/quasar-teradata/pkg/sink"
	"github.com/gravito-framework/quasar-teradata/pkg/types"
)

func newTestCheck(t *testing.T, connector db.Connector, rec *sink.Recorder) *Check {
	t.Helper()
	c, err := New(testInstance(), connector, rec,
		WithLogger(discardLogger()),
		WithClock(fixedClock),
		WithQueries(testQueries),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func assertStatus(t *testing.T, rec *sink.Recorder, name string, want types.Status) types.ServiceCheck {
	t.Helper()
	sc, ok := rec.ServiceCheck(name)
	if !ok {
		t.Fatalf("Service check %s not submitted", name)
	}
	if sc.Status != want {
		t.Errorf("%s = %s, want %s", name, sc.Status, want)
	}
	return sc
}

func TestNewRejectsBadCatalogue(t *testing.T) {
	bad := []queries.Query{{Name: "broken", SQL: "SELECT 1"}}
	_, err := New(testInstance(), &fakeConnector{}, sink.NewRecorder(), WithQueries(bad), WithLogger(discardLogger()))
	if err == nil {
		t.Fatal("Expected compile error")
	}
}

func TestCheckTags(t *testing.T) {
	c := newTestCheck(t, &fakeConnector{conn: newFakeConn(nil)}, sink.NewRecorder())
	want := []string{"td_env:dev", "teradata_server:tdserver", "teradata_port:1025"}
	got := c.Tags()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Tags() = %v, want %v", got, want)
	}
}

func TestRunHealthy(t *testing.T) {
	conn := newFakeConn(healthyResponses())
	connector := &fakeConnector{conn: conn}
	rec := sink.NewRecorder()
	c := newTestCheck(t, connector, rec)

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !res.Connected || res.QueryErrors != 0 || res.QueriesRun != 3 {
		t.Errorf("Unexpected result %+v", res)
	}
	if res.RunID == "" {
		t.Error("Expected a run id")
	}
	if conn.closes != 1 {
		t.Errorf("Expected one close, got %d", conn.closes)
	}

	assertStatus(t, rec, types.CheckCanConnect, types.StatusOK)
	assertStatus(t, rec, types.CheckCanQuery, types.StatusOK)

	metrics := rec.Metrics()
	if len(metrics) != 3 {
		t.Fatalf("Expected 3 metrics, got %d: %+v", len(metrics), metrics)
	}
	disk := metrics[0]
	if disk.Name != "teradata.disk_space.curr_perm" || disk.Value != 1024 || disk.Type != types.MetricGauge {
		t.Errorf("Unexpected disk metric %+v", disk)
	}
	if !containsTag(disk.Tags, "td_database:AdventureWorksDW") || !containsTag(disk.Tags, "teradata_server:tdserver") {
		t.Errorf("Missing tags on %v", disk.Tags)
	}
	if metrics[1].Type != types.MetricMonotonicCount {
		t.Errorf("Expected monotonic count, got %s", metrics[1].Type)
	}
}

func TestRunEmptyQueryIsCritical(t *testing.T) {
	responses := healthyResponses()
	responses["DBC.AMPUsageV"] = response{rows: nil}
	rec := sink.NewRecorder()
	c := newTestCheck(t, &fakeConnector{conn: newFakeConn(responses)}, rec)

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.QueryErrors != 1 {
		t.Errorf("Expected 1 query error, got %d", res.QueryErrors)
	}

	assertStatus(t, rec, types.CheckCanConnect, types.StatusOK)
	sc := assertStatus(t, rec, types.CheckCanQuery, types.StatusCritical)
	if sc.Message != "1 query errors" {
		t.Errorf("Unexpected message %q", sc.Message)
	}
	if len(rec.Metrics()) != 2 {
		t.Errorf("Expected the other two queries to submit, got %d metrics", len(rec.Metrics()))
	}
}

func TestRunConnectFailure(t *testing.T) {
	refused := errors.New("connection refused")
	rec := sink.NewRecorder()
	c := newTestCheck(t, &fakeConnector{connectErr: refused}, rec)

	res, err := c.Run(context.Background())
	if !errors.Is(err, refused) {
		t.Fatalf("Expected connect error, got %v", err)
	}
	if res.Connected || res.QueriesRun != 0 {
		t.Errorf("Unexpected result %+v", res)
	}

	checks := rec.ServiceChecks()
	if len(checks) != 1 || checks[0].Name != types.CheckCanConnect || checks[0].Status != types.StatusCritical {
		t.Errorf("Expected only CRITICAL can_connect, got %+v", checks)
	}
	if len(rec.Metrics()) != 0 {
		t.Errorf("Expected no metrics, got %v", rec.Metrics())
	}
}

func TestRunDriverUnavailable(t *testing.T) {
	connector := &fakeConnector{availErr: db.ErrDriverUnavailable}
	rec := sink.NewRecorder()
	c := newTestCheck(t, connector, rec)

	for i := 0; i < 2; i++ {
		rec.Reset()
		_, err := c.Run(context.Background())
		if !errors.Is(err, db.ErrDriverUnavailable) {
			t.Fatalf("cycle %d: expected ErrDriverUnavailable, got %v", i, err)
		}
		assertStatus(t, rec, types.CheckCanConnect, types.StatusCritical)
	}
	if connector.connects != 0 {
		t.Errorf("Expected no connection attempts, got %d", connector.connects)
	}
}

func TestRunQueryFailureDropsConnection(t *testing.T) {
	responses := healthyResponses()
	responses["DBC.AllSpaceV"] = response{err: errors.New("[Error 3523] The user does not have SELECT access")}
	conn := newFakeConn(responses)
	rec := sink.NewRecorder()
	c := newTestCheck(t, &fakeConnector{conn: conn}, rec)

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// the failing query plus both later queries that find no connection
	if res.QueryErrors != 3 {
		t.Errorf("Expected 3 query errors, got %d", res.QueryErrors)
	}
	if res.QueriesRun != 3 {
		t.Errorf("Expected all queries attempted, got %d", res.QueriesRun)
	}
	if conn.closes != 1 {
		t.Errorf("Expected exactly one close, got %d", conn.closes)
	}
	if len(conn.executed) != 1 {
		t.Errorf("Expected later queries to skip the database, got %v", conn.executed)
	}

	assertStatus(t, rec, types.CheckCanConnect, types.StatusOK)
	assertStatus(t, rec, types.CheckCanQuery, types.StatusCritical)
}

func TestRunBadValueKeepsConnection(t *testing.T) {
	responses := healthyResponses()
	responses["DBC.AllSpaceV"] = response{rows: []db.Row{{"AdventureWorksDW", "n/a"}}}
	conn := newFakeConn(responses)
	rec := sink.NewRecorder()
	c := newTestCheck(t, &fakeConnector{conn: conn}, rec)

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.QueryErrors != 1 {
		t.Errorf("Expected 1 query error, got %d", res.QueryErrors)
	}
	if len(conn.executed) != 3 {
		t.Errorf("Expected every query to reach the database, got %v", conn.executed)
	}
	// only the close at the end of the cycle
	if conn.closes != 1 {
		t.Errorf("Expected exactly one close, got %d", conn.closes)
	}
	if got := len(rec.Metrics()); got != 2 {
		t.Errorf("Expected 2 metrics from the other queries, got %d", got)
	}
	for _, m := range rec.Metrics() {
		if m.Name == "teradata.disk_space.curr_perm" {
			t.Errorf("Bad row must not be submitted: %+v", m)
		}
	}

	assertStatus(t, rec, types.CheckCanConnect, types.StatusOK)
	sc := assertStatus(t, rec, types.CheckCanQuery, types.StatusCritical)
	if sc.Message != "1 query errors" {
		t.Errorf("Unexpected message %q", sc.Message)
	}
}

func TestRunStaleResourceRowCountedOnce(t *testing.T) {
	responses := healthyResponses()
	responses["DBC.ResSpmaView"] = response{rows: []db.Row{{fixedNow.Unix() - 7200, 99.0}}}
	rec := sink.NewRecorder()
	c := newTestCheck(t, &fakeConnector{conn: newFakeConn(responses)}, rec)

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.QueryErrors != 1 {
		t.Errorf("Expected the stale row to count once, got %d", res.QueryErrors)
	}
	for _, m := range rec.Metrics() {
		if m.Name == "teradata.cpu.idle" {
			t.Errorf("Stale row must not be submitted: %+v", m)
		}
	}
	assertStatus(t, rec, types.CheckCanQuery, types.StatusCritical)
}

func TestRunResetsErrorsEachCycle(t *testing.T) {
	responses := healthyResponses()
	responses["DBC.AMPUsageV"] = response{rows: nil}
	conn := newFakeConn(responses)
	rec := sink.NewRecorder()
	c := newTestCheck(t, &fakeConnector{conn: conn}, rec)

	first, _ := c.Run(context.Background())

	responses["DBC.AMPUsageV"] = response{rows: []db.Row{{"datadog", int64(1)}}}
	conn.closes = 0
	rec.Reset()

	second, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if first.QueryErrors != 1 || second.QueryErrors != 0 {
		t.Errorf("Expected 1 then 0 errors, got %d then %d", first.QueryErrors, second.QueryErrors)
	}
	if first.RunID == second.RunID {
		t.Error("Expected a new run id per cycle")
	}
	assertStatus(t, rec, types.CheckCanQuery, types.StatusOK)
}

func TestRunDefaultCatalogue(t *testing.T) {
	in := testInstance()
	in.CollectResUsage = false
	rec := sink.NewRecorder()
	conn := newFakeConn(nil)

	c, err := New(in, &fakeConnector{conn: conn}, rec, WithLogger(discardLogger()), WithClock(fixedClock))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.QueriesRun != len(queries.DefaultQueries) {
		t.Errorf("Expected %d queries, got %d", len(queries.DefaultQueries), res.QueriesRun)
	}
	// the fake returns no rows for anything
	if res.QueryErrors != res.QueriesRun {
		t.Errorf("Expected every empty query to count, got %d", res.QueryErrors)
	}
}

func containsTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}
