package queries

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gravito-framework/quasar-teradata/pkg/db"
	"github.com/gravito-framework/quasar-teradata/pkg/types"
)

type captureSubmitter struct {
	metrics []types.Metric
}

func (c *captureSubmitter) SubmitMetric(m types.Metric) {
	c.metrics = append(c.metrics, m)
}

type sliceRows struct {
	rows []db.Row
	pos  int
}

func (s *sliceRows) Next() bool {
	if s.pos >= len(s.rows) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceRows) Row() db.Row {
	return s.rows[s.pos-1]
}

func runner(results map[string][]db.Row, failures map[string]error) QueryFunc {
	return func(_ context.Context, q Query) (Rows, error) {
		if err := failures[q.Name]; err != nil {
			return nil, err
		}
		return &sliceRows{rows: results[q.Name]}, nil
	}
}

func TestBuild(t *testing.T) {
	base := Build(false)
	if len(base) != len(DefaultQueries) {
		t.Errorf("Expected %d default queries, got %d", len(DefaultQueries), len(base))
	}
	for _, q := range base {
		if q.Class == ClassResourceUsage {
			t.Errorf("Resource usage query %s included without collect_res_usage", q.Name)
		}
	}

	full := Build(true)
	if len(full) != len(DefaultQueries)+len(ResourceUsageQueries) {
		t.Errorf("Expected resource usage queries to be appended, got %d", len(full))
	}
	if full[len(full)-1].Class != ClassResourceUsage {
		t.Error("Expected last query to be resource usage")
	}

	// Mutating a built list must not touch the catalogue
	full[0].Columns[0].Name = "mutated"
	if DefaultQueries[0].Columns[0].Name == "mutated" {
		t.Error("Build aliased the catalogue columns")
	}
}

func TestCompileCatalogue(t *testing.T) {
	m := NewManager(Build(true), &captureSubmitter{})
	if err := m.Compile(); err != nil {
		t.Fatalf("Catalogue failed to compile: %v", err)
	}
}

func TestCompileErrors(t *testing.T) {
	gauge := []Column{{Name: "value", Type: ColumnGauge}}

	tests := []struct {
		name    string
		queries []Query
		want    string
	}{
		{"missing name", []Query{{SQL: "SELECT 1", Columns: gauge}}, "name is required"},
		{"missing sql", []Query{{Name: "q", Columns: gauge}}, "SQL is required"},
		{"no columns", []Query{{Name: "q", SQL: "SELECT 1"}}, "at least one column"},
		{"duplicate", []Query{
			{Name: "q", SQL: "SELECT 1", Columns: gauge},
			{Name: "q", SQL: "SELECT 2", Columns: gauge},
		}, "duplicate name"},
		{"unknown type", []Query{{Name: "q", SQL: "SELECT 1", Columns: []Column{{Name: "v", Type: "histogram"}}}}, "unknown type"},
		{"only tags", []Query{{Name: "q", SQL: "SELECT 1", Columns: []Column{{Name: "t", Type: ColumnTag}}}}, "no metric columns"},
		{"resource usage without timestamp", []Query{{Name: "q", SQL: "SELECT 1", Class: ClassResourceUsage, Columns: gauge}}, "source timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewManager(tt.queries, &captureSubmitter{}).Compile()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestExecuteBeforeCompile(t *testing.T) {
	m := NewManager(Build(false), &captureSubmitter{})
	if _, err := m.Execute(context.Background(), runner(nil, nil), nil, nil); !errors.Is(err, ErrNotCompiled) {
		t.Errorf("Expected ErrNotCompiled, got %v", err)
	}
}

func TestExecuteMapsRows(t *testing.T) {
	sub := &captureSubmitter{}
	m := NewManager([]Query{{
		Name: "disk_space",
		SQL:  "SELECT ...",
		Columns: []Column{
			{Name: "td_database", Type: ColumnTag},
			{Name: "disk_space.curr_perm", Type: ColumnGauge},
			{Name: "disk_space.max_perm", Type: ColumnGauge},
			{Name: "amp.cpu_time", Type: ColumnMonotonicCount},
		},
	}}, sub)
	m.SetTags([]string{"td_env:dev"})
	if err := m.Compile(); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	results := map[string][]db.Row{
		"disk_space": {
			{"AdventureWorksDW  ", int64(1024), nil, "12.5"},
			{},
		},
	}

	var handled []error
	onError := func(err error) error {
		handled = append(handled, err)
		return err
	}
	n, err := m.Execute(context.Background(), runner(results, nil), onError, func(err error) {
		handled = append(handled, err)
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 query attempted, got %d", n)
	}
	if len(handled) != 0 {
		t.Errorf("Expected no errors, got %v", handled)
	}

	// max_perm is NULL and skipped; the empty row is ignored
	if len(sub.metrics) != 2 {
		t.Fatalf("Expected 2 metrics, got %d: %+v", len(sub.metrics), sub.metrics)
	}

	gauge := sub.metrics[0]
	if gauge.Name != "teradata.disk_space.curr_perm" || gauge.Value != 1024 || gauge.Type != types.MetricGauge {
		t.Errorf("Unexpected gauge %+v", gauge)
	}
	expectedTags := []string{"td_env:dev", "td_database:AdventureWorksDW"}
	if strings.Join(gauge.Tags, ",") != strings.Join(expectedTags, ",") {
		t.Errorf("Expected tags %v, got %v", expectedTags, gauge.Tags)
	}

	count := sub.metrics[1]
	if count.Name != "teradata.amp.cpu_time" || count.Value != 12.5 || count.Type != types.MetricMonotonicCount {
		t.Errorf("Unexpected count %+v", count)
	}
}

func TestExecuteRoutesFailures(t *testing.T) {
	sub := &captureSubmitter{}
	gauge := []Column{{Name: "value", Type: ColumnGauge}}
	m := NewManager([]Query{
		{Name: "broken", SQL: "SELECT 1", Columns: gauge},
		{Name: "wide", SQL: "SELECT 1, 2", Columns: gauge},
		{Name: "garbage", SQL: "SELECT 'x'", Columns: gauge},
		{Name: "ok", SQL: "SELECT 3", Columns: gauge},
	}, sub)
	if err := m.Compile(); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	results := map[string][]db.Row{
		"wide":    {{int64(1), int64(2)}},
		"garbage": {{"not-a-number"}},
		"ok":      {{int64(3)}},
	}
	failures := map[string]error{"broken": errors.New("connection reset")}

	var handled, skipped []error
	onError := func(err error) error {
		handled = append(handled, err)
		return err
	}
	onRowError := func(err error) {
		skipped = append(skipped, err)
	}
	n, _ := m.Execute(context.Background(), runner(results, failures), onError, onRowError)

	if n != 4 {
		t.Errorf("Expected 4 queries attempted, got %d", n)
	}
	if len(handled) != 1 || !strings.Contains(handled[0].Error(), "query broken: connection reset") {
		t.Fatalf("Expected only the broken query to fail, got %v", handled)
	}
	if len(skipped) != 2 {
		t.Fatalf("Expected 2 skipped rows, got %d: %v", len(skipped), skipped)
	}
	if !strings.Contains(skipped[0].Error(), "query wide: row has 2 columns, expected 1") {
		t.Errorf("Unexpected first row error %v", skipped[0])
	}
	if !strings.Contains(skipped[1].Error(), "query garbage: column value") {
		t.Errorf("Unexpected second row error %v", skipped[1])
	}
	if len(sub.metrics) != 1 || sub.metrics[0].Value != 3 {
		t.Errorf("Expected only the ok query metric, got %+v", sub.metrics)
	}
}

func TestExecuteSkipsBadRowsOnly(t *testing.T) {
	sub := &captureSubmitter{}
	m := NewManager([]Query{{
		Name: "disk_space",
		SQL:  "SELECT ...",
		Columns: []Column{
			{Name: "td_database", Type: ColumnTag},
			{Name: "disk_space.curr_perm", Type: ColumnGauge},
			{Name: "disk_space.max_perm", Type: ColumnGauge},
		},
	}}, sub)
	if err := m.Compile(); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	results := map[string][]db.Row{
		"disk_space": {
			{"first", int64(1), int64(10)},
			{"broken", int64(2), "n/a"},
			{"last", int64(3), int64(30)},
		},
	}

	rowErrors := 0
	_, err := m.Execute(context.Background(), runner(results, nil), func(err error) error {
		t.Errorf("Unexpected query error %v", err)
		return err
	}, func(error) { rowErrors++ })
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if rowErrors != 1 {
		t.Errorf("Expected 1 row error, got %d", rowErrors)
	}

	// Nothing from the broken row, not even its valid curr_perm
	if len(sub.metrics) != 4 {
		t.Fatalf("Expected 4 metrics, got %d: %+v", len(sub.metrics), sub.metrics)
	}
	for _, metric := range sub.metrics {
		for _, tag := range metric.Tags {
			if tag == "td_database:broken" {
				t.Errorf("Metric from a skipped row was submitted: %+v", metric)
			}
		}
	}
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		in      any
		want    float64
		wantErr bool
	}{
		{int64(42), 42, false},
		{int32(-7), -7, false},
		{uint16(3), 3, false},
		{float32(1.5), 1.5, false},
		{2.25, 2.25, false},
		{" 10.5 ", 10.5, false},
		{[]byte("8"), 8, false},
		{true, 1, false},
		{"abc", 0, true},
		{struct{}{}, 0, true},
	}

	for _, tt := range tests {
		got, err := ToFloat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ToFloat(%#v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ToFloat(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
