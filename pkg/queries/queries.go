// Package queries holds the Teradata query catalogue and the manager that
// turns query rows into metrics.
package queries

// Class groups queries that share row handling rules
type Class string

const (
	ClassDefault Class = ""

	// ClassResourceUsage rows start with a recollection timestamp that must
	// be checked for freshness before the row is trusted.
	ClassResourceUsage Class = "resource_usage"
)

// ColumnType is how a result column is mapped
type ColumnType string

const (
	ColumnTag            ColumnType = "tag"
	ColumnGauge          ColumnType = "gauge"
	ColumnMonotonicCount ColumnType = "monotonic_count"
	ColumnRate           ColumnType = "rate"
	ColumnSource         ColumnType = "source" // read by validation, never submitted
)

// DatabasePlaceholder is replaced with the configured database name
const DatabasePlaceholder = "{}"

// Column maps one result column
type Column struct {
	Name string
	Type ColumnType
}

// Query is one entry of the catalogue
type Query struct {
	Name    string
	SQL     string
	Class   Class
	Columns []Column
}

// DefaultQueries run on every cycle
var DefaultQueries = []Query{
	{
		Name: "disk_space",
		SQL: "SELECT DatabaseName, AccountName, TableName, SUM(CurrentPerm), SUM(PeakPerm), SUM(MaxPerm) " +
			"FROM DBC.AllSpaceV WHERE DatabaseName = '{}' GROUP BY DatabaseName, AccountName, TableName",
		Columns: []Column{
			{Name: "td_database", Type: ColumnTag},
			{Name: "td_account", Type: ColumnTag},
			{Name: "td_table", Type: ColumnTag},
			{Name: "disk_space.curr_perm", Type: ColumnGauge},
			{Name: "disk_space.peak_perm", Type: ColumnGauge},
			{Name: "disk_space.max_perm", Type: ColumnGauge},
		},
	},
	{
		Name: "amp_usage",
		SQL: "SELECT AccountName, UserName, SUM(CpuTime), SUM(DiskIO) " +
			"FROM DBC.AMPUsageV GROUP BY AccountName, UserName",
		Columns: []Column{
			{Name: "td_account", Type: ColumnTag},
			{Name: "td_user", Type: ColumnTag},
			{Name: "amp.cpu_time", Type: ColumnMonotonicCount},
			{Name: "amp.disk_io", Type: ColumnMonotonicCount},
		},
	},
}

// ResourceUsageQueries run when collect_res_usage is enabled. They require
// SPMA resource usage logging on the server.
var ResourceUsageQueries = []Query{
	{
		Name:  "res_usage",
		Class: ClassResourceUsage,
		SQL: "SELECT TheTimestamp, NodeID, CPUUServ, CPUUExec, CPUIoWait, CPUIdle, " +
			"FileLockBlocks, FileLockDeadlocks, MemFreeKB, NetMsgs " +
			"FROM DBC.ResSpmaView WHERE TheDate = CURRENT_DATE " +
			"AND TheTimestamp = (SELECT MAX(TheTimestamp) FROM DBC.ResSpmaView)",
		Columns: []Column{
			{Name: "timestamp", Type: ColumnSource},
			{Name: "td_node", Type: ColumnTag},
			{Name: "cpu.user_service", Type: ColumnGauge},
			{Name: "cpu.user_exec", Type: ColumnGauge},
			{Name: "cpu.io_wait", Type: ColumnGauge},
			{Name: "cpu.idle", Type: ColumnGauge},
			{Name: "file_lock.blocks", Type: ColumnGauge},
			{Name: "file_lock.deadlocks", Type: ColumnGauge},
			{Name: "mem.free", Type: ColumnGauge},
			{Name: "net.messages", Type: ColumnRate},
		},
	},
}

// Build returns a fresh copy of the catalogue for one check instance
func Build(collectResUsage bool) []Query {
	list := make([]Query, 0, len(DefaultQueries)+len(ResourceUsageQueries))
	list = append(list, cloneAll(DefaultQueries)...)
	if collectResUsage {
		list = append(list, cloneAll(ResourceUsageQueries)...)
	}
	return list
}

func cloneAll(in []Query) []Query {
	out := make([]Query, len(in))
	for i, q := range in {
		q.Columns = append([]Column(nil), q.Columns...)
		out[i] = q
	}
	return out
}
