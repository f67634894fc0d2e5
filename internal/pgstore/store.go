package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/fleetmetry/fleetmetry/internal/faults"
	"github.com/fleetmetry/fleetmetry/internal/logging"
)

// Store executes read-only queries against the relational warehouse with the
// tenant predicate and identifier rewrites applied before execution.
type Store struct {
	db     *sql.DB
	schema string
	logger zerolog.Logger
}

// QueryOptions carries the optional knobs of an execute call.
type QueryOptions struct {
	Limit  int
	Offset int
	// Format selects the result shape: "select" (default), "count" or
	// "exists".
	Format string
	// Parameters fills the query's positional placeholders ($1, $2, ...).
	Parameters []any
}

// QueryResult is the outcome of ExecuteQuery in whichever shape the format
// asked for.
type QueryResult struct {
	Rows   []map[string]any
	Count  int64
	Exists bool
	Format string
}

// ColumnInfo describes one column of a warehouse table.
type ColumnInfo struct {
	Name     string  `json:"name"`
	DataType string  `json:"dataType"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default"`
}

// TableInfo is the column inventory of a single table.
type TableInfo struct {
	TableName string       `json:"tableName"`
	Columns   []ColumnInfo `json:"columns"`
}

// ForeignKey is one declared reference between warehouse tables.
type ForeignKey struct {
	FromTable      string `json:"from_table"`
	FromColumn     string `json:"from_column"`
	ToTable        string `json:"to_table"`
	ToColumn       string `json:"to_column"`
	ConstraintName string `json:"constraint_name"`
}

// RelationshipSummary aggregates the foreign-key inventory.
type RelationshipSummary struct {
	TotalForeignKeys int `json:"totalForeignKeys"`
	ConnectedTables  int `json:"connectedTables"`
}

// Relationships is the full declared-relationship report.
type Relationships struct {
	ExplicitRelationships []ForeignKey        `json:"explicitRelationships"`
	Summary               RelationshipSummary `json:"summary"`
}

// EquipmentSnapshot is the latest recorded state of one piece of equipment.
type EquipmentSnapshot struct {
	LicensePlate string   `json:"license_plate"`
	Mileage      *float64 `json:"mileage"`
	EngineHours  *float64 `json:"engine_hours"`
	MotoHours    *float64 `json:"moto_hours"`
	Managers     *string  `json:"managers"`
	Project      *string  `json:"project"`
	Brand        *string  `json:"brand"`
	Model        *string  `json:"model"`
	Found        bool     `json:"found"`
	Error        string   `json:"error,omitempty"`
}

// Open connects to the warehouse. The schema names the namespace the shared
// tables live in.
func Open(url, schema string) (*Store, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, faults.Wrap(faults.SourceUnavailable, err, "open postgres")
	}
	return New(db, schema), nil
}

// New wraps an existing handle; tests inject a mock through it.
func New(db *sql.DB, schema string) *Store {
	if schema == "" {
		schema = "common_data"
	}
	return &Store{db: db, schema: schema, logger: logging.Component("pgstore")}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return faults.Wrap(faults.SourceUnavailable, err, "ping postgres")
	}
	return nil
}

// ExecuteQuery runs a read query with tenant scoping, id rewriting and the
// requested result shape. Anything that is not a SELECT or WITH statement is
// rejected before touching the database.
func (s *Store) ExecuteQuery(ctx context.Context, query string, opts QueryOptions, workspace string) (*QueryResult, error) {
	if !IsReadQuery(query) {
		return nil, faults.New(faults.NotAReadQuery, "only SELECT queries are allowed")
	}

	rewritten := RewriteHexIDs(InjectTenantFilter(query, workspace))
	if opts.Limit > 0 {
		rewritten = EnsureLimit(rewritten, opts.Limit)
	}
	if opts.Offset > 0 {
		rewritten = strings.TrimRight(rewritten, " ;") + fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	format := opts.Format
	if format == "" {
		format = "select"
	}
	s.logger.Debug().Str("format", format).Str("query", rewritten).Msg("execute query")

	switch format {
	case "count":
		// a query that counts on its own runs as-is; wrapping it would
		// count its single result row
		countQuery := rewritten
		if !HasCountAggregate(rewritten) {
			countQuery = CountWrap(rewritten)
		}
		rows, err := s.db.QueryContext(ctx, countQuery, opts.Parameters...)
		if err != nil {
			return nil, faults.Wrap(faults.QueryExecutionFailed, err, "count query")
		}
		defer rows.Close()
		out, err := rowsToMaps(rows)
		if err != nil {
			return nil, err
		}
		return &QueryResult{Count: countValue(out), Format: format}, nil
	case "exists":
		existsQuery := rewritten
		if !HasExistsPredicate(rewritten) {
			existsQuery = ExistsWrap(rewritten)
		}
		var exists bool
		if err := s.db.QueryRowContext(ctx, existsQuery, opts.Parameters...).Scan(&exists); err != nil {
			return nil, faults.Wrap(faults.QueryExecutionFailed, err, "exists query")
		}
		return &QueryResult{Exists: exists, Format: format}, nil
	case "select":
		rows, err := s.db.QueryContext(ctx, rewritten, opts.Parameters...)
		if err != nil {
			return nil, faults.Wrap(faults.QueryExecutionFailed, err, "select query")
		}
		defer rows.Close()
		out, err := rowsToMaps(rows)
		if err != nil {
			return nil, err
		}
		return &QueryResult{Rows: out, Format: format}, nil
	default:
		return nil, faults.New(faults.InvalidArgument, "unknown result format %q", format)
	}
}

// SchemaInfo lists the warehouse's base tables.
func (s *Store) SchemaInfo(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name
		 FROM information_schema.tables
		 WHERE table_schema = $1
		   AND table_type = 'BASE TABLE'
		 ORDER BY table_name`, s.schema)
	if err != nil {
		return nil, faults.Wrap(faults.QueryExecutionFailed, err, "list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, faults.Wrap(faults.QueryExecutionFailed, err, "scan table name")
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// TableInfo describes one table's columns in declaration order.
func (s *Store) TableInfo(ctx context.Context, table string) (*TableInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT column_name, data_type, is_nullable, column_default
		 FROM information_schema.columns
		 WHERE table_schema = $1
		   AND table_name = $2
		 ORDER BY ordinal_position`, s.schema, table)
	if err != nil {
		return nil, faults.Wrap(faults.QueryExecutionFailed, err, "describe %s", table)
	}
	defer rows.Close()

	info := &TableInfo{TableName: table}
	for rows.Next() {
		var (
			name, dataType, nullable string
			def                      sql.NullString
		)
		if err := rows.Scan(&name, &dataType, &nullable, &def); err != nil {
			return nil, faults.Wrap(faults.QueryExecutionFailed, err, "scan column of %s", table)
		}
		col := ColumnInfo{Name: name, DataType: dataType, Nullable: nullable == "YES"}
		if def.Valid {
			col.Default = &def.String
		}
		info.Columns = append(info.Columns, col)
	}
	return info, rows.Err()
}

// SampleRows returns up to limit rows from a table, optionally projected to
// named columns, scoped to the workspace.
func (s *Store) SampleRows(ctx context.Context, table string, limit int, columns []string, workspace string) ([]map[string]any, error) {
	projection := "*"
	if len(columns) > 0 {
		projection = strings.Join(columns, ", ")
	}
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf("SELECT %s FROM %s", projection, table)
	query = InjectTenantFilter(query, workspace) + " LIMIT " + strconv.Itoa(limit)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, faults.Wrap(faults.QueryExecutionFailed, err, "sample %s", table)
	}
	defer rows.Close()
	return rowsToMaps(rows)
}

// AnalyzeRelationships inventories the declared foreign keys of the
// warehouse schema.
func (s *Store) AnalyzeRelationships(ctx context.Context) (*Relationships, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tc.table_name   as from_table,
		        kcu.column_name as from_column,
		        ccu.table_name  as to_table,
		        ccu.column_name as to_column,
		        tc.constraint_name
		 FROM information_schema.table_constraints AS tc
		          JOIN information_schema.key_column_usage AS kcu
		               ON tc.constraint_name = kcu.constraint_name
		          JOIN information_schema.constraint_column_usage AS ccu
		               ON ccu.constraint_name = tc.constraint_name
		 WHERE tc.constraint_type = 'FOREIGN KEY'
		   AND tc.table_schema = $1`, s.schema)
	if err != nil {
		return nil, faults.Wrap(faults.QueryExecutionFailed, err, "analyze relationships")
	}
	defer rows.Close()

	report := &Relationships{ExplicitRelationships: []ForeignKey{}}
	connected := map[string]bool{}
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn, &fk.ConstraintName); err != nil {
			return nil, faults.Wrap(faults.QueryExecutionFailed, err, "scan foreign key")
		}
		report.ExplicitRelationships = append(report.ExplicitRelationships, fk)
		connected[fk.FromTable] = true
		connected[fk.ToTable] = true
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.QueryExecutionFailed, err, "read foreign keys")
	}
	report.Summary = RelationshipSummary{
		TotalForeignKeys: len(report.ExplicitRelationships),
		ConnectedTables:  len(connected),
	}
	return report, nil
}

// Equipment returns the latest telemetry snapshot for a license plate. A
// missing plate yields Found=false rather than an error.
func (s *Store) Equipment(ctx context.Context, licensePlate, workspace string) (*EquipmentSnapshot, error) {
	plate := strings.ToUpper(strings.TrimSpace(licensePlate))

	query := fmt.Sprintf(`SELECT
		    license_plate_number,
		    MAX(mileage) as current_mileage,
		    MAX(enginehours) as current_enginehours,
		    MAX(motohours) as current_motohours,
		    managers,
		    project,
		    brand,
		    model
		FROM %s.daily_history_wfd
		WHERE license_plate_number = $1`, s.schema)
	args := []any{plate}
	if workspace != "" {
		query += " AND workspace_id = $2"
		args = append(args, DeterministicUUID(workspace))
	}
	query += `
		GROUP BY license_plate_number, managers, project, brand, model
		ORDER BY MAX(stat_date) DESC
		LIMIT 1`

	snap := &EquipmentSnapshot{LicensePlate: plate}
	row := s.db.QueryRowContext(ctx, query, args...)
	err := row.Scan(&snap.LicensePlate, &snap.Mileage, &snap.EngineHours, &snap.MotoHours,
		&snap.Managers, &snap.Project, &snap.Brand, &snap.Model)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		snap.Error = fmt.Sprintf("No equipment data found for %s", plate)
		return snap, nil
	case err != nil:
		return nil, faults.Wrap(faults.QueryExecutionFailed, err, "equipment lookup for %s", plate)
	}
	snap.Found = true
	return snap, nil
}

// rowsToMaps materializes a result set as JSON-friendly maps, converting
// NUMERIC values to floats and UUID/byte values to strings.
// countValue pulls the count out of the first result row, preferring the
// count and total columns, then whatever single value the row holds.
func countValue(rows []map[string]any) int64 {
	if len(rows) == 0 {
		return 0
	}
	row := rows[0]
	if v, ok := row["count"]; ok {
		return toInt64(v)
	}
	if v, ok := row["total"]; ok {
		return toInt64(v)
	}
	for _, v := range row {
		return toInt64(v)
	}
	return 0
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, faults.Wrap(faults.QueryExecutionFailed, err, "read columns")
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, faults.Wrap(faults.QueryExecutionFailed, err, "read column types")
	}

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, faults.Wrap(faults.QueryExecutionFailed, err, "scan row")
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = cleanValue(values[i], types[i].DatabaseTypeName())
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.QueryExecutionFailed, err, "read rows")
	}
	return out, nil
}

func cleanValue(v any, dbType string) any {
	switch val := v.(type) {
	case []byte:
		s := string(val)
		switch strings.ToUpper(dbType) {
		case "NUMERIC", "DECIMAL":
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return s
	default:
		return v
	}
}
