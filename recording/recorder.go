// Package recording persists timing snapshots into a SQLite database, as a
// structured complement to the plain-text reports in the debug directory.
package recording

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// A Recorder is a backend that can record and store structured debug data.
type Recorder interface {
	// CreateTable creates a new table shaped after the sample entry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers a same-type entry for a table that already
	// exists.
	InsertData(tableName string, entry any)

	// ListTables returns a slice containing the names of all tables.
	ListTables() []string

	// Flush writes all buffered entries into the database.
	Flush()

	// Close flushes and releases the database.
	Close() error
}

// A TimingEntry is one row of persisted timing statistics. Sessions insert
// one entry per operation every time they flush a report.
type TimingEntry struct {
	Session       string
	Operation     string
	CallCount     uint64
	TotalMillis   float64
	AverageMillis float64
	RecordedAt    string
}

// TimingTable is the conventional table name for TimingEntry rows.
const TimingTable = "timings"

// NewSQLiteRecorder creates a Recorder backed by a SQLite database at
// path + ".sqlite3". An empty path picks a fresh xid-suffixed name. The
// recorder refuses to reuse an existing file and registers an exit hook that
// flushes buffered entries.
func NewSQLiteRecorder(path string) *SQLiteRecorder {
	w := &SQLiteRecorder{
		dbName:    path,
		batchSize: 1024,
		tables:    make(map[string]*table),
	}

	w.init()

	atexit.Register(w.Flush)

	return w
}

// NewSQLiteRecorderWithDB creates a Recorder on an already-open database.
func NewSQLiteRecorderWithDB(db *sql.DB) *SQLiteRecorder {
	w := &SQLiteRecorder{
		DB:        db,
		batchSize: 1024,
		tables:    make(map[string]*table),
	}

	atexit.Register(w.Flush)

	return w
}

type table struct {
	structType reflect.Type
	entries    []any
}

// SQLiteRecorder is the SQLite-backed Recorder implementation. The embedded
// DB is exported so callers and tests can run ad-hoc queries against the
// recorded data.
type SQLiteRecorder struct {
	*sql.DB

	dbName     string
	tables     map[string]*table
	batchSize  int
	entryCount int
}

func (r *SQLiteRecorder) init() {
	if r.dbName == "" {
		r.dbName = "debugkit_recording_" + xid.New().String()
	}

	filename := r.dbName + ".sqlite3"

	_, err := os.Stat(filename)
	if err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	// Open is lazy; connect now so the database file exists and a later
	// recorder on the same path hits the exists check above.
	if err := db.Ping(); err != nil {
		panic(err)
	}

	r.DB = db
}

func (r *SQLiteRecorder) isAllowedType(kind reflect.Kind) bool {
	switch kind {
	case
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
		reflect.Float32,
		reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func (r *SQLiteRecorder) checkStructFields(entry any) error {
	types := reflect.TypeOf(entry)

	for i := 0; i < types.NumField(); i++ {
		field := types.Field(i)

		if !r.isAllowedType(field.Type.Kind()) {
			return errors.New(
				"entry fields must be scalars or strings")
		}
	}

	return nil
}

func (r *SQLiteRecorder) CreateTable(tableName string, sampleEntry any) {
	err := r.checkStructFields(sampleEntry)
	if err != nil {
		panic(err)
	}

	n := structs.Names(sampleEntry)
	fields := strings.Join(n, ", \n\t")

	createTableSQL := `CREATE TABLE ` + tableName +
		` (` + "\n\t" + fields + "\n" + `);`
	r.mustExecute(createTableSQL)

	r.tables[tableName] = &table{
		structType: reflect.TypeOf(sampleEntry),
		entries:    []any{},
	}
}

func (r *SQLiteRecorder) InsertData(tableName string, entry any) {
	table, exists := r.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	table.entries = append(table.entries, entry)

	r.entryCount++
	if r.entryCount >= r.batchSize {
		r.Flush()
	}
}

func (r *SQLiteRecorder) ListTables() []string {
	tables := make([]string, 0, len(r.tables))
	for name := range r.tables {
		tables = append(tables, name)
	}

	return tables
}

func (r *SQLiteRecorder) Flush() {
	if r.entryCount == 0 {
		return
	}

	r.mustExecute("BEGIN TRANSACTION")
	defer r.mustExecute("COMMIT TRANSACTION")

	for tableName, table := range r.tables {
		if len(table.entries) == 0 {
			continue
		}

		statement := r.prepareStatement(tableName, table.entries[0])

		for _, entry := range table.entries {
			values := []any{}

			fields := reflect.ValueOf(entry)
			for i := 0; i < fields.NumField(); i++ {
				values = append(values,
					fields.Field(i).Interface())
			}

			_, err := statement.Exec(values...)
			if err != nil {
				panic(err)
			}
		}

		table.entries = nil

		statement.Close()
	}

	r.entryCount = 0
}

func (r *SQLiteRecorder) Close() error {
	r.Flush()

	return r.DB.Close()
}

func (r *SQLiteRecorder) mustExecute(query string) sql.Result {
	res, err := r.Exec(query)
	if err != nil {
		panic(fmt.Errorf("failed to execute %q: %w", query, err))
	}

	return res
}

func (r *SQLiteRecorder) prepareStatement(
	tableName string,
	sampleEntry any,
) *sql.Stmt {
	n := structs.Names(sampleEntry)
	for i := 0; i < len(n); i++ {
		n[i] = "?"
	}

	placeholder := "(" + strings.Join(n, ", ") + ")"
	sqlStr := "INSERT INTO " + tableName + " VALUES " + placeholder

	stmt, err := r.Prepare(sqlStr)
	if err != nil {
		panic(err)
	}

	return stmt
}
