// Package record persists per-tick scheduler reports to SQLite so runs can be
// compared and exported after the fact.
package record

import (
	"database/sql"
	"fmt"
	"io"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"

	"github.com/Iron-Ham/ticksched/internal/errors"
	"github.com/Iron-Ham/ticksched/internal/logging"
	"github.com/Iron-Ham/ticksched/internal/scheduler"
)

// ErrNoRun is returned by Record before BeginRun.
var ErrNoRun = errors.New("no run started")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	label      TEXT NOT NULL,
	config     TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ticks (
	run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	tick        INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	serial      INTEGER NOT NULL,
	parallel    INTEGER NOT NULL,
	rejected    INTEGER NOT NULL,
	caller_runs INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	retried     INTEGER NOT NULL,
	secondary   INTEGER NOT NULL,
	forwarded   INTEGER NOT NULL,
	deferred    INTEGER NOT NULL,
	redeemed    INTEGER NOT NULL,
	mspt_ns     INTEGER NOT NULL,
	tps         REAL NOT NULL,
	PRIMARY KEY (run_id, tick)
) WITHOUT ROWID;
`

const insertTick = `
INSERT OR REPLACE INTO ticks (
	run_id, tick, duration_ns, serial, parallel, rejected, caller_runs,
	failed, retried, secondary, forwarded, deferred, redeemed, mspt_ns, tps
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Run describes one recorded run.
type Run struct {
	ID        int64     `json:"id"`
	Label     string    `json:"label"`
	Config    string    `json:"config,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Ticks     int       `json:"ticks"`
}

// Row is one recorded tick.
type Row struct {
	Tick       uint64        `json:"tick"`
	Duration   time.Duration `json:"duration_ns"`
	Serial     int           `json:"serial"`
	Parallel   int           `json:"parallel"`
	Rejected   int           `json:"rejected"`
	CallerRuns int           `json:"caller_runs"`
	Failed     int           `json:"failed"`
	Retried    int           `json:"retried"`
	Secondary  int           `json:"secondary"`
	Forwarded  int           `json:"forwarded"`
	Deferred   int           `json:"deferred"`
	Redeemed   int           `json:"redeemed"`
	MSPT       time.Duration `json:"mspt_ns"`
	TPS        float64       `json:"tps"`
}

// Aggregate summarizes a run's ticks.
type Aggregate struct {
	Ticks       int           `json:"ticks"`
	AvgDuration time.Duration `json:"avg_duration_ns"`
	MaxDuration time.Duration `json:"max_duration_ns"`
	Serial      int           `json:"serial"`
	Parallel    int           `json:"parallel"`
	Failed      int           `json:"failed"`
	Deferred    int           `json:"deferred"`
}

// Store is a SQLite-backed tick history. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt

	mu  sync.Mutex
	run int64
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if err := configure(db, path); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	insert, err := db.Prepare(insertTick)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "prepare insert")
	}
	return &Store{db: db, insert: insert}, nil
}

func configure(db *sql.DB, path string) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to execute %s: %w", p, err)
		}
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return errors.Join(s.insert.Close(), s.db.Close())
}

// BeginRun starts a new run. Subsequent Record calls attach to it.
func (s *Store) BeginRun(label, config string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO runs (label, config, started_at) VALUES (?, ?, ?)",
		label, config, time.Now().UnixNano(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "begin run")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "begin run")
	}
	s.mu.Lock()
	s.run = id
	s.mu.Unlock()
	return id, nil
}

// CurrentRun returns the run Record writes to, or 0.
func (s *Store) CurrentRun() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// Record stores r under the current run. Recording the same tick twice
// replaces the earlier row.
func (s *Store) Record(r scheduler.TickReport) error {
	run := s.CurrentRun()
	if run == 0 {
		return ErrNoRun
	}
	_, err := s.insert.Exec(
		run, int64(r.Tick), int64(r.Duration),
		r.Serial, r.Parallel, r.Rejected, r.Drain.CallerRuns,
		r.Drain.Failed, r.Drain.Retried, r.Drain.Secondary,
		r.Forwarded, r.Deferred, r.Redeemed,
		int64(r.MSPT), r.TPS,
	)
	if err != nil {
		return errors.Wrapf(err, "record tick %d", r.Tick)
	}
	return nil
}

// Hook returns a tick callback that records every report and logs failures.
func (s *Store) Hook(logger *logging.Logger) func(scheduler.TickReport) {
	logger = logging.OrNop(logger).WithComponent("record")
	return func(r scheduler.TickReport) {
		if err := s.Record(r); err != nil {
			logger.Warn("failed to record tick", "tick", r.Tick, "error", err.Error())
		}
	}
}

// Runs lists recorded runs, newest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.label, r.config, r.started_at, COUNT(t.tick)
		FROM runs r LEFT JOIN ticks t ON t.run_id = r.id
		GROUP BY r.id
		ORDER BY r.id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started int64
		if err := rows.Scan(&r.ID, &r.Label, &r.Config, &started, &r.Ticks); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.StartedAt = time.Unix(0, started)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ticks returns the recorded ticks of run in tick order.
func (s *Store) Ticks(run int64) ([]Row, error) {
	rows, err := s.db.Query(`
		SELECT tick, duration_ns, serial, parallel, rejected, caller_runs,
		       failed, retried, secondary, forwarded, deferred, redeemed, mspt_ns, tps
		FROM ticks WHERE run_id = ? ORDER BY tick`, run)
	if err != nil {
		return nil, errors.Wrapf(err, "query run %d", run)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var tick, dur, mspt int64
		if err := rows.Scan(&tick, &dur, &r.Serial, &r.Parallel, &r.Rejected, &r.CallerRuns,
			&r.Failed, &r.Retried, &r.Secondary, &r.Forwarded, &r.Deferred, &r.Redeemed, &mspt, &r.TPS); err != nil {
			return nil, errors.Wrap(err, "scan tick")
		}
		r.Tick = uint64(tick)
		r.Duration = time.Duration(dur)
		r.MSPT = time.Duration(mspt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summarize aggregates the ticks of run.
func (s *Store) Summarize(run int64) (Aggregate, error) {
	var a Aggregate
	var avg float64
	var maxDur int64
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(AVG(duration_ns), 0), COALESCE(MAX(duration_ns), 0),
		       COALESCE(SUM(serial), 0), COALESCE(SUM(parallel), 0),
		       COALESCE(SUM(failed), 0), COALESCE(SUM(deferred), 0)
		FROM ticks WHERE run_id = ?`, run).
		Scan(&a.Ticks, &avg, &maxDur, &a.Serial, &a.Parallel, &a.Failed, &a.Deferred)
	if err != nil {
		return Aggregate{}, errors.Wrapf(err, "summarize run %d", run)
	}
	a.AvgDuration = time.Duration(avg)
	a.MaxDuration = time.Duration(maxDur)
	return a, nil
}

// export is the document Export writes.
type export struct {
	Run       Run       `json:"run"`
	Aggregate Aggregate `json:"aggregate"`
	Ticks     []Row     `json:"ticks"`
}

// Export writes run, its aggregate and every tick to w as JSON.
func (s *Store) Export(w io.Writer, run int64) error {
	runs, err := s.Runs()
	if err != nil {
		return err
	}
	doc := export{}
	found := false
	for _, r := range runs {
		if r.ID == run {
			doc.Run, found = r, true
			break
		}
	}
	if !found {
		return fmt.Errorf("run %d: %w", run, sql.ErrNoRows)
	}
	if doc.Aggregate, err = s.Summarize(run); err != nil {
		return err
	}
	if doc.Ticks, err = s.Ticks(run); err != nil {
		return err
	}

	data, err := sonnet.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encode export")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "write export")
	}
	return nil
}

// Delete removes run and its ticks.
func (s *Store) Delete(run int64) error {
	res, err := s.db.Exec("DELETE FROM runs WHERE id = ?", run)
	if err != nil {
		return errors.Wrapf(err, "delete run %d", run)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d: %w", run, sql.ErrNoRows)
	}
	s.mu.Lock()
	if s.run == run {
		s.run = 0
	}
	s.mu.Unlock()
	return nil
}
