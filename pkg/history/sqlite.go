package history

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
	"github.com/rs/xid"

	"github.com/argusci/argus/pkg/apierr"
)

// migration is one step of the numbered migration ladder; each applies in
// its own transaction and advances user_version atomically with its DDL,
// following the same "one version, one transaction" discipline as the
// teacher's prefixed, versioned bucket layout in pkg/task/storage.go.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE test_runs (
				id TEXT PRIMARY KEY,
				project TEXT NOT NULL,
				timestamp_ms INTEGER NOT NULL,
				git_commit TEXT,
				git_branch TEXT,
				config_hash TEXT,
				trigger TEXT NOT NULL,
				duration_ms INTEGER NOT NULL,
				passed INTEGER NOT NULL,
				failed INTEGER NOT NULL,
				skipped INTEGER NOT NULL,
				flaky INTEGER NOT NULL,
				status TEXT NOT NULL
			)`,
			`CREATE INDEX idx_test_runs_project_ts ON test_runs(project, timestamp_ms DESC)`,
			`CREATE INDEX idx_test_runs_project_status ON test_runs(project, status)`,
			`CREATE TABLE test_case_runs (
				id TEXT PRIMARY KEY,
				run_id TEXT NOT NULL REFERENCES test_runs(id) ON DELETE CASCADE,
				suite_id TEXT NOT NULL,
				case_name TEXT NOT NULL,
				status TEXT NOT NULL,
				duration_ms INTEGER NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 1,
				response_ms INTEGER NOT NULL DEFAULT 0,
				assertions INTEGER NOT NULL DEFAULT 0,
				error TEXT,
				snapshot BLOB,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX idx_case_runs_run_id ON test_case_runs(run_id)`,
			`CREATE INDEX idx_case_runs_suite_case ON test_case_runs(suite_id, case_name)`,
			`CREATE INDEX idx_case_runs_name_created ON test_case_runs(case_name, created_at DESC)`,
		},
	},
}

// SQLStore is the durable HistoryStore implementation: SQLite with WAL
// enabled, schema-versioned via a migration ladder tracked in
// PRAGMA user_version.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens (creating if absent) a durable store at path and
// brings it up to the latest migration.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", path))
	if err != nil {
		return nil, apierr.Wrap(apierr.DockerUnavailable, "opening history database", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return apierr.Wrap(apierr.ConfigError, "reading schema version", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return apierr.Wrap(apierr.ConfigError, "beginning migration transaction", err)
		}

		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return apierr.Wrap(apierr.ConfigError, fmt.Sprintf("applying migration %d", m.version), err)
			}
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			_ = tx.Rollback()
			return apierr.Wrap(apierr.ConfigError, fmt.Sprintf("marking migration %d", m.version), err)
		}
		if err := tx.Commit(); err != nil {
			return apierr.Wrap(apierr.ConfigError, fmt.Sprintf("committing migration %d", m.version), err)
		}
	}

	return nil
}

func (s *SQLStore) SaveRun(run TestRunRecord, cases []TestCaseRunRecord) error {
	if run.ID == "" {
		run.ID = xid.New().String()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apierr.Wrap(apierr.ConfigError, "beginning saveRun transaction", err)
	}

	_, err = tx.Exec(`INSERT INTO test_runs
		(id, project, timestamp_ms, git_commit, git_branch, config_hash, trigger, duration_ms, passed, failed, skipped, flaky, status)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Project, run.TimestampMS, run.GitCommit, run.GitBranch, run.ConfigHash,
		string(run.Trigger), run.DurationMS, run.Passed, run.Failed, run.Skipped, run.Flaky, string(run.Status))
	if err != nil {
		_ = tx.Rollback()
		return apierr.Wrap(apierr.ConfigError, "inserting run", err)
	}

	now := time.Now().UnixMilli()
	for _, c := range cases {
		if c.ID == "" {
			c.ID = xid.New().String()
		}
		_, err := tx.Exec(`INSERT INTO test_case_runs
			(id, run_id, suite_id, case_name, status, duration_ms, attempts, response_ms, assertions, error, snapshot, created_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			c.ID, run.ID, c.SuiteID, c.CaseName, string(c.Status), c.DurationMS, c.Attempts, c.ResponseMS, c.Assertions, c.Error, c.Snapshot, now)
		if err != nil {
			_ = tx.Rollback()
			return apierr.Wrap(apierr.ConfigError, "inserting case run", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierr.Wrap(apierr.ConfigError, "committing saveRun", err)
	}
	return nil
}

func (s *SQLStore) GetRuns(project string, filter RunFilter) (RunPage, error) {
	limit := clampLimit(filter.Limit)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	where := []string{"project = ?"}
	args := []interface{}{project}

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Days != nil {
		cutoff := time.Now().Add(-time.Duration(*filter.Days) * 24 * time.Hour).UnixMilli()
		where = append(where, "timestamp_ms >= ?")
		args = append(args, cutoff)
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countArgs := append([]interface{}{}, args...)
	if err := s.db.QueryRow("SELECT COUNT(*) FROM test_runs WHERE "+whereClause, countArgs...).Scan(&total); err != nil {
		return RunPage{}, apierr.Wrap(apierr.ConfigError, "counting runs", err)
	}

	queryArgs := append(args, limit, offset)
	rows, err := s.db.Query(`SELECT id, project, timestamp_ms, git_commit, git_branch, config_hash, trigger, duration_ms, passed, failed, skipped, flaky, status
		FROM test_runs WHERE `+whereClause+` ORDER BY timestamp_ms DESC LIMIT ? OFFSET ?`, queryArgs...)
	if err != nil {
		return RunPage{}, apierr.Wrap(apierr.ConfigError, "querying runs", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return RunPage{}, err
	}
	return RunPage{Runs: runs, Total: total}, nil
}

func scanRuns(rows *sql.Rows) ([]TestRunRecord, error) {
	var out []TestRunRecord
	for rows.Next() {
		var r TestRunRecord
		var gitCommit, gitBranch, configHash sql.NullString
		var trigger, status string
		if err := rows.Scan(&r.ID, &r.Project, &r.TimestampMS, &gitCommit, &gitBranch, &configHash,
			&trigger, &r.DurationMS, &r.Passed, &r.Failed, &r.Skipped, &r.Flaky, &status); err != nil {
			return nil, apierr.Wrap(apierr.ConfigError, "scanning run row", err)
		}
		r.GitCommit = gitCommit.String
		r.GitBranch = gitBranch.String
		r.ConfigHash = configHash.String
		r.Trigger = Trigger(trigger)
		r.Status = RunStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetRunByID(id string) (*TestRunRecord, []TestCaseRunRecord, error) {
	rows, err := s.db.Query(`SELECT id, project, timestamp_ms, git_commit, git_branch, config_hash, trigger, duration_ms, passed, failed, skipped, flaky, status
		FROM test_runs WHERE id = ?`, id)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.ConfigError, "querying run", err)
	}
	runs, err := scanRuns(rows)
	rows.Close()
	if err != nil {
		return nil, nil, err
	}
	if len(runs) == 0 {
		return nil, nil, apierr.New(apierr.ServiceNotFound, "run not found: "+id)
	}

	cases, err := s.GetCasesForRun(id)
	if err != nil {
		return nil, nil, err
	}
	return &runs[0], cases, nil
}

func (s *SQLStore) GetCasesForRun(runID string) ([]TestCaseRunRecord, error) {
	rows, err := s.db.Query(`SELECT id, run_id, suite_id, case_name, status, duration_ms, attempts, response_ms, assertions, error, snapshot
		FROM test_case_runs WHERE run_id = ? ORDER BY created_at ASC, rowid ASC`, runID)
	if err != nil {
		return nil, apierr.Wrap(apierr.ConfigError, "querying cases", err)
	}
	defer rows.Close()

	var out []TestCaseRunRecord
	for rows.Next() {
		var c TestCaseRunRecord
		var errText sql.NullString
		if err := rows.Scan(&c.ID, &c.RunID, &c.SuiteID, &c.CaseName, &c.Status, &c.DurationMS, &c.Attempts, &c.ResponseMS, &c.Assertions, &errText, &c.Snapshot); err != nil {
			return nil, apierr.Wrap(apierr.ConfigError, "scanning case row", err)
		}
		c.Error = errText.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetCaseHistory(caseName, project string, limit int, suiteID string) ([]TestCaseRunRecord, error) {
	limit = clampLimit(limit)

	query := `SELECT tc.id, tc.run_id, tc.suite_id, tc.case_name, tc.status, tc.duration_ms, tc.attempts, tc.response_ms, tc.assertions, tc.error, tc.snapshot
		FROM test_case_runs tc
		JOIN test_runs tr ON tr.id = tc.run_id
		WHERE tc.case_name = ? AND tr.project = ?`
	args := []interface{}{caseName, project}
	if suiteID != "" {
		query += " AND tc.suite_id = ?"
		args = append(args, suiteID)
	}
	query += " ORDER BY tr.timestamp_ms DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apierr.Wrap(apierr.ConfigError, "querying case history", err)
	}
	defer rows.Close()

	var out []TestCaseRunRecord
	for rows.Next() {
		var c TestCaseRunRecord
		var errText sql.NullString
		if err := rows.Scan(&c.ID, &c.RunID, &c.SuiteID, &c.CaseName, &c.Status, &c.DurationMS, &c.Attempts, &c.ResponseMS, &c.Assertions, &errText, &c.Snapshot); err != nil {
			return nil, apierr.Wrap(apierr.ConfigError, "scanning case history row", err)
		}
		c.Error = errText.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetRunsInDateRange(project string, from, to time.Time) ([]TestRunRecord, error) {
	rows, err := s.db.Query(`SELECT id, project, timestamp_ms, git_commit, git_branch, config_hash, trigger, duration_ms, passed, failed, skipped, flaky, status
		FROM test_runs WHERE project = ? AND timestamp_ms BETWEEN ? AND ? ORDER BY timestamp_ms ASC`,
		project, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, apierr.Wrap(apierr.ConfigError, "querying date range", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func (s *SQLStore) GetDistinctCaseNames(project string, suiteID string, limit int) ([]string, error) {
	query := `SELECT DISTINCT tc.case_name
		FROM test_case_runs tc
		JOIN test_runs tr ON tr.id = tc.run_id
		WHERE tr.project = ?`
	args := []interface{}{project}
	if suiteID != "" {
		query += " AND tc.suite_id = ?"
		args = append(args, suiteID)
	}
	query += " ORDER BY tc.case_name ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apierr.Wrap(apierr.ConfigError, "querying distinct case names", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apierr.Wrap(apierr.ConfigError, "scanning case name", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *SQLStore) Cleanup(project string, maxAge string, maxRuns int) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, apierr.Wrap(apierr.ConfigError, "beginning cleanup transaction", err)
	}

	deleted := 0

	if days, ok := maxAgeDays(maxAge); ok {
		cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
		res, err := tx.Exec("DELETE FROM test_runs WHERE project = ? AND timestamp_ms < ?", project, cutoff)
		if err != nil {
			_ = tx.Rollback()
			return 0, apierr.Wrap(apierr.ConfigError, "deleting aged runs", err)
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
	}

	if maxRuns > 0 {
		res, err := tx.Exec(`DELETE FROM test_runs WHERE project = ? AND id NOT IN (
			SELECT id FROM test_runs WHERE project = ? ORDER BY timestamp_ms DESC LIMIT ?)`,
			project, project, maxRuns)
		if err != nil {
			_ = tx.Rollback()
			return 0, apierr.Wrap(apierr.ConfigError, "deleting excess runs", err)
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, apierr.Wrap(apierr.ConfigError, "committing cleanup", err)
	}
	return deleted, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
