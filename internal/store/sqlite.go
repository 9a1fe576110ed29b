package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/promptwatch/visibility/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS brands (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	domain             TEXT NOT NULL,
	service_type       TEXT,
	location           TEXT,
	competitors        TEXT NOT NULL DEFAULT '[]',
	monthly_budget_usd REAL NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS brand_claims (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL REFERENCES brands(id),
	text       TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS brand_content (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL REFERENCES brands(id),
	title      TEXT,
	body       TEXT NOT NULL,
	url        TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS brand_chunks (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL,
	content_id TEXT NOT NULL REFERENCES brand_content(id),
	seq        INTEGER NOT NULL,
	text       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pipelines (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL,
	profile    TEXT NOT NULL,
	stages     TEXT NOT NULL DEFAULT '[]',
	status     TEXT NOT NULL DEFAULT 'running',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY,
	pipeline_id      TEXT,
	brand_id         TEXT NOT NULL,
	type             TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'queued',
	priority         INTEGER NOT NULL DEFAULT 0,
	payload          TEXT,
	result           TEXT,
	error            TEXT,
	retry_count      INTEGER NOT NULL DEFAULT 0,
	max_retries      INTEGER NOT NULL DEFAULT 3,
	depends_on       TEXT NOT NULL DEFAULT '[]',
	idempotency_key  TEXT,
	locked_by        TEXT,
	next_run_at      DATETIME NOT NULL,
	lease_expires_at DATETIME,
	created_at       DATETIME NOT NULL,
	started_at       DATETIME,
	completed_at     DATETIME
);

CREATE TABLE IF NOT EXISTS sample_results (
	id               TEXT PRIMARY KEY,
	brand_id         TEXT NOT NULL,
	job_id           TEXT NOT NULL,
	model            TEXT NOT NULL,
	provider         TEXT NOT NULL,
	prompt_key       TEXT NOT NULL,
	paraphrase_index INTEGER NOT NULL DEFAULT 0,
	response_text    TEXT,
	input_tokens     INTEGER NOT NULL DEFAULT 0,
	output_tokens    INTEGER NOT NULL DEFAULT 0,
	total_tokens     INTEGER NOT NULL DEFAULT 0,
	cost_usd         REAL NOT NULL DEFAULT 0,
	execution_ms     INTEGER NOT NULL DEFAULT 0,
	error            TEXT,
	created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scores (
	id                    TEXT PRIMARY KEY,
	brand_id              TEXT NOT NULL,
	engine_scope          TEXT NOT NULL DEFAULT 'all',
	prompt_sov            REAL NOT NULL DEFAULT 0,
	generative_appearance REAL NOT NULL DEFAULT 0,
	citation_authority    REAL NOT NULL DEFAULT 0,
	answer_quality        REAL NOT NULL DEFAULT 0,
	voice_presence        REAL NOT NULL DEFAULT 0,
	ai_traffic            REAL NOT NULL DEFAULT 0,
	ai_conversions        REAL NOT NULL DEFAULT 0,
	total_score           INTEGER NOT NULL DEFAULT 0,
	sample_count          INTEGER NOT NULL DEFAULT 0,
	calculated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id              TEXT PRIMARY KEY,
	brand_id        TEXT NOT NULL,
	job_id          TEXT NOT NULL,
	score_id        TEXT,
	status          TEXT NOT NULL DEFAULT 'generating',
	error           TEXT,
	insights        TEXT,
	recommendations TEXT,
	structured_path TEXT,
	narrative_path  TEXT,
	size_bytes      INTEGER NOT NULL DEFAULT 0,
	page_estimate   INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL,
	completed_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, next_run_at, priority DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_pipeline ON jobs(pipeline_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_idempotency_active
	ON jobs(idempotency_key)
	WHERE idempotency_key IS NOT NULL AND status IN ('queued', 'running');
CREATE INDEX IF NOT EXISTS idx_brand_claims_brand ON brand_claims(brand_id);
CREATE INDEX IF NOT EXISTS idx_brand_content_brand ON brand_content(brand_id);
CREATE INDEX IF NOT EXISTS idx_brand_chunks_brand ON brand_chunks(brand_id);
CREATE INDEX IF NOT EXISTS idx_brand_chunks_content ON brand_chunks(content_id);
CREATE INDEX IF NOT EXISTS idx_sample_results_brand_created ON sample_results(brand_id, created_at);
CREATE INDEX IF NOT EXISTS idx_scores_brand_calculated ON scores(brand_id, calculated_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_brand ON reports(brand_id);
CREATE INDEX IF NOT EXISTS idx_pipelines_brand ON pipelines(brand_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, nj model.NewJob) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	dependsJSON, err := marshalStringSet(nj.DependsOn)
	if err != nil {
		return nil, err
	}
	maxRetries := nj.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, pipeline_id, brand_id, type, status, priority, payload, retry_count, max_retries, depends_on, idempotency_key, next_run_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		id, nullIfEmpty(nj.PipelineID), nj.BrandID, string(nj.Type), string(model.JobStatusQueued),
		nj.Priority, nullIfEmpty(string(nj.Payload)), maxRetries, dependsJSON,
		nullIfEmpty(nj.IdempotencyKey), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// An active job with the same idempotency key already exists;
		// enqueue is idempotent, so return it as if freshly created.
		return s.activeJobByKey(ctx, nj.IdempotencyKey)
	}

	return &model.Job{
		ID:             id,
		PipelineID:     nj.PipelineID,
		BrandID:        nj.BrandID,
		Type:           nj.Type,
		Status:         model.JobStatusQueued,
		Priority:       nj.Priority,
		Payload:        nj.Payload,
		MaxRetries:     maxRetries,
		DependsOn:      nj.DependsOn,
		IdempotencyKey: nj.IdempotencyKey,
		NextRunAt:      now,
		CreatedAt:      now,
	}, nil
}

func (s *SQLiteStore) activeJobByKey(ctx context.Context, key string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE idempotency_key = ? AND status IN ('queued', 'running') LIMIT 1`,
		key,
	)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: insert conflict but no active job for key %q", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: job by idempotency key %q", key)
	}
	return j, nil
}

func (s *SQLiteStore) ClaimNextReadyJob(ctx context.Context, workerID string, types []model.JobType, leaseFor time.Duration) (*model.Job, error) {
	if leaseFor <= 0 {
		leaseFor = DefaultLeaseDuration
	}

	// Candidate select plus compare-and-set on status. Losing the CAS
	// means another worker claimed the row first; pick again.
	for attempt := 0; attempt < claimAttempts; attempt++ {
		now := time.Now().UTC()
		query := `SELECT j.id FROM jobs j
			WHERE j.status = 'queued' AND j.next_run_at <= ?
			  AND NOT EXISTS (
				SELECT 1 FROM json_each(j.depends_on) dep
				LEFT JOIN jobs d ON d.id = dep.value
				WHERE d.status IS NOT 'complete'
			  )`
		args := []any{now}
		if len(types) > 0 {
			query += ` AND j.type IN (` + placeholders(len(types)) + `)`
			for _, t := range types {
				args = append(args, string(t))
			}
		}
		query += ` ORDER BY j.priority DESC, j.created_at ASC LIMIT 1`

		var id string
		err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: select claim candidate")
		}

		res, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET status = 'running', locked_by = ?, started_at = ?, lease_expires_at = ?
			 WHERE id = ? AND status = 'queued'`,
			workerID, now, now.Add(leaseFor), id,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: claim job %s", id)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 0 {
			continue
		}
		return s.GetJob(ctx, id)
	}
	return nil, nil
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'complete', result = ?, error = NULL, completed_at = ?, locked_by = NULL, lease_expires_at = NULL
		 WHERE id = ? AND status = 'running'`,
		nullIfEmpty(string(result)), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("job not running: %s", jobID)
	}
	return nil
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID string, msg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin fail job")
	}
	defer tx.Rollback() //nolint:errcheck

	applied, err := failJobInTx(ctx, tx, jobID, msg)
	if err != nil {
		return err
	}
	if !applied {
		return eris.Errorf("job already terminal: %s", jobID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit fail job")
}

// failJobInTx increments the retry count and either requeues the job
// with backoff or marks it failed and cascades the failure to every
// transitive dependent. Returns false when the job is already terminal.
func failJobInTx(ctx context.Context, tx *sql.Tx, jobID, msg string) (bool, error) {
	var status string
	var retryCount, maxRetries int
	err := tx.QueryRowContext(ctx,
		`SELECT status, retry_count, max_retries FROM jobs WHERE id = ?`, jobID,
	).Scan(&status, &retryCount, &maxRetries)
	if errors.Is(err, sql.ErrNoRows) {
		return false, notFound("job", jobID)
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: load job %s", jobID)
	}
	if model.JobStatus(status).Terminal() {
		return false, nil
	}

	now := time.Now().UTC()
	n := retryCount + 1
	if n < maxRetries {
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = 'queued', retry_count = ?, error = ?, next_run_at = ?,
			        locked_by = NULL, lease_expires_at = NULL, started_at = NULL
			 WHERE id = ?`,
			n, msg, now.Add(retryBackoff(n)), jobID,
		)
		if err != nil {
			return false, eris.Wrapf(err, "sqlite: requeue job %s", jobID)
		}
		return true, nil
	}

	if n > maxRetries {
		n = maxRetries
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = 'failed', retry_count = ?, error = ?, completed_at = ?,
		        locked_by = NULL, lease_expires_at = NULL
		 WHERE id = ?`,
		n, msg, now, jobID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: fail job %s", jobID)
	}
	if err := cascadeFailInTx(ctx, tx, jobID, now); err != nil {
		return false, err
	}
	return true, nil
}

// cascadeFailInTx walks the dependency graph breadth-first from the
// failed root and fails every queued transitive dependent. Dependents
// get no retries: their input can never arrive.
func cascadeFailInTx(ctx context.Context, tx *sql.Tx, rootID string, now time.Time) error {
	frontier := []string{rootID}
	seen := map[string]bool{rootID: true}

	for len(frontier) > 0 {
		parent := frontier[0]
		frontier = frontier[1:]

		rows, err := tx.QueryContext(ctx,
			`SELECT id, status FROM jobs
			 WHERE EXISTS (SELECT 1 FROM json_each(depends_on) WHERE value = ?)`,
			parent,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: find dependents of %s", parent)
		}
		type dep struct {
			id     string
			status string
		}
		var deps []dep
		for rows.Next() {
			var d dep
			if err := rows.Scan(&d.id, &d.status); err != nil {
				rows.Close()
				return eris.Wrap(err, "sqlite: scan dependent")
			}
			deps = append(deps, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return eris.Wrap(err, "sqlite: iterate dependents")
		}

		for _, d := range deps {
			if seen[d.id] {
				continue
			}
			seen[d.id] = true
			frontier = append(frontier, d.id)
			if d.status != string(model.JobStatusQueued) {
				continue
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE jobs SET status = 'failed', error = ?, completed_at = ?,
				        locked_by = NULL, lease_expires_at = NULL
				 WHERE id = ? AND status = 'queued'`,
				dependencyError(parent), now, d.id,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: cascade fail %s", d.id)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) CancelChain(ctx context.Context, rootJobID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin cancel chain")
	}
	defer tx.Rollback() //nolint:errcheck

	var rootStatus string
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, rootJobID).Scan(&rootStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("job", rootJobID)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: load job %s", rootJobID)
	}

	now := time.Now().UTC()
	cancelled := 0

	// A running root is left to finish; cancellation is cooperative.
	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = 'cancelled', completed_at = ?, locked_by = NULL, lease_expires_at = NULL
		 WHERE id = ? AND status = 'queued'`,
		now, rootJobID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: cancel job %s", rootJobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	cancelled += int(n)

	frontier := []string{rootJobID}
	seen := map[string]bool{rootJobID: true}
	for len(frontier) > 0 {
		parent := frontier[0]
		frontier = frontier[1:]

		rows, err := tx.QueryContext(ctx,
			`SELECT id, status FROM jobs
			 WHERE EXISTS (SELECT 1 FROM json_each(depends_on) WHERE value = ?)`,
			parent,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: find dependents of %s", parent)
		}
		type dep struct {
			id     string
			status string
		}
		var deps []dep
		for rows.Next() {
			var d dep
			if err := rows.Scan(&d.id, &d.status); err != nil {
				rows.Close()
				return 0, eris.Wrap(err, "sqlite: scan dependent")
			}
			deps = append(deps, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return 0, eris.Wrap(err, "sqlite: iterate dependents")
		}

		for _, d := range deps {
			if seen[d.id] {
				continue
			}
			seen[d.id] = true
			frontier = append(frontier, d.id)
			if d.status != string(model.JobStatusQueued) {
				continue
			}
			res, err := tx.ExecContext(ctx,
				`UPDATE jobs SET status = 'cancelled', completed_at = ?, locked_by = NULL, lease_expires_at = NULL
				 WHERE id = ? AND status = 'queued'`,
				now, d.id,
			)
			if err != nil {
				return 0, eris.Wrapf(err, "sqlite: cancel dependent %s", d.id)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return 0, eris.Wrap(err, "sqlite: rows affected")
			}
			cancelled += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit cancel chain")
	}
	return cancelled, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("job", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return j, nil
}

func (s *SQLiteStore) ListJobsByPipeline(ctx context.Context, pipelineID string) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE pipeline_id = ? ORDER BY created_at ASC`,
		pipelineID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pipeline jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list pipeline jobs iterate")
}

func (s *SQLiteStore) CountJobsByStatus(ctx context.Context, since time.Time) (map[model.JobStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM jobs`
	var args []any
	if !since.IsZero() {
		query += ` WHERE created_at >= ?`
		args = append(args, since.UTC())
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count jobs")
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job count")
		}
		counts[model.JobStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count jobs iterate")
}

func (s *SQLiteStore) ReapExpiredLeases(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs WHERE status = 'running' AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?`,
		now,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: select expired leases")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, eris.Wrap(err, "sqlite: scan expired lease")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "sqlite: iterate expired leases")
	}

	reaped := 0
	for _, id := range ids {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return reaped, eris.Wrap(err, "sqlite: begin reap")
		}
		applied, err := failJobInTx(ctx, tx, id, "lease expired")
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return reaped, err
		}
		if !applied {
			// Completed between the sweep select and here.
			tx.Rollback() //nolint:errcheck
			continue
		}
		if err := tx.Commit(); err != nil {
			return reaped, eris.Wrap(err, "sqlite: commit reap")
		}
		reaped++
	}
	return reaped, nil
}

// --- Pipelines ---

func (s *SQLiteStore) CreatePipeline(ctx context.Context, p *model.Pipeline) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = model.PipelineStatusRunning
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	stagesJSON, err := json.Marshal(p.Stages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stages")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipelines (id, brand_id, profile, stages, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BrandID, string(p.Profile), string(stagesJSON), string(p.Status), now, now,
	)
	return eris.Wrap(err, "sqlite: insert pipeline")
}

func (s *SQLiteStore) GetPipeline(ctx context.Context, pipelineID string) (*model.Pipeline, error) {
	var p model.Pipeline
	var stagesJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, brand_id, profile, stages, status, created_at, updated_at FROM pipelines WHERE id = ?`,
		pipelineID,
	).Scan(&p.ID, &p.BrandID, &p.Profile, &stagesJSON, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("pipeline", pipelineID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get pipeline %s", pipelineID)
	}
	if err := json.Unmarshal([]byte(stagesJSON), &p.Stages); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal stages")
	}
	return &p, nil
}

func (s *SQLiteStore) SetPipelineStatus(ctx context.Context, pipelineID string, status model.PipelineStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipelines SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), pipelineID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set pipeline status %s", pipelineID)
	}
	return checkRowsAffected(res, "pipeline", pipelineID)
}

func (s *SQLiteStore) CancelPipelineJobs(ctx context.Context, pipelineID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'cancelled', completed_at = ?, locked_by = NULL, lease_expires_at = NULL
		 WHERE pipeline_id = ? AND status = 'queued'`,
		time.Now().UTC(), pipelineID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: cancel pipeline jobs %s", pipelineID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) CountPipelinesByStatus(ctx context.Context, since time.Time) (map[model.PipelineStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM pipelines`
	var args []any
	if !since.IsZero() {
		query += ` WHERE created_at >= ?`
		args = append(args, since.UTC())
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count pipelines")
	}
	defer rows.Close()

	counts := make(map[model.PipelineStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pipeline count")
		}
		counts[model.PipelineStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count pipelines iterate")
}

// --- Brands ---

func (s *SQLiteStore) UpsertBrand(ctx context.Context, b *model.Brand) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	competitorsJSON, err := marshalStringSet(b.Competitors)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO brands (id, name, domain, service_type, location, competitors, monthly_budget_usd, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name, domain = excluded.domain, service_type = excluded.service_type,
		   location = excluded.location, competitors = excluded.competitors,
		   monthly_budget_usd = excluded.monthly_budget_usd, updated_at = excluded.updated_at`,
		b.ID, b.Name, b.Domain, b.ServiceType, b.Location, competitorsJSON, b.MonthlyBudgetUSD, b.CreatedAt, b.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: upsert brand")
}

func (s *SQLiteStore) GetBrand(ctx context.Context, brandID string) (*model.Brand, error) {
	var b model.Brand
	var serviceType, location sql.NullString
	var competitorsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, domain, service_type, location, competitors, monthly_budget_usd, created_at, updated_at
		 FROM brands WHERE id = ?`,
		brandID,
	).Scan(&b.ID, &b.Name, &b.Domain, &serviceType, &location, &competitorsJSON, &b.MonthlyBudgetUSD, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("brand", brandID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get brand %s", brandID)
	}
	b.ServiceType = serviceType.String
	b.Location = location.String
	if err := json.Unmarshal([]byte(competitorsJSON), &b.Competitors); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal competitors")
	}
	if len(b.Competitors) == 0 {
		b.Competitors = nil
	}
	return &b, nil
}

func (s *SQLiteStore) ListBrands(ctx context.Context, limit int) ([]model.Brand, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, domain, service_type, location, competitors, monthly_budget_usd, created_at, updated_at
		 FROM brands ORDER BY name ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list brands")
	}
	defer rows.Close()

	var brands []model.Brand
	for rows.Next() {
		var b model.Brand
		var serviceType, location sql.NullString
		var competitorsJSON string
		if err := rows.Scan(&b.ID, &b.Name, &b.Domain, &serviceType, &location, &competitorsJSON, &b.MonthlyBudgetUSD, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan brand")
		}
		b.ServiceType = serviceType.String
		b.Location = location.String
		if err := json.Unmarshal([]byte(competitorsJSON), &b.Competitors); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal competitors")
		}
		if len(b.Competitors) == 0 {
			b.Competitors = nil
		}
		brands = append(brands, b)
	}
	return brands, eris.Wrap(rows.Err(), "sqlite: list brands iterate")
}

func (s *SQLiteStore) ReplaceClaims(ctx context.Context, brandID string, claims []model.BrandClaim) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace claims")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM brand_claims WHERE brand_id = ?`, brandID); err != nil {
		return eris.Wrap(err, "sqlite: delete claims")
	}
	now := time.Now().UTC()
	for i := range claims {
		c := &claims[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.BrandID = brandID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO brand_claims (id, brand_id, text, confidence, created_at) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.BrandID, c.Text, c.Confidence, c.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert claim")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace claims")
}

func (s *SQLiteStore) ListClaims(ctx context.Context, brandID string, limit int) ([]model.BrandClaim, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, brand_id, text, confidence, created_at FROM brand_claims
		 WHERE brand_id = ? ORDER BY confidence DESC, created_at ASC LIMIT ?`,
		brandID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list claims")
	}
	defer rows.Close()

	var claims []model.BrandClaim
	for rows.Next() {
		var c model.BrandClaim
		if err := rows.Scan(&c.ID, &c.BrandID, &c.Text, &c.Confidence, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan claim")
		}
		claims = append(claims, c)
	}
	return claims, eris.Wrap(rows.Err(), "sqlite: list claims iterate")
}

func (s *SQLiteStore) UpdateClaimText(ctx context.Context, claimID string, text string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE brand_claims SET text = ? WHERE id = ?`, text, claimID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update claim %s", claimID)
	}
	return checkRowsAffected(res, "claim", claimID)
}

func (s *SQLiteStore) ReplaceContent(ctx context.Context, brandID string, items []model.BrandContent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace content")
	}
	defer tx.Rollback() //nolint:errcheck

	// Chunks hang off content rows; replacing content invalidates them.
	if _, err := tx.ExecContext(ctx, `DELETE FROM brand_chunks WHERE brand_id = ?`, brandID); err != nil {
		return eris.Wrap(err, "sqlite: delete chunks")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM brand_content WHERE brand_id = ?`, brandID); err != nil {
		return eris.Wrap(err, "sqlite: delete content")
	}
	now := time.Now().UTC()
	for i := range items {
		c := &items[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.BrandID = brandID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO brand_content (id, brand_id, title, body, url, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.BrandID, c.Title, c.Body, c.URL, c.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert content")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace content")
}

func (s *SQLiteStore) ListContent(ctx context.Context, brandID string, limit int) ([]model.BrandContent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, brand_id, title, body, url, created_at FROM brand_content
		 WHERE brand_id = ? ORDER BY created_at ASC LIMIT ?`,
		brandID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list content")
	}
	defer rows.Close()

	var items []model.BrandContent
	for rows.Next() {
		var c model.BrandContent
		var title, url sql.NullString
		if err := rows.Scan(&c.ID, &c.BrandID, &title, &c.Body, &url, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan content")
		}
		c.Title = title.String
		c.URL = url.String
		items = append(items, c)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list content iterate")
}

func (s *SQLiteStore) UpdateContentBody(ctx context.Context, contentID string, body string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE brand_content SET body = ? WHERE id = ?`, body, contentID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update content %s", contentID)
	}
	return checkRowsAffected(res, "content", contentID)
}

func (s *SQLiteStore) ReplaceChunks(ctx context.Context, contentID string, chunks []model.BrandChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace chunks")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM brand_chunks WHERE content_id = ?`, contentID); err != nil {
		return eris.Wrap(err, "sqlite: delete chunks")
	}
	now := time.Now().UTC()
	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.ContentID = contentID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO brand_chunks (id, brand_id, content_id, seq, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.BrandID, c.ContentID, c.Seq, c.Text, c.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert chunk")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace chunks")
}

func (s *SQLiteStore) ListChunks(ctx context.Context, brandID string, limit int) ([]model.BrandChunk, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, brand_id, content_id, seq, text, created_at FROM brand_chunks
		 WHERE brand_id = ? ORDER BY content_id ASC, seq ASC LIMIT ?`,
		brandID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list chunks")
	}
	defer rows.Close()

	var chunks []model.BrandChunk
	for rows.Next() {
		var c model.BrandChunk
		if err := rows.Scan(&c.ID, &c.BrandID, &c.ContentID, &c.Seq, &c.Text, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan chunk")
		}
		chunks = append(chunks, c)
	}
	return chunks, eris.Wrap(rows.Err(), "sqlite: list chunks iterate")
}

// --- Sample results ---

func (s *SQLiteStore) InsertSampleResults(ctx context.Context, results []model.SampleResult) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert samples")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sample_results (id, brand_id, job_id, model, provider, prompt_key, paraphrase_index, response_text, input_tokens, output_tokens, total_tokens, cost_usd, execution_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert samples")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for i := range results {
		r := &results[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.BrandID, r.JobID, r.Model, r.Provider, r.PromptKey, r.ParaphraseIndex,
			r.ResponseText, r.InputTokens, r.OutputTokens, r.TotalTokens, r.CostUSD,
			r.ExecutionMs, r.Error, r.CreatedAt,
		); err != nil {
			return 0, eris.Wrap(err, "sqlite: insert sample result")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert samples")
	}
	return int64(len(results)), nil
}

func (s *SQLiteStore) ListSampleResults(ctx context.Context, brandID string, since time.Time, limit int) ([]model.SampleResult, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, brand_id, job_id, model, provider, prompt_key, paraphrase_index, response_text, input_tokens, output_tokens, total_tokens, cost_usd, execution_ms, error, created_at
		 FROM sample_results WHERE brand_id = ? AND created_at >= ?
		 ORDER BY created_at DESC LIMIT ?`,
		brandID, since.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sample results")
	}
	defer rows.Close()

	var results []model.SampleResult
	for rows.Next() {
		r, err := scanSampleResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list sample results iterate")
}

func (s *SQLiteStore) TrailingSpend(ctx context.Context, brandID string, since time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM sample_results WHERE brand_id = ? AND created_at >= ?`,
		brandID, since.UTC(),
	).Scan(&total)
	return total, eris.Wrap(err, "sqlite: trailing spend")
}

// --- Scores ---

func (s *SQLiteStore) InsertScore(ctx context.Context, sc *model.ScoreComponents) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.EngineScope == "" {
		sc.EngineScope = model.EngineScopeAll
	}
	if sc.CalculatedAt.IsZero() {
		sc.CalculatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scores (id, brand_id, engine_scope, prompt_sov, generative_appearance, citation_authority, answer_quality, voice_presence, ai_traffic, ai_conversions, total_score, sample_count, calculated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.BrandID, sc.EngineScope, sc.PromptSOV, sc.GenerativeAppearance,
		sc.CitationAuthority, sc.AnswerQuality, sc.VoicePresence, sc.AITraffic,
		sc.AIConversions, sc.TotalScore, sc.SampleCount, sc.CalculatedAt,
	)
	return eris.Wrap(err, "sqlite: insert score")
}

func (s *SQLiteStore) LatestScore(ctx context.Context, brandID string) (*model.ScoreComponents, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, brand_id, engine_scope, prompt_sov, generative_appearance, citation_authority, answer_quality, voice_presence, ai_traffic, ai_conversions, total_score, sample_count, calculated_at
		 FROM scores WHERE brand_id = ? ORDER BY calculated_at DESC LIMIT 1`,
		brandID,
	)
	sc, err := scanScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("score for brand", brandID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest score %s", brandID)
	}
	return sc, nil
}

func (s *SQLiteStore) ListScores(ctx context.Context, brandID string, limit int) ([]model.ScoreComponents, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, brand_id, engine_scope, prompt_sov, generative_appearance, citation_authority, answer_quality, voice_presence, ai_traffic, ai_conversions, total_score, sample_count, calculated_at
		 FROM scores WHERE brand_id = ? ORDER BY calculated_at DESC LIMIT ?`,
		brandID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scores")
	}
	defer rows.Close()

	var scores []model.ScoreComponents
	for rows.Next() {
		sc, err := scanScore(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		scores = append(scores, *sc)
	}
	return scores, eris.Wrap(rows.Err(), "sqlite: list scores iterate")
}

// --- Reports ---

func (s *SQLiteStore) CreateReport(ctx context.Context, r *model.Report) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = model.ReportStatusGenerating
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, brand_id, job_id, score_id, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.BrandID, r.JobID, nullIfEmpty(r.ScoreID), string(r.Status), r.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert report")
}

func (s *SQLiteStore) FinishReport(ctx context.Context, r *model.Report) error {
	insightsJSON, err := json.Marshal(r.Insights)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal insights")
	}
	recsJSON, err := json.Marshal(r.Recommendations)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal recommendations")
	}
	now := time.Now().UTC()
	r.Status = model.ReportStatusComplete
	r.CompletedAt = &now

	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = 'complete', score_id = ?, insights = ?, recommendations = ?,
		        structured_path = ?, narrative_path = ?, size_bytes = ?, page_estimate = ?,
		        error = NULL, completed_at = ?
		 WHERE id = ?`,
		nullIfEmpty(r.ScoreID), string(insightsJSON), string(recsJSON),
		r.StructuredPath, r.NarrativePath, r.SizeBytes, r.PageEstimate, now, r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish report %s", r.ID)
	}
	return checkRowsAffected(res, "report", r.ID)
}

func (s *SQLiteStore) FailReport(ctx context.Context, reportID string, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = 'failed', error = ?, completed_at = ? WHERE id = ?`,
		msg, time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail report %s", reportID)
	}
	return checkRowsAffected(res, "report", reportID)
}

func (s *SQLiteStore) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	var r model.Report
	var scoreID, jobErr, insightsJSON, recsJSON, structuredPath, narrativePath sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, brand_id, job_id, score_id, status, error, insights, recommendations, structured_path, narrative_path, size_bytes, page_estimate, created_at, completed_at
		 FROM reports WHERE id = ?`,
		reportID,
	).Scan(&r.ID, &r.BrandID, &r.JobID, &scoreID, &r.Status, &jobErr, &insightsJSON, &recsJSON,
		&structuredPath, &narrativePath, &r.SizeBytes, &r.PageEstimate, &r.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("report", reportID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %s", reportID)
	}
	r.ScoreID = scoreID.String
	r.Error = jobErr.String
	r.StructuredPath = structuredPath.String
	r.NarrativePath = narrativePath.String
	if insightsJSON.Valid && insightsJSON.String != "" && insightsJSON.String != "null" {
		r.Insights = &model.ReportInsights{}
		if err := json.Unmarshal([]byte(insightsJSON.String), r.Insights); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal insights")
		}
	}
	if recsJSON.Valid && recsJSON.String != "" && recsJSON.String != "null" {
		if err := json.Unmarshal([]byte(recsJSON.String), &r.Recommendations); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal recommendations")
		}
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		r.CompletedAt = &t
	}
	return &r, nil
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var pipelineID, payload, result, jobErr, idemKey, lockedBy sql.NullString
	var dependsJSON string
	var leaseExpires, startedAt, completedAt sql.NullTime

	err := row.Scan(&j.ID, &pipelineID, &j.BrandID, &j.Type, &j.Status, &j.Priority,
		&payload, &result, &jobErr, &j.RetryCount, &j.MaxRetries, &dependsJSON,
		&idemKey, &lockedBy, &j.NextRunAt, &leaseExpires, &j.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	j.PipelineID = pipelineID.String
	if payload.Valid && payload.String != "" {
		j.Payload = json.RawMessage(payload.String)
	}
	if result.Valid && result.String != "" {
		j.Result = json.RawMessage(result.String)
	}
	j.Error = jobErr.String
	j.IdempotencyKey = idemKey.String
	j.LockedBy = lockedBy.String
	if err := json.Unmarshal([]byte(dependsJSON), &j.DependsOn); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal depends_on")
	}
	if len(j.DependsOn) == 0 {
		j.DependsOn = nil
	}
	if leaseExpires.Valid {
		t := leaseExpires.Time.UTC()
		j.LeaseExpiresAt = &t
	}
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		j.CompletedAt = &t
	}
	return &j, nil
}

func scanSampleResult(row scannable) (*model.SampleResult, error) {
	var r model.SampleResult
	var responseText, sampleErr sql.NullString

	err := row.Scan(&r.ID, &r.BrandID, &r.JobID, &r.Model, &r.Provider, &r.PromptKey,
		&r.ParaphraseIndex, &responseText, &r.InputTokens, &r.OutputTokens, &r.TotalTokens,
		&r.CostUSD, &r.ExecutionMs, &sampleErr, &r.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan sample result")
	}
	r.ResponseText = responseText.String
	r.Error = sampleErr.String
	return &r, nil
}

func scanScore(row scannable) (*model.ScoreComponents, error) {
	var sc model.ScoreComponents
	err := row.Scan(&sc.ID, &sc.BrandID, &sc.EngineScope, &sc.PromptSOV, &sc.GenerativeAppearance,
		&sc.CitationAuthority, &sc.AnswerQuality, &sc.VoicePresence, &sc.AITraffic,
		&sc.AIConversions, &sc.TotalScore, &sc.SampleCount, &sc.CalculatedAt)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}
