package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/promptwatch/visibility/internal/db"
	"github.com/promptwatch/visibility/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_job":        `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`,
	"get_pipeline":   `SELECT id, brand_id, profile, stages, status, created_at, updated_at FROM pipelines WHERE id = $1`,
	"complete_job":   `UPDATE jobs SET status = 'complete', result = $1, error = NULL, completed_at = $2, locked_by = NULL, lease_expires_at = NULL WHERE id = $3 AND status = 'running'`,
	"trailing_spend": `SELECT COALESCE(SUM(cost_usd), 0) FROM sample_results WHERE brand_id = $1 AND created_at >= $2`,
	"latest_score":   `SELECT ` + scoreColumns + ` FROM scores WHERE brand_id = $1 ORDER BY calculated_at DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., the metrics collector).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS brands (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	domain             TEXT NOT NULL,
	service_type       TEXT,
	location           TEXT,
	competitors        JSONB NOT NULL DEFAULT '[]'::jsonb,
	monthly_budget_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS brand_claims (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL REFERENCES brands(id),
	text       TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS brand_content (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL REFERENCES brands(id),
	title      TEXT,
	body       TEXT NOT NULL,
	url        TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS brand_chunks (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL,
	content_id TEXT NOT NULL REFERENCES brand_content(id),
	seq        INTEGER NOT NULL,
	text       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pipelines (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL,
	profile    TEXT NOT NULL,
	stages     JSONB NOT NULL DEFAULT '[]'::jsonb,
	status     TEXT NOT NULL DEFAULT 'running',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY,
	pipeline_id      TEXT,
	brand_id         TEXT NOT NULL,
	type             TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'queued',
	priority         INTEGER NOT NULL DEFAULT 0,
	payload          JSONB,
	result           JSONB,
	error            TEXT,
	retry_count      INTEGER NOT NULL DEFAULT 0,
	max_retries      INTEGER NOT NULL DEFAULT 3,
	depends_on       JSONB NOT NULL DEFAULT '[]'::jsonb,
	idempotency_key  TEXT,
	locked_by        TEXT,
	next_run_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	lease_expires_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at       TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ
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
	cost_usd         DOUBLE PRECISION NOT NULL DEFAULT 0,
	execution_ms     BIGINT NOT NULL DEFAULT 0,
	error            TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scores (
	id                    TEXT PRIMARY KEY,
	brand_id              TEXT NOT NULL,
	engine_scope          TEXT NOT NULL DEFAULT 'all',
	prompt_sov            DOUBLE PRECISION NOT NULL DEFAULT 0,
	generative_appearance DOUBLE PRECISION NOT NULL DEFAULT 0,
	citation_authority    DOUBLE PRECISION NOT NULL DEFAULT 0,
	answer_quality        DOUBLE PRECISION NOT NULL DEFAULT 0,
	voice_presence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	ai_traffic            DOUBLE PRECISION NOT NULL DEFAULT 0,
	ai_conversions        DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_score           INTEGER NOT NULL DEFAULT 0,
	sample_count          INTEGER NOT NULL DEFAULT 0,
	calculated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reports (
	id              TEXT PRIMARY KEY,
	brand_id        TEXT NOT NULL,
	job_id          TEXT NOT NULL,
	score_id        TEXT,
	status          TEXT NOT NULL DEFAULT 'generating',
	error           TEXT,
	insights        JSONB,
	recommendations JSONB,
	structured_path TEXT,
	narrative_path  TEXT,
	size_bytes      BIGINT NOT NULL DEFAULT 0,
	page_estimate   INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, next_run_at, priority DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_pipeline ON jobs(pipeline_id);
CREATE INDEX IF NOT EXISTS idx_jobs_depends_on ON jobs USING gin (depends_on jsonb_path_ops);
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

const scoreColumns = `id, brand_id, engine_scope, prompt_sov, generative_appearance, citation_authority, answer_quality, voice_presence, ai_traffic, ai_conversions, total_score, sample_count, calculated_at`

var sampleResultColumns = []string{
	"id", "brand_id", "job_id", "model", "provider", "prompt_key", "paraphrase_index",
	"response_text", "input_tokens", "output_tokens", "total_tokens", "cost_usd",
	"execution_ms", "error", "created_at",
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, nj model.NewJob) (*model.Job, error) {
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
	var payload []byte
	if len(nj.Payload) > 0 {
		payload = nj.Payload
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, pipeline_id, brand_id, type, status, priority, payload, retry_count, max_retries, depends_on, idempotency_key, next_run_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11, $12)
		 ON CONFLICT DO NOTHING`,
		id, textOrNil(nj.PipelineID), nj.BrandID, string(nj.Type), string(model.JobStatusQueued),
		nj.Priority, payload, maxRetries, []byte(dependsJSON), textOrNil(nj.IdempotencyKey), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	if tag.RowsAffected() == 0 {
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

func (s *PostgresStore) activeJobByKey(ctx context.Context, key string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE idempotency_key = $1 AND status IN ('queued', 'running') LIMIT 1`,
		key,
	)
	j, err := scanJobPg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: insert conflict but no active job for key %q", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: job by idempotency key %q", key)
	}
	return j, nil
}

func (s *PostgresStore) ClaimNextReadyJob(ctx context.Context, workerID string, types []model.JobType, leaseFor time.Duration) (*model.Job, error) {
	if leaseFor <= 0 {
		leaseFor = DefaultLeaseDuration
	}
	now := time.Now().UTC()

	typeFilter := ""
	args := []any{workerID, now, now.Add(leaseFor)}
	if len(types) > 0 {
		typeFilter = ` AND j.type = ANY($4)`
		typeStrs := make([]string, len(types))
		for i, t := range types {
			typeStrs[i] = string(t)
		}
		args = append(args, typeStrs)
	}

	// Single atomic claim: the SKIP LOCKED subselect picks the best
	// ready row without blocking on rows other workers hold.
	query := `UPDATE jobs SET status = 'running', locked_by = $1, started_at = $2, lease_expires_at = $3
		WHERE id = (
			SELECT j.id FROM jobs j
			WHERE j.status = 'queued' AND j.next_run_at <= $2` + typeFilter + `
			  AND NOT EXISTS (
				SELECT 1 FROM jsonb_array_elements_text(j.depends_on) AS dep
				LEFT JOIN jobs d ON d.id = dep.value
				WHERE d.status IS DISTINCT FROM 'complete'
			  )
			ORDER BY j.priority DESC, j.created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	j, err := scanJobPg(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim next ready job")
	}
	return j, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error {
	var resultBytes []byte
	if len(result) > 0 {
		resultBytes = result
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'complete', result = $1, error = NULL, completed_at = $2, locked_by = NULL, lease_expires_at = NULL
		 WHERE id = $3 AND status = 'running'`,
		resultBytes, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not running: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID string, msg string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin fail job")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	applied, err := failJobInTxPg(ctx, tx, jobID, msg)
	if err != nil {
		return err
	}
	if !applied {
		return eris.Errorf("job already terminal: %s", jobID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit fail job")
}

func failJobInTxPg(ctx context.Context, tx pgx.Tx, jobID, msg string) (bool, error) {
	var status string
	var retryCount, maxRetries int
	err := tx.QueryRow(ctx,
		`SELECT status, retry_count, max_retries FROM jobs WHERE id = $1 FOR UPDATE`, jobID,
	).Scan(&status, &retryCount, &maxRetries)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, notFound("job", jobID)
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: load job %s", jobID)
	}
	if model.JobStatus(status).Terminal() {
		return false, nil
	}

	now := time.Now().UTC()
	n := retryCount + 1
	if n < maxRetries {
		_, err = tx.Exec(ctx,
			`UPDATE jobs SET status = 'queued', retry_count = $1, error = $2, next_run_at = $3,
			        locked_by = NULL, lease_expires_at = NULL, started_at = NULL
			 WHERE id = $4`,
			n, msg, now.Add(retryBackoff(n)), jobID,
		)
		if err != nil {
			return false, eris.Wrapf(err, "postgres: requeue job %s", jobID)
		}
		return true, nil
	}

	if n > maxRetries {
		n = maxRetries
	}
	_, err = tx.Exec(ctx,
		`UPDATE jobs SET status = 'failed', retry_count = $1, error = $2, completed_at = $3,
		        locked_by = NULL, lease_expires_at = NULL
		 WHERE id = $4`,
		n, msg, now, jobID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	if err := cascadeFailInTxPg(ctx, tx, jobID, now); err != nil {
		return false, err
	}
	return true, nil
}

func cascadeFailInTxPg(ctx context.Context, tx pgx.Tx, rootID string, now time.Time) error {
	frontier := []string{rootID}
	seen := map[string]bool{rootID: true}

	for len(frontier) > 0 {
		parent := frontier[0]
		frontier = frontier[1:]

		rows, err := tx.Query(ctx,
			`SELECT id, status FROM jobs WHERE depends_on @> to_jsonb($1::text)`,
			parent,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: find dependents of %s", parent)
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
				return eris.Wrap(err, "postgres: scan dependent")
			}
			deps = append(deps, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return eris.Wrap(err, "postgres: iterate dependents")
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
			_, err := tx.Exec(ctx,
				`UPDATE jobs SET status = 'failed', error = $1, completed_at = $2,
				        locked_by = NULL, lease_expires_at = NULL
				 WHERE id = $3 AND status = 'queued'`,
				dependencyError(parent), now, d.id,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: cascade fail %s", d.id)
			}
		}
	}
	return nil
}

func (s *PostgresStore) CancelChain(ctx context.Context, rootJobID string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin cancel chain")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var rootStatus string
	err = tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, rootJobID).Scan(&rootStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, notFound("job", rootJobID)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: load job %s", rootJobID)
	}

	now := time.Now().UTC()
	cancelled := 0

	tag, err := tx.Exec(ctx,
		`UPDATE jobs SET status = 'cancelled', completed_at = $1, locked_by = NULL, lease_expires_at = NULL
		 WHERE id = $2 AND status = 'queued'`,
		now, rootJobID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: cancel job %s", rootJobID)
	}
	cancelled += int(tag.RowsAffected())

	frontier := []string{rootJobID}
	seen := map[string]bool{rootJobID: true}
	for len(frontier) > 0 {
		parent := frontier[0]
		frontier = frontier[1:]

		rows, err := tx.Query(ctx,
			`SELECT id, status FROM jobs WHERE depends_on @> to_jsonb($1::text)`,
			parent,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: find dependents of %s", parent)
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
				return 0, eris.Wrap(err, "postgres: scan dependent")
			}
			deps = append(deps, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return 0, eris.Wrap(err, "postgres: iterate dependents")
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
			tag, err := tx.Exec(ctx,
				`UPDATE jobs SET status = 'cancelled', completed_at = $1, locked_by = NULL, lease_expires_at = NULL
				 WHERE id = $2 AND status = 'queued'`,
				now, d.id,
			)
			if err != nil {
				return 0, eris.Wrapf(err, "postgres: cancel dependent %s", d.id)
			}
			cancelled += int(tag.RowsAffected())
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit cancel chain")
	}
	return cancelled, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	j, err := scanJobPg(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("job", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return j, nil
}

func (s *PostgresStore) ListJobsByPipeline(ctx context.Context, pipelineID string) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE pipeline_id = $1 ORDER BY created_at ASC`,
		pipelineID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pipeline jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJobPg(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list pipeline jobs iterate")
}

func (s *PostgresStore) CountJobsByStatus(ctx context.Context, since time.Time) (map[model.JobStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM jobs`
	var args []any
	if !since.IsZero() {
		query += ` WHERE created_at >= $1`
		args = append(args, since.UTC())
	}
	query += ` GROUP BY status`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count jobs")
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job count")
		}
		counts[model.JobStatus(status)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count jobs iterate")
}

func (s *PostgresStore) ReapExpiredLeases(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM jobs WHERE status = 'running' AND lease_expires_at IS NOT NULL AND lease_expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: select expired leases")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, eris.Wrap(err, "postgres: scan expired lease")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "postgres: iterate expired leases")
	}

	reaped := 0
	for _, id := range ids {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return reaped, eris.Wrap(err, "postgres: begin reap")
		}
		applied, err := failJobInTxPg(ctx, tx, id, "lease expired")
		if err != nil {
			tx.Rollback(ctx) //nolint:errcheck
			return reaped, err
		}
		if !applied {
			tx.Rollback(ctx) //nolint:errcheck
			continue
		}
		if err := tx.Commit(ctx); err != nil {
			return reaped, eris.Wrap(err, "postgres: commit reap")
		}
		reaped++
	}
	return reaped, nil
}

// --- Pipelines ---

func (s *PostgresStore) CreatePipeline(ctx context.Context, p *model.Pipeline) error {
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
		return eris.Wrap(err, "postgres: marshal stages")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipelines (id, brand_id, profile, stages, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.BrandID, string(p.Profile), stagesJSON, string(p.Status), now, now,
	)
	return eris.Wrap(err, "postgres: insert pipeline")
}

func (s *PostgresStore) GetPipeline(ctx context.Context, pipelineID string) (*model.Pipeline, error) {
	var p model.Pipeline
	var stagesJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, brand_id, profile, stages, status, created_at, updated_at FROM pipelines WHERE id = $1`,
		pipelineID,
	).Scan(&p.ID, &p.BrandID, &p.Profile, &stagesJSON, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("pipeline", pipelineID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get pipeline %s", pipelineID)
	}
	if err := json.Unmarshal(stagesJSON, &p.Stages); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal stages")
	}
	return &p, nil
}

func (s *PostgresStore) SetPipelineStatus(ctx context.Context, pipelineID string, status model.PipelineStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipelines SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), pipelineID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set pipeline status %s", pipelineID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("pipeline", pipelineID)
	}
	return nil
}

func (s *PostgresStore) CancelPipelineJobs(ctx context.Context, pipelineID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'cancelled', completed_at = $1, locked_by = NULL, lease_expires_at = NULL
		 WHERE pipeline_id = $2 AND status = 'queued'`,
		time.Now().UTC(), pipelineID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: cancel pipeline jobs %s", pipelineID)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountPipelinesByStatus(ctx context.Context, since time.Time) (map[model.PipelineStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM pipelines`
	var args []any
	if !since.IsZero() {
		query += ` WHERE created_at >= $1`
		args = append(args, since.UTC())
	}
	query += ` GROUP BY status`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count pipelines")
	}
	defer rows.Close()

	counts := make(map[model.PipelineStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pipeline count")
		}
		counts[model.PipelineStatus(status)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count pipelines iterate")
}

// --- Brands ---

func (s *PostgresStore) UpsertBrand(ctx context.Context, b *model.Brand) error {
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO brands (id, name, domain, service_type, location, competitors, monthly_budget_usd, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, domain = EXCLUDED.domain, service_type = EXCLUDED.service_type,
		   location = EXCLUDED.location, competitors = EXCLUDED.competitors,
		   monthly_budget_usd = EXCLUDED.monthly_budget_usd, updated_at = EXCLUDED.updated_at`,
		b.ID, b.Name, b.Domain, b.ServiceType, b.Location, []byte(competitorsJSON), b.MonthlyBudgetUSD, b.CreatedAt, b.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: upsert brand")
}

func (s *PostgresStore) GetBrand(ctx context.Context, brandID string) (*model.Brand, error) {
	b, err := scanBrandPg(s.pool.QueryRow(ctx,
		`SELECT id, name, domain, service_type, location, competitors, monthly_budget_usd, created_at, updated_at
		 FROM brands WHERE id = $1`,
		brandID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("brand", brandID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get brand %s", brandID)
	}
	return b, nil
}

func (s *PostgresStore) ListBrands(ctx context.Context, limit int) ([]model.Brand, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, domain, service_type, location, competitors, monthly_budget_usd, created_at, updated_at
		 FROM brands ORDER BY name ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list brands")
	}
	defer rows.Close()

	var brands []model.Brand
	for rows.Next() {
		b, err := scanBrandPg(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan brand")
		}
		brands = append(brands, *b)
	}
	return brands, eris.Wrap(rows.Err(), "postgres: list brands iterate")
}

func (s *PostgresStore) ReplaceClaims(ctx context.Context, brandID string, claims []model.BrandClaim) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace claims")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM brand_claims WHERE brand_id = $1`, brandID); err != nil {
		return eris.Wrap(err, "postgres: delete claims")
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
		if _, err := tx.Exec(ctx,
			`INSERT INTO brand_claims (id, brand_id, text, confidence, created_at) VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.BrandID, c.Text, c.Confidence, c.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "postgres: insert claim")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace claims")
}

func (s *PostgresStore) ListClaims(ctx context.Context, brandID string, limit int) ([]model.BrandClaim, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, brand_id, text, confidence, created_at FROM brand_claims
		 WHERE brand_id = $1 ORDER BY confidence DESC, created_at ASC LIMIT $2`,
		brandID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list claims")
	}
	defer rows.Close()

	var claims []model.BrandClaim
	for rows.Next() {
		var c model.BrandClaim
		if err := rows.Scan(&c.ID, &c.BrandID, &c.Text, &c.Confidence, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan claim")
		}
		claims = append(claims, c)
	}
	return claims, eris.Wrap(rows.Err(), "postgres: list claims iterate")
}

func (s *PostgresStore) UpdateClaimText(ctx context.Context, claimID string, text string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE brand_claims SET text = $1 WHERE id = $2`, text, claimID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update claim %s", claimID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("claim", claimID)
	}
	return nil
}

func (s *PostgresStore) ReplaceContent(ctx context.Context, brandID string, items []model.BrandContent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace content")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM brand_chunks WHERE brand_id = $1`, brandID); err != nil {
		return eris.Wrap(err, "postgres: delete chunks")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM brand_content WHERE brand_id = $1`, brandID); err != nil {
		return eris.Wrap(err, "postgres: delete content")
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
		if _, err := tx.Exec(ctx,
			`INSERT INTO brand_content (id, brand_id, title, body, url, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.BrandID, c.Title, c.Body, c.URL, c.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "postgres: insert content")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace content")
}

func (s *PostgresStore) ListContent(ctx context.Context, brandID string, limit int) ([]model.BrandContent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, brand_id, title, body, url, created_at FROM brand_content
		 WHERE brand_id = $1 ORDER BY created_at ASC LIMIT $2`,
		brandID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list content")
	}
	defer rows.Close()

	var items []model.BrandContent
	for rows.Next() {
		var c model.BrandContent
		var title, url *string
		if err := rows.Scan(&c.ID, &c.BrandID, &title, &c.Body, &url, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan content")
		}
		if title != nil {
			c.Title = *title
		}
		if url != nil {
			c.URL = *url
		}
		items = append(items, c)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list content iterate")
}

func (s *PostgresStore) UpdateContentBody(ctx context.Context, contentID string, body string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE brand_content SET body = $1 WHERE id = $2`, body, contentID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update content %s", contentID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("content", contentID)
	}
	return nil
}

func (s *PostgresStore) ReplaceChunks(ctx context.Context, contentID string, chunks []model.BrandChunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace chunks")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM brand_chunks WHERE content_id = $1`, contentID); err != nil {
		return eris.Wrap(err, "postgres: delete chunks")
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
		if _, err := tx.Exec(ctx,
			`INSERT INTO brand_chunks (id, brand_id, content_id, seq, text, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.BrandID, c.ContentID, c.Seq, c.Text, c.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "postgres: insert chunk")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace chunks")
}

func (s *PostgresStore) ListChunks(ctx context.Context, brandID string, limit int) ([]model.BrandChunk, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, brand_id, content_id, seq, text, created_at FROM brand_chunks
		 WHERE brand_id = $1 ORDER BY content_id ASC, seq ASC LIMIT $2`,
		brandID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list chunks")
	}
	defer rows.Close()

	var chunks []model.BrandChunk
	for rows.Next() {
		var c model.BrandChunk
		if err := rows.Scan(&c.ID, &c.BrandID, &c.ContentID, &c.Seq, &c.Text, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan chunk")
		}
		chunks = append(chunks, c)
	}
	return chunks, eris.Wrap(rows.Err(), "postgres: list chunks iterate")
}

// --- Sample results ---

func (s *PostgresStore) InsertSampleResults(ctx context.Context, results []model.SampleResult) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(results))
	for i := range results {
		r := &results[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		rows = append(rows, []any{
			r.ID, r.BrandID, r.JobID, r.Model, r.Provider, r.PromptKey, r.ParaphraseIndex,
			r.ResponseText, r.InputTokens, r.OutputTokens, r.TotalTokens, r.CostUSD,
			r.ExecutionMs, r.Error, r.CreatedAt,
		})
	}
	return db.CopyFrom(ctx, s.pool, "sample_results", sampleResultColumns, rows)
}

func (s *PostgresStore) ListSampleResults(ctx context.Context, brandID string, since time.Time, limit int) ([]model.SampleResult, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, brand_id, job_id, model, provider, prompt_key, paraphrase_index, response_text, input_tokens, output_tokens, total_tokens, cost_usd, execution_ms, error, created_at
		 FROM sample_results WHERE brand_id = $1 AND created_at >= $2
		 ORDER BY created_at DESC LIMIT $3`,
		brandID, since.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sample results")
	}
	defer rows.Close()

	var results []model.SampleResult
	for rows.Next() {
		var r model.SampleResult
		var responseText, sampleErr *string
		if err := rows.Scan(&r.ID, &r.BrandID, &r.JobID, &r.Model, &r.Provider, &r.PromptKey,
			&r.ParaphraseIndex, &responseText, &r.InputTokens, &r.OutputTokens, &r.TotalTokens,
			&r.CostUSD, &r.ExecutionMs, &sampleErr, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sample result")
		}
		if responseText != nil {
			r.ResponseText = *responseText
		}
		if sampleErr != nil {
			r.Error = *sampleErr
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list sample results iterate")
}

func (s *PostgresStore) TrailingSpend(ctx context.Context, brandID string, since time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM sample_results WHERE brand_id = $1 AND created_at >= $2`,
		brandID, since.UTC(),
	).Scan(&total)
	return total, eris.Wrap(err, "postgres: trailing spend")
}

// --- Scores ---

func (s *PostgresStore) InsertScore(ctx context.Context, sc *model.ScoreComponents) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.EngineScope == "" {
		sc.EngineScope = model.EngineScopeAll
	}
	if sc.CalculatedAt.IsZero() {
		sc.CalculatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scores (id, brand_id, engine_scope, prompt_sov, generative_appearance, citation_authority, answer_quality, voice_presence, ai_traffic, ai_conversions, total_score, sample_count, calculated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		sc.ID, sc.BrandID, sc.EngineScope, sc.PromptSOV, sc.GenerativeAppearance,
		sc.CitationAuthority, sc.AnswerQuality, sc.VoicePresence, sc.AITraffic,
		sc.AIConversions, sc.TotalScore, sc.SampleCount, sc.CalculatedAt,
	)
	return eris.Wrap(err, "postgres: insert score")
}

func (s *PostgresStore) LatestScore(ctx context.Context, brandID string) (*model.ScoreComponents, error) {
	sc, err := scanScorePg(s.pool.QueryRow(ctx,
		`SELECT `+scoreColumns+` FROM scores WHERE brand_id = $1 ORDER BY calculated_at DESC LIMIT 1`,
		brandID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("score for brand", brandID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest score %s", brandID)
	}
	return sc, nil
}

func (s *PostgresStore) ListScores(ctx context.Context, brandID string, limit int) ([]model.ScoreComponents, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+scoreColumns+` FROM scores WHERE brand_id = $1 ORDER BY calculated_at DESC LIMIT $2`,
		brandID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scores")
	}
	defer rows.Close()

	var scores []model.ScoreComponents
	for rows.Next() {
		sc, err := scanScorePg(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		scores = append(scores, *sc)
	}
	return scores, eris.Wrap(rows.Err(), "postgres: list scores iterate")
}

// --- Reports ---

func (s *PostgresStore) CreateReport(ctx context.Context, r *model.Report) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = model.ReportStatusGenerating
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reports (id, brand_id, job_id, score_id, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.BrandID, r.JobID, textOrNil(r.ScoreID), string(r.Status), r.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert report")
}

func (s *PostgresStore) FinishReport(ctx context.Context, r *model.Report) error {
	insightsJSON, err := json.Marshal(r.Insights)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal insights")
	}
	recsJSON, err := json.Marshal(r.Recommendations)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal recommendations")
	}
	now := time.Now().UTC()
	r.Status = model.ReportStatusComplete
	r.CompletedAt = &now

	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET status = 'complete', score_id = $1, insights = $2, recommendations = $3,
		        structured_path = $4, narrative_path = $5, size_bytes = $6, page_estimate = $7,
		        error = NULL, completed_at = $8
		 WHERE id = $9`,
		textOrNil(r.ScoreID), insightsJSON, recsJSON, r.StructuredPath, r.NarrativePath,
		r.SizeBytes, r.PageEstimate, now, r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish report %s", r.ID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("report", r.ID)
	}
	return nil
}

func (s *PostgresStore) FailReport(ctx context.Context, reportID string, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET status = 'failed', error = $1, completed_at = $2 WHERE id = $3`,
		msg, time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail report %s", reportID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("report", reportID)
	}
	return nil
}

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	var r model.Report
	var scoreID, reportErr, structuredPath, narrativePath *string
	var insightsJSON, recsJSON []byte
	var completedAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, brand_id, job_id, score_id, status, error, insights, recommendations, structured_path, narrative_path, size_bytes, page_estimate, created_at, completed_at
		 FROM reports WHERE id = $1`,
		reportID,
	).Scan(&r.ID, &r.BrandID, &r.JobID, &scoreID, &r.Status, &reportErr, &insightsJSON, &recsJSON,
		&structuredPath, &narrativePath, &r.SizeBytes, &r.PageEstimate, &r.CreatedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("report", reportID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %s", reportID)
	}
	if scoreID != nil {
		r.ScoreID = *scoreID
	}
	if reportErr != nil {
		r.Error = *reportErr
	}
	if structuredPath != nil {
		r.StructuredPath = *structuredPath
	}
	if narrativePath != nil {
		r.NarrativePath = *narrativePath
	}
	if len(insightsJSON) > 0 && string(insightsJSON) != "null" {
		r.Insights = &model.ReportInsights{}
		if err := json.Unmarshal(insightsJSON, r.Insights); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal insights")
		}
	}
	if len(recsJSON) > 0 && string(recsJSON) != "null" {
		if err := json.Unmarshal(recsJSON, &r.Recommendations); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal recommendations")
		}
	}
	r.CompletedAt = completedAt
	return &r, nil
}

// --- helpers ---

func textOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanJobPg(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var pipelineID, jobErr, idemKey, lockedBy *string
	var payload, result, dependsJSON []byte
	var leaseExpires, startedAt, completedAt *time.Time

	err := row.Scan(&j.ID, &pipelineID, &j.BrandID, &j.Type, &j.Status, &j.Priority,
		&payload, &result, &jobErr, &j.RetryCount, &j.MaxRetries, &dependsJSON,
		&idemKey, &lockedBy, &j.NextRunAt, &leaseExpires, &j.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if pipelineID != nil {
		j.PipelineID = *pipelineID
	}
	if len(payload) > 0 {
		j.Payload = json.RawMessage(payload)
	}
	if len(result) > 0 {
		j.Result = json.RawMessage(result)
	}
	if jobErr != nil {
		j.Error = *jobErr
	}
	if idemKey != nil {
		j.IdempotencyKey = *idemKey
	}
	if lockedBy != nil {
		j.LockedBy = *lockedBy
	}
	if err := json.Unmarshal(dependsJSON, &j.DependsOn); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal depends_on")
	}
	if len(j.DependsOn) == 0 {
		j.DependsOn = nil
	}
	j.LeaseExpiresAt = leaseExpires
	j.StartedAt = startedAt
	j.CompletedAt = completedAt
	return &j, nil
}

func scanBrandPg(row pgx.Row) (*model.Brand, error) {
	var b model.Brand
	var serviceType, location *string
	var competitorsJSON []byte

	err := row.Scan(&b.ID, &b.Name, &b.Domain, &serviceType, &location, &competitorsJSON,
		&b.MonthlyBudgetUSD, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if serviceType != nil {
		b.ServiceType = *serviceType
	}
	if location != nil {
		b.Location = *location
	}
	if err := json.Unmarshal(competitorsJSON, &b.Competitors); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal competitors")
	}
	if len(b.Competitors) == 0 {
		b.Competitors = nil
	}
	return &b, nil
}

func scanScorePg(row pgx.Row) (*model.ScoreComponents, error) {
	var sc model.ScoreComponents
	err := row.Scan(&sc.ID, &sc.BrandID, &sc.EngineScope, &sc.PromptSOV, &sc.GenerativeAppearance,
		&sc.CitationAuthority, &sc.AnswerQuality, &sc.VoicePresence, &sc.AITraffic,
		&sc.AIConversions, &sc.TotalScore, &sc.SampleCount, &sc.CalculatedAt)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}
