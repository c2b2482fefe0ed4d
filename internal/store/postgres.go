package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/usecase-cli/internal/model"
)

// pool is the minimal pgx pool surface the store uses. pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
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

	p, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: p, closeFn: p.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS versions (
	id                TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL,
	requirement_model JSONB NOT NULL DEFAULT '[]',
	pending_conflicts JSONB NOT NULL DEFAULT '[]',
	processing_errors JSONB NOT NULL DEFAULT '[]',
	merged_text       TEXT NOT NULL DEFAULT '',
	running           BOOLEAN NOT NULL DEFAULT false,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS units (
	id           TEXT PRIMARY KEY,
	version_id   TEXT NOT NULL REFERENCES versions(id),
	kind         TEXT NOT NULL,
	filename     TEXT NOT NULL DEFAULT '',
	raw_text     TEXT NOT NULL DEFAULT '',
	cleaned_text TEXT NOT NULL DEFAULT '',
	file_hash    TEXT,
	text_hash    TEXT,
	status       TEXT NOT NULL DEFAULT 'pending',
	is_processed BOOLEAN NOT NULL DEFAULT false,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS credentials (
	id         TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	secret     TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_units_version_id ON units(version_id);
CREATE INDEX IF NOT EXISTS idx_units_status ON units(version_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_units_file_hash ON units(version_id, file_hash) WHERE file_hash IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_units_text_hash ON units(version_id, text_hash) WHERE text_hash IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_credentials_provider ON credentials(provider, active);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
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

func (s *PostgresStore) CreateVersion(ctx context.Context, projectID string) (*model.Version, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO versions (id, project_id, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		id, projectID, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert version")
	}

	return &model.Version{
		ID:        id,
		ProjectID: projectID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, versionID string) (*model.Version, error) {
	var v model.Version
	var modelJSON, conflictsJSON, errorsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, requirement_model, pending_conflicts, processing_errors, merged_text, running, created_at, updated_at
		 FROM versions WHERE id = $1`,
		versionID,
	).Scan(&v.ID, &v.ProjectID, &modelJSON, &conflictsJSON, &errorsJSON, &v.MergedText, &v.Running, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("postgres: version not found: %s", versionID)
		}
		return nil, eris.Wrapf(err, "postgres: get version %s", versionID)
	}

	if err := json.Unmarshal(modelJSON, &v.RequirementModel); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal requirement model")
	}
	if err := json.Unmarshal(conflictsJSON, &v.PendingConflicts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal pending conflicts")
	}
	if err := json.Unmarshal(errorsJSON, &v.ProcessingErrors); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal processing errors")
	}
	return &v, nil
}

func (s *PostgresStore) SetMergedText(ctx context.Context, versionID, text string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE versions SET merged_text = $1, updated_at = $2 WHERE id = $3`,
		text, time.Now().UTC(), versionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set merged text %s", versionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: version not found: %s", versionID)
	}
	return nil
}

func (s *PostgresStore) SetRunning(ctx context.Context, versionID string, running bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE versions SET running = $1, updated_at = $2 WHERE id = $3`,
		running, time.Now().UTC(), versionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set running %s", versionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: version not found: %s", versionID)
	}
	return nil
}

func (s *PostgresStore) SaveRequirementModel(ctx context.Context, versionID string, items []model.UseCase, conflicts []model.Conflict, procErrors []string) error {
	modelJSON, err := marshalOrEmptyArray(items)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal requirement model")
	}
	conflictsJSON, err := marshalOrEmptyArray(conflicts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal conflicts")
	}
	errorsJSON, err := marshalOrEmptyArray(procErrors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal processing errors")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE versions SET requirement_model = $1, pending_conflicts = $2, processing_errors = $3, updated_at = $4 WHERE id = $5`,
		modelJSON, conflictsJSON, errorsJSON, time.Now().UTC(), versionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save requirement model %s", versionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: version not found: %s", versionID)
	}
	return nil
}

func (s *PostgresStore) AppendProcessingError(ctx context.Context, versionID, message string) error {
	msgJSON, err := json.Marshal(message)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal error message")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE versions SET processing_errors = processing_errors || $1::jsonb, updated_at = $2 WHERE id = $3`,
		msgJSON, time.Now().UTC(), versionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: append processing error %s", versionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: version not found: %s", versionID)
	}
	return nil
}

func (s *PostgresStore) ClearProcessingErrors(ctx context.Context, versionID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE versions SET processing_errors = '[]'::jsonb, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), versionID,
	)
	return eris.Wrapf(err, "postgres: clear processing errors %s", versionID)
}

func (s *PostgresStore) CreateUnit(ctx context.Context, unit *model.ExtractionUnit) error {
	if unit.ID == "" {
		unit.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	unit.CreatedAt = now
	unit.UpdatedAt = now
	if unit.Status == "" {
		unit.Status = model.StatusPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO units (id, version_id, kind, filename, raw_text, cleaned_text, file_hash, text_hash, status, is_processed, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		unit.ID, unit.VersionID, string(unit.Kind), unit.Filename, unit.RawText, unit.CleanedText,
		nullable(unit.FileHash), nullable(unit.TextHash), string(unit.Status), unit.Processed, unit.Error, now, now,
	)
	return eris.Wrap(err, "postgres: insert unit")
}

const unitColumns = `id, version_id, kind, filename, raw_text, cleaned_text, COALESCE(file_hash, ''), COALESCE(text_hash, ''), status, is_processed, error, created_at, updated_at`

func (s *PostgresStore) GetUnits(ctx context.Context, unitIDs []string) ([]model.ExtractionUnit, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+unitColumns+` FROM units WHERE id = ANY($1) ORDER BY created_at`,
		unitIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get units")
	}
	defer rows.Close()
	return scanUnits(rows)
}

func (s *PostgresStore) ListUnits(ctx context.Context, versionID string, filter UnitFilter) ([]model.ExtractionUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE version_id = $1`
	args := []any{versionID}
	if filter.Status != "" {
		query += ` AND status = $2`
		args = append(args, string(filter.Status))
	}
	if filter.UnprocessedOnly {
		query += ` AND is_processed = false`
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list units")
	}
	defer rows.Close()
	return scanUnits(rows)
}

func (s *PostgresStore) ListFingerprints(ctx context.Context, versionID string) (Fingerprints, error) {
	fp := Fingerprints{Files: map[string]struct{}{}, Texts: map[string]struct{}{}}

	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(file_hash, ''), COALESCE(text_hash, '') FROM units WHERE version_id = $1`,
		versionID,
	)
	if err != nil {
		return fp, eris.Wrap(err, "postgres: list fingerprints")
	}
	defer rows.Close()

	for rows.Next() {
		var fileHash, textHash string
		if err := rows.Scan(&fileHash, &textHash); err != nil {
			return fp, eris.Wrap(err, "postgres: scan fingerprint")
		}
		if fileHash != "" {
			fp.Files[fileHash] = struct{}{}
		}
		if textHash != "" {
			fp.Texts[textHash] = struct{}{}
		}
	}
	return fp, eris.Wrap(rows.Err(), "postgres: list fingerprints iterate")
}

func (s *PostgresStore) UpdateUnitExtraction(ctx context.Context, unitID, rawText, cleanedText string, status model.ProcessingStatus, extractErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE units SET raw_text = $1, cleaned_text = $2, status = $3, error = $4, updated_at = $5 WHERE id = $6`,
		rawText, cleanedText, string(status), extractErr, time.Now().UTC(), unitID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update unit extraction %s", unitID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: unit not found: %s", unitID)
	}
	return nil
}

func (s *PostgresStore) MarkUnitsProcessed(ctx context.Context, unitIDs []string) error {
	if len(unitIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE units SET is_processed = true, updated_at = $1 WHERE id = ANY($2)`,
		time.Now().UTC(), unitIDs,
	)
	return eris.Wrap(err, "postgres: mark units processed")
}

func (s *PostgresStore) AddCredential(ctx context.Context, provider, secret string) (*model.Credential, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (id, provider, secret, active, created_at, updated_at) VALUES ($1, $2, $3, true, $4, $5)`,
		id, provider, secret, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert credential")
	}

	return &model.Credential{
		ID:        id,
		Provider:  provider,
		Secret:    secret,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) ListCredentials(ctx context.Context, provider string) ([]model.Credential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, provider, secret, active, created_at, updated_at FROM credentials WHERE provider = $1 ORDER BY updated_at DESC`,
		provider,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list credentials")
	}
	defer rows.Close()
	return scanCredentials(rows)
}

// ListActiveCredentials returns active credentials most-recently-updated
// first, the order the gateway rotates through.
func (s *PostgresStore) ListActiveCredentials(ctx context.Context, provider string) ([]model.Credential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, provider, secret, active, created_at, updated_at FROM credentials WHERE provider = $1 AND active = true ORDER BY updated_at DESC`,
		provider,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active credentials")
	}
	defer rows.Close()
	return scanCredentials(rows)
}

// DeactivateCredential is idempotent: deactivating an already-inactive or
// unknown credential is not an error.
func (s *PostgresStore) DeactivateCredential(ctx context.Context, credentialID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE credentials SET active = false, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), credentialID,
	)
	return eris.Wrapf(err, "postgres: deactivate credential %s", credentialID)
}

func scanUnits(rows pgx.Rows) ([]model.ExtractionUnit, error) {
	var units []model.ExtractionUnit
	for rows.Next() {
		var u model.ExtractionUnit
		var kind, status string
		if err := rows.Scan(&u.ID, &u.VersionID, &kind, &u.Filename, &u.RawText, &u.CleanedText,
			&u.FileHash, &u.TextHash, &status, &u.Processed, &u.Error, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan unit")
		}
		u.Kind = model.SourceKind(kind)
		u.Status = model.ProcessingStatus(status)
		units = append(units, u)
	}
	return units, eris.Wrap(rows.Err(), "postgres: iterate units")
}

func scanCredentials(rows pgx.Rows) ([]model.Credential, error) {
	var creds []model.Credential
	for rows.Next() {
		var c model.Credential
		if err := rows.Scan(&c.ID, &c.Provider, &c.Secret, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan credential")
		}
		creds = append(creds, c)
	}
	return creds, eris.Wrap(rows.Err(), "postgres: iterate credentials")
}

// nullable maps empty strings to NULL so the partial unique indexes on the
// hash columns only see real fingerprints.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// marshalOrEmptyArray marshals v, mapping nil slices to a JSON empty array.
func marshalOrEmptyArray[T any](v []T) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}
