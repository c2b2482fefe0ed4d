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

	"github.com/sells-group/usecase-cli/internal/model"
)

// SQLiteStore implements Store over a local sqlite database. It is the
// zero-infrastructure backend for single-machine runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the sqlite database at path.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// modernc's driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent pipeline updates.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", p)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS versions (
	id                TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL,
	requirement_model TEXT NOT NULL DEFAULT '[]',
	pending_conflicts TEXT NOT NULL DEFAULT '[]',
	processing_errors TEXT NOT NULL DEFAULT '[]',
	merged_text       TEXT NOT NULL DEFAULT '',
	running           INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
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
	is_processed INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS credentials (
	id         TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	secret     TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_units_version_id ON units(version_id);
CREATE INDEX IF NOT EXISTS idx_units_status ON units(version_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_units_file_hash ON units(version_id, file_hash) WHERE file_hash IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_units_text_hash ON units(version_id, text_hash) WHERE text_hash IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_credentials_provider ON credentials(provider, active);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(sqliteMigration, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "sqlite: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

func (s *SQLiteStore) CreateVersion(ctx context.Context, projectID string) (*model.Version, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO versions (id, project_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, projectID, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert version")
	}

	return &model.Version{
		ID:        id,
		ProjectID: projectID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetVersion(ctx context.Context, versionID string) (*model.Version, error) {
	var v model.Version
	var modelJSON, conflictsJSON, errorsJSON []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, requirement_model, pending_conflicts, processing_errors, merged_text, running, created_at, updated_at
		 FROM versions WHERE id = ?`,
		versionID,
	).Scan(&v.ID, &v.ProjectID, &modelJSON, &conflictsJSON, &errorsJSON, &v.MergedText, &v.Running, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Errorf("sqlite: version not found: %s", versionID)
		}
		return nil, eris.Wrapf(err, "sqlite: get version %s", versionID)
	}

	if err := json.Unmarshal(modelJSON, &v.RequirementModel); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal requirement model")
	}
	if err := json.Unmarshal(conflictsJSON, &v.PendingConflicts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal pending conflicts")
	}
	if err := json.Unmarshal(errorsJSON, &v.ProcessingErrors); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal processing errors")
	}
	return &v, nil
}

func (s *SQLiteStore) SetMergedText(ctx context.Context, versionID, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE versions SET merged_text = ?, updated_at = ? WHERE id = ?`,
		text, time.Now().UTC(), versionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set merged text %s", versionID)
	}
	return requireRow(res, "sqlite: version not found: "+versionID)
}

func (s *SQLiteStore) SetRunning(ctx context.Context, versionID string, running bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE versions SET running = ?, updated_at = ? WHERE id = ?`,
		running, time.Now().UTC(), versionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set running %s", versionID)
	}
	return requireRow(res, "sqlite: version not found: "+versionID)
}

func (s *SQLiteStore) SaveRequirementModel(ctx context.Context, versionID string, items []model.UseCase, conflicts []model.Conflict, procErrors []string) error {
	modelJSON, err := marshalOrEmptyArray(items)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal requirement model")
	}
	conflictsJSON, err := marshalOrEmptyArray(conflicts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal conflicts")
	}
	errorsJSON, err := marshalOrEmptyArray(procErrors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal processing errors")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE versions SET requirement_model = ?, pending_conflicts = ?, processing_errors = ?, updated_at = ? WHERE id = ?`,
		modelJSON, conflictsJSON, errorsJSON, time.Now().UTC(), versionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save requirement model %s", versionID)
	}
	return requireRow(res, "sqlite: version not found: "+versionID)
}

func (s *SQLiteStore) AppendProcessingError(ctx context.Context, versionID, message string) error {
	// Read-modify-write; the single-connection pool serializes this.
	var errorsJSON []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT processing_errors FROM versions WHERE id = ?`, versionID,
	).Scan(&errorsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return eris.Errorf("sqlite: version not found: %s", versionID)
		}
		return eris.Wrapf(err, "sqlite: read processing errors %s", versionID)
	}

	var msgs []string
	if err := json.Unmarshal(errorsJSON, &msgs); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal processing errors")
	}
	msgs = append(msgs, message)
	updated, err := json.Marshal(msgs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal processing errors")
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE versions SET processing_errors = ?, updated_at = ? WHERE id = ?`,
		updated, time.Now().UTC(), versionID,
	)
	return eris.Wrapf(err, "sqlite: append processing error %s", versionID)
}

func (s *SQLiteStore) ClearProcessingErrors(ctx context.Context, versionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE versions SET processing_errors = '[]', updated_at = ? WHERE id = ?`,
		time.Now().UTC(), versionID,
	)
	return eris.Wrapf(err, "sqlite: clear processing errors %s", versionID)
}

func (s *SQLiteStore) CreateUnit(ctx context.Context, unit *model.ExtractionUnit) error {
	if unit.ID == "" {
		unit.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	unit.CreatedAt = now
	unit.UpdatedAt = now
	if unit.Status == "" {
		unit.Status = model.StatusPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO units (id, version_id, kind, filename, raw_text, cleaned_text, file_hash, text_hash, status, is_processed, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		unit.ID, unit.VersionID, string(unit.Kind), unit.Filename, unit.RawText, unit.CleanedText,
		nullable(unit.FileHash), nullable(unit.TextHash), string(unit.Status), unit.Processed, unit.Error, now, now,
	)
	return eris.Wrap(err, "sqlite: insert unit")
}

func (s *SQLiteStore) GetUnits(ctx context.Context, unitIDs []string) ([]model.ExtractionUnit, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(unitIDs)), ",")
	args := make([]any, len(unitIDs))
	for i, id := range unitIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE id IN (`+placeholders+`) ORDER BY created_at`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get units")
	}
	defer rows.Close()
	return scanUnitRows(rows)
}

func (s *SQLiteStore) ListUnits(ctx context.Context, versionID string, filter UnitFilter) ([]model.ExtractionUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE version_id = ?`
	args := []any{versionID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.UnprocessedOnly {
		query += ` AND is_processed = 0`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list units")
	}
	defer rows.Close()
	return scanUnitRows(rows)
}

func (s *SQLiteStore) ListFingerprints(ctx context.Context, versionID string) (Fingerprints, error) {
	fp := Fingerprints{Files: map[string]struct{}{}, Texts: map[string]struct{}{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(file_hash, ''), COALESCE(text_hash, '') FROM units WHERE version_id = ?`,
		versionID,
	)
	if err != nil {
		return fp, eris.Wrap(err, "sqlite: list fingerprints")
	}
	defer rows.Close()

	for rows.Next() {
		var fileHash, textHash string
		if err := rows.Scan(&fileHash, &textHash); err != nil {
			return fp, eris.Wrap(err, "sqlite: scan fingerprint")
		}
		if fileHash != "" {
			fp.Files[fileHash] = struct{}{}
		}
		if textHash != "" {
			fp.Texts[textHash] = struct{}{}
		}
	}
	return fp, eris.Wrap(rows.Err(), "sqlite: list fingerprints iterate")
}

func (s *SQLiteStore) UpdateUnitExtraction(ctx context.Context, unitID, rawText, cleanedText string, status model.ProcessingStatus, extractErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE units SET raw_text = ?, cleaned_text = ?, status = ?, error = ?, updated_at = ? WHERE id = ?`,
		rawText, cleanedText, string(status), extractErr, time.Now().UTC(), unitID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update unit extraction %s", unitID)
	}
	return requireRow(res, "sqlite: unit not found: "+unitID)
}

func (s *SQLiteStore) MarkUnitsProcessed(ctx context.Context, unitIDs []string) error {
	if len(unitIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(unitIDs)), ",")
	args := []any{time.Now().UTC()}
	for _, id := range unitIDs {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE units SET is_processed = 1, updated_at = ? WHERE id IN (`+placeholders+`)`,
		args...,
	)
	return eris.Wrap(err, "sqlite: mark units processed")
}

func (s *SQLiteStore) AddCredential(ctx context.Context, provider, secret string) (*model.Credential, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, provider, secret, active, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`,
		id, provider, secret, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert credential")
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

func (s *SQLiteStore) ListCredentials(ctx context.Context, provider string) ([]model.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider, secret, active, created_at, updated_at FROM credentials WHERE provider = ? ORDER BY updated_at DESC`,
		provider,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list credentials")
	}
	defer rows.Close()
	return scanCredentialRows(rows)
}

func (s *SQLiteStore) ListActiveCredentials(ctx context.Context, provider string) ([]model.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider, secret, active, created_at, updated_at FROM credentials WHERE provider = ? AND active = 1 ORDER BY updated_at DESC`,
		provider,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active credentials")
	}
	defer rows.Close()
	return scanCredentialRows(rows)
}

func (s *SQLiteStore) DeactivateCredential(ctx context.Context, credentialID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), credentialID,
	)
	return eris.Wrapf(err, "sqlite: deactivate credential %s", credentialID)
}

func scanUnitRows(rows *sql.Rows) ([]model.ExtractionUnit, error) {
	var units []model.ExtractionUnit
	for rows.Next() {
		var u model.ExtractionUnit
		var kind, status string
		if err := rows.Scan(&u.ID, &u.VersionID, &kind, &u.Filename, &u.RawText, &u.CleanedText,
			&u.FileHash, &u.TextHash, &status, &u.Processed, &u.Error, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unit")
		}
		u.Kind = model.SourceKind(kind)
		u.Status = model.ProcessingStatus(status)
		units = append(units, u)
	}
	return units, eris.Wrap(rows.Err(), "sqlite: iterate units")
}

func scanCredentialRows(rows *sql.Rows) ([]model.Credential, error) {
	var creds []model.Credential
	for rows.Next() {
		var c model.Credential
		if err := rows.Scan(&c.ID, &c.Provider, &c.Secret, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan credential")
		}
		creds = append(creds, c)
	}
	return creds, eris.Wrap(rows.Err(), "sqlite: iterate credentials")
}

func requireRow(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.New(notFound)
	}
	return nil
}
