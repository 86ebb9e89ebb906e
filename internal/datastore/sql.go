package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dbsmedya/shapecat/internal/config"
	"github.com/dbsmedya/shapecat/internal/sqlutil"
	"github.com/dbsmedya/shapecat/internal/types"
)

// SQLStore keeps datasets in three tables of a MySQL or SQLite database.
type SQLStore struct {
	db        *sql.DB
	driver    string
	tables    config.TableConfig
	datasets  string
	exposures string
	sources   string
}

// NewSQLStore validates and quotes the configured table names.
func NewSQLStore(db *sql.DB, driver string, tables config.TableConfig) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is nil")
	}
	quoted, err := sqlutil.QuoteAll(tables.Datasets, tables.Exposures, tables.Sources)
	if err != nil {
		return nil, err
	}
	return &SQLStore{
		db:        db,
		driver:    driver,
		tables:    tables,
		datasets:  quoted[0],
		exposures: quoted[1],
		sources:   quoted[2],
	}, nil
}

// DB returns the underlying connection pool.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Migrate creates the store tables if they do not exist.
// The DDL sticks to types both MySQL and SQLite accept.
func (s *SQLStore) Migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER NOT NULL PRIMARY KEY,
			psf_sigma DOUBLE NOT NULL
		)`, s.datasets),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			dataset_id INTEGER NOT NULL PRIMARY KEY,
			x0 INTEGER NOT NULL,
			y0 INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			pixels LONGBLOB NOT NULL,
			variance LONGBLOB NOT NULL,
			mask LONGBLOB NOT NULL
		)`, s.exposures),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			dataset_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			source_id BIGINT NOT NULL,
			psf_flux DOUBLE NULL,
			psf_flux_err DOUBLE NULL,
			x DOUBLE NOT NULL,
			y DOUBLE NOT NULL,
			ixx DOUBLE NULL,
			iyy DOUBLE NULL,
			ixy DOUBLE NULL,
			flags BIGINT NOT NULL,
			PRIMARY KEY (dataset_id, seq)
		)`, s.sources),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate store: %w", err)
		}
	}
	return nil
}

// PutDataset replaces dataset d in a single transaction.
func (s *SQLStore) PutDataset(ctx context.Context, d Dataset) error {
	if d.Exposure == nil {
		return fmt.Errorf("dataset %d has no exposure", d.ID)
	}
	if err := d.Exposure.Validate(); err != nil {
		return fmt.Errorf("dataset %d: %w", d.ID, err)
	}
	if err := d.PSF.Validate(); err != nil {
		return fmt.Errorf("dataset %d: %w", d.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{s.sources, s.exposures} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE dataset_id = ?", table), d.ID); err != nil {
			return fmt.Errorf("failed to clear dataset %d: %w", d.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.datasets), d.ID); err != nil {
		return fmt.Errorf("failed to clear dataset %d: %w", d.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, psf_sigma) VALUES (?, ?)", s.datasets),
		d.ID, d.PSF.Sigma); err != nil {
		return fmt.Errorf("failed to insert dataset %d: %w", d.ID, err)
	}

	exp := d.Exposure
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (dataset_id, x0, y0, width, height, pixels, variance, mask) VALUES (%s)",
			s.exposures, sqlutil.Placeholders(8)),
		d.ID, exp.X0, exp.Y0, exp.Width, exp.Height,
		encodeFloats(exp.Image), encodeFloats(exp.Variance), encodeMask(exp.Mask)); err != nil {
		return fmt.Errorf("failed to insert exposure for dataset %d: %w", d.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (dataset_id, seq, source_id, psf_flux, psf_flux_err, x, y, ixx, iyy, ixy, flags) VALUES (%s)",
		s.sources, sqlutil.Placeholders(11)))
	if err != nil {
		return fmt.Errorf("failed to prepare source insert: %w", err)
	}
	defer stmt.Close()

	for seq, src := range d.Sources {
		if _, err := stmt.ExecContext(ctx, d.ID, seq, src.ID,
			nullable(src.PsfFlux), nullable(src.PsfFluxErr), src.X, src.Y,
			nullable(src.Ixx), nullable(src.Iyy), nullable(src.Ixy), src.Flags); err != nil {
			return fmt.Errorf("failed to insert source %d of dataset %d: %w", src.ID, d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dataset %d: %w", d.ID, err)
	}
	return nil
}

// Exists implements Store.
func (s *SQLStore) Exists(ctx context.Context, id int) (bool, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", s.datasets)
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check dataset %d: %w", id, err)
	}
	return count > 0, nil
}

// PSF implements Store.
func (s *SQLStore) PSF(ctx context.Context, id int) (*types.PSF, error) {
	psf := &types.PSF{}
	query := fmt.Sprintf("SELECT psf_sigma FROM %s WHERE id = ?", s.datasets)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&psf.Sigma)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("psf of dataset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read psf of dataset %d: %w", id, err)
	}
	return psf, nil
}

// Exposure implements Store.
func (s *SQLStore) Exposure(ctx context.Context, id int) (*types.Exposure, error) {
	var (
		x0, y0, width, height     int
		pixels, variance, maskBuf []byte
	)
	query := fmt.Sprintf("SELECT x0, y0, width, height, pixels, variance, mask FROM %s WHERE dataset_id = ?", s.exposures)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&x0, &y0, &width, &height, &pixels, &variance, &maskBuf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("exposure of dataset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read exposure of dataset %d: %w", id, err)
	}

	n := width * height
	exp := &types.Exposure{X0: x0, Y0: y0, Width: width, Height: height}
	if exp.Image, err = decodeFloats(pixels, n); err != nil {
		return nil, fmt.Errorf("exposure of dataset %d: image: %w", id, err)
	}
	if exp.Variance, err = decodeFloats(variance, n); err != nil {
		return nil, fmt.Errorf("exposure of dataset %d: variance: %w", id, err)
	}
	if exp.Mask, err = decodeMask(maskBuf, n); err != nil {
		return nil, fmt.Errorf("exposure of dataset %d: %w", id, err)
	}
	return exp, nil
}

// Sources implements Store.
func (s *SQLStore) Sources(ctx context.Context, id int) ([]types.Source, error) {
	query := fmt.Sprintf(`SELECT source_id, psf_flux, psf_flux_err, x, y, ixx, iyy, ixy, flags
		FROM %s WHERE dataset_id = ? ORDER BY seq`, s.sources)
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources of dataset %d: %w", id, err)
	}
	defer rows.Close()

	var sources []types.Source
	for rows.Next() {
		var (
			src                           types.Source
			flux, fluxErr, ixx, iyy, ixy sql.NullFloat64
		)
		if err := rows.Scan(&src.ID, &flux, &fluxErr, &src.X, &src.Y, &ixx, &iyy, &ixy, &src.Flags); err != nil {
			return nil, fmt.Errorf("failed to scan source of dataset %d: %w", id, err)
		}
		src.PsfFlux = orNaN(flux)
		src.PsfFluxErr = orNaN(fluxErr)
		src.Ixx = orNaN(ixx)
		src.Iyy = orNaN(iyy)
		src.Ixy = orNaN(ixy)
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sources, nil
}

// Datasets implements Store.
func (s *SQLStore) Datasets(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY id", s.datasets))
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Summaries implements Store.
func (s *SQLStore) Summaries(ctx context.Context) ([]Summary, error) {
	query := fmt.Sprintf(`SELECT d.id, d.psf_sigma, e.width, e.height,
			(SELECT COUNT(*) FROM %s s WHERE s.dataset_id = d.id)
		FROM %s d
		LEFT JOIN %s e ON e.dataset_id = d.id
		ORDER BY d.id`, s.sources, s.datasets, s.exposures)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize datasets: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum           Summary
			width, height sql.NullInt64
		)
		if err := rows.Scan(&sum.ID, &sum.PSFSigma, &width, &height, &sum.Sources); err != nil {
			return nil, err
		}
		sum.HasExposure = width.Valid
		sum.Width = int(width.Int64)
		sum.Height = int(height.Int64)
		out = append(out, sum)
	}
	return out, rows.Err()
}
