package datastore

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbsmedya/shapecat/internal/logger"
	"github.com/dbsmedya/shapecat/internal/sqlutil"
)

// PreflightError represents a preflight check failure.
type PreflightError struct {
	Check    string
	Message  string
	Tables   []string
	Datasets []int
}

func (e *PreflightError) Error() string {
	switch {
	case len(e.Tables) > 0:
		return fmt.Sprintf("%s: %s (tables: %v)", e.Check, e.Message, e.Tables)
	case len(e.Datasets) > 0:
		return fmt.Sprintf("%s: %s (datasets: %v)", e.Check, e.Message, e.Datasets)
	default:
		return fmt.Sprintf("%s: %s", e.Check, e.Message)
	}
}

// PreflightReport is the outcome of a passing preflight run.
type PreflightReport struct {
	Requested []int
	Present   []int
	Missing   []int // skipped by the build
}

// PreflightChecker verifies a SQL store before a build reads from it.
type PreflightChecker struct {
	store  *SQLStore
	logger *logger.Logger
}

// NewPreflightChecker creates a new preflight checker.
func NewPreflightChecker(store *SQLStore, log *logger.Logger) (*PreflightChecker, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &PreflightChecker{store: store, logger: log}, nil
}

// RunAllChecks checks the tables exist and every requested dataset that is
// present has an exposure. Requested datasets that are absent are reported,
// not rejected.
func (p *PreflightChecker) RunAllChecks(ctx context.Context, ids []int) (*PreflightReport, error) {
	p.logger.Info("Running preflight checks...")

	if err := p.ValidateTablesExist(ctx); err != nil {
		return nil, err
	}

	report := &PreflightReport{Requested: ids}
	for _, id := range ids {
		ok, err := p.store.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			report.Present = append(report.Present, id)
		} else {
			report.Missing = append(report.Missing, id)
		}
	}
	if len(report.Missing) > 0 {
		p.logger.Warnf("Datasets not in store will be skipped: %v", report.Missing)
	}

	if err := p.ValidateExposures(ctx, report.Present); err != nil {
		return nil, err
	}

	p.logger.Info("All preflight checks PASSED")
	return report, nil
}

// ValidateTablesExist checks that the three store tables exist.
func (p *PreflightChecker) ValidateTablesExist(ctx context.Context) error {
	p.logger.Debug("Checking table existence...")

	t := p.store.tables
	tables := []string{t.Datasets, t.Exposures, t.Sources}

	var query string
	switch p.store.driver {
	case "mysql":
		query = `SELECT TABLE_NAME FROM information_schema.TABLES
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME IN (` + sqlutil.Placeholders(len(tables)) + `)`
	default:
		query = `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name IN (` + sqlutil.Placeholders(len(tables)) + `)`
	}

	args := make([]interface{}, len(tables))
	for i, table := range tables {
		args[i] = table
	}

	rows, err := p.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		existing[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var missing []string
	for _, table := range tables {
		if !existing[strings.ToLower(table)] {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return &PreflightError{
			Check:   "TABLE_EXISTENCE_CHECK",
			Message: "Tables not found in store",
			Tables:  missing,
		}
	}

	p.logger.Debugf("Table existence check PASSED (%d tables)", len(tables))
	return nil
}

// ValidateExposures checks that each listed dataset has an exposure row.
func (p *PreflightChecker) ValidateExposures(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	p.logger.Debug("Checking exposures...")

	query := fmt.Sprintf(`SELECT d.id FROM %s d
		LEFT JOIN %s e ON e.dataset_id = d.id
		WHERE e.dataset_id IS NULL AND d.id IN (%s)
		ORDER BY d.id`, p.store.datasets, p.store.exposures, sqlutil.Placeholders(len(ids)))

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := p.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query exposures: %w", err)
	}
	defer rows.Close()

	var missing []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return err
		}
		missing = append(missing, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(missing) > 0 {
		return &PreflightError{
			Check:    "EXPOSURE_CHECK",
			Message:  "Datasets have no exposure",
			Datasets: missing,
		}
	}

	p.logger.Debugf("Exposure check PASSED (%d datasets)", len(ids))
	return nil
}
