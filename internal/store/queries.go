package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blackwell-systems/envstate/internal/state"
)

// Environment document operations. Store satisfies state.Persister.

// Read returns the stored environment document, or state.ErrNoState when
// none has been written.
func (s *Store) Read() ([]byte, error) {
	var doc string
	err := s.db.QueryRow(`SELECT document FROM environment WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, state.ErrNoState
	}
	if err != nil {
		return nil, wrapErr("read environment document", err)
	}
	return []byte(doc), nil
}

// Write replaces the environment document.
func (s *Store) Write(data []byte) error {
	query := `
		INSERT INTO environment (id, document, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`
	_, err := s.db.Exec(query, string(data), time.Now().Format(time.RFC3339))
	return wrapErr("write environment document", err)
}

// Restore point operations

// InsertRestorePoint records a new restore point and returns its ID.
func (s *Store) InsertRestorePoint(reason string, pkgCount int, path string) (int64, error) {
	query := `
		INSERT INTO restore_points (created_at, reason, package_count, restore_path)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		time.Now().Format(time.RFC3339),
		reason,
		pkgCount,
		path,
	)
	if err != nil {
		return 0, wrapErr("insert restore point", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get restore point ID: %w", err)
	}

	return id, nil
}

// GetRestorePoint retrieves a restore point by ID.
func (s *Store) GetRestorePoint(id int64) (*RestorePoint, error) {
	query := `
		SELECT id, created_at, reason, package_count, restore_path
		FROM restore_points
		WHERE id = ?
	`

	rp, err := scanRestorePoint(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("restore point %d not found", id)
	}
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get restore point %d", id), err)
	}
	return rp, nil
}

// ListRestorePoints returns all restore points, newest first.
func (s *Store) ListRestorePoints() ([]*RestorePoint, error) {
	query := `
		SELECT id, created_at, reason, package_count, restore_path
		FROM restore_points
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, wrapErr("list restore points", err)
	}
	defer rows.Close()

	var points []*RestorePoint
	for rows.Next() {
		rp, err := scanRestorePoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan restore point row: %w", err)
		}
		points = append(points, rp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating restore points: %w", err)
	}

	return points, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRestorePoint(row rowScanner) (*RestorePoint, error) {
	var rp RestorePoint
	var createdAt string
	var reason sql.NullString
	if err := row.Scan(&rp.ID, &createdAt, &reason, &rp.PackageCount, &rp.Path); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	rp.CreatedAt = t
	rp.Reason = reason.String
	return &rp, nil
}

// InsertRestorePointPackage records a package captured in a restore point.
func (s *Store) InsertRestorePointPackage(restorePointID int64, pkg *RestorePointPackage) error {
	query := `
		INSERT INTO restore_point_packages (restore_point_id, package_name, version, source)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		restorePointID,
		pkg.PackageName,
		pkg.Version,
		pkg.Source,
	)

	if err != nil {
		return wrapErr(fmt.Sprintf("insert restore point package %s", pkg.PackageName), err)
	}

	return nil
}

// GetRestorePointPackages returns the packages of a restore point, by name.
func (s *Store) GetRestorePointPackages(restorePointID int64) ([]*RestorePointPackage, error) {
	query := `
		SELECT restore_point_id, package_name, version, source
		FROM restore_point_packages
		WHERE restore_point_id = ?
		ORDER BY package_name
	`

	rows, err := s.db.Query(query, restorePointID)
	if err != nil {
		return nil, wrapErr("get restore point packages", err)
	}
	defer rows.Close()

	var packages []*RestorePointPackage
	for rows.Next() {
		var pkg RestorePointPackage
		var source sql.NullString

		err := rows.Scan(
			&pkg.RestorePointID,
			&pkg.PackageName,
			&pkg.Version,
			&source,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan restore point package row: %w", err)
		}
		pkg.Source = source.String

		packages = append(packages, &pkg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating restore point packages: %w", err)
	}

	return packages, nil
}

// DeleteRestorePoint removes a restore point and its packages.
func (s *Store) DeleteRestorePoint(id int64) error {
	result, err := s.db.Exec(`DELETE FROM restore_points WHERE id = ?`, id)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete restore point %d", id), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("restore point %d not found", id)
	}

	return nil
}
