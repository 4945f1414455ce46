package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vpo/internal/model"
)

// FilesRepo provides CRUD access to the files table.
type FilesRepo struct {
	engine *Engine
}

// Files returns a repository bound to this engine.
func (e *Engine) Files() *FilesRepo { return &FilesRepo{engine: e} }

// Upsert inserts a new File or updates the existing row for its Path,
// returning the (possibly newly assigned) ID.
func (r *FilesRepo) Upsert(ctx context.Context, f *model.File) (int64, error) {
	var id int64
	err := r.engine.Transaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, f.Path)
		var existing int64
		switch scanErr := row.Scan(&existing); scanErr {
		case nil:
			_, err := tx.ExecContext(ctx, `
				UPDATE files SET filename=?, directory=?, extension=?, size_bytes=?,
					container=?, partial_hash=?, mod_time=?, last_scan_time=?,
					scan_status=?, scan_error=?
				WHERE id=?`,
				f.Filename, f.Directory, f.Extension, f.SizeBytes, f.Container,
				f.PartialHash, f.ModTime, f.LastScanTime, string(f.ScanStatus), f.ScanError, existing)
			if err != nil {
				return fmt.Errorf("update file: %w", err)
			}
			id = existing
			return nil
		case sql.ErrNoRows:
			res, err := tx.ExecContext(ctx, `
				INSERT INTO files (path, filename, directory, extension, size_bytes,
					container, partial_hash, mod_time, last_scan_time, scan_status, scan_error)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				f.Path, f.Filename, f.Directory, f.Extension, f.SizeBytes, f.Container,
				f.PartialHash, f.ModTime, f.LastScanTime, string(f.ScanStatus), f.ScanError)
			if err != nil {
				return fmt.Errorf("insert file: %w", err)
			}
			id, err = res.LastInsertId()
			return err
		default:
			return fmt.Errorf("lookup existing file: %w", scanErr)
		}
	})
	return id, err
}

// GetByID reads one file by ID using an ephemeral read connection.
func (r *FilesRepo) GetByID(ctx context.Context, id int64) (*model.File, error) {
	conn, closer, err := r.engine.ReadConn(ctx)
	if err != nil {
		return nil, err
	}
	defer closer()

	row := conn.QueryRowContext(ctx, `
		SELECT id, path, filename, directory, extension, size_bytes, container,
			partial_hash, mod_time, last_scan_time, scan_status, scan_error
		FROM files WHERE id = ?`, id)
	return scanFile(row)
}

// GetByPath reads one file by its absolute path.
func (r *FilesRepo) GetByPath(ctx context.Context, path string) (*model.File, error) {
	conn, closer, err := r.engine.ReadConn(ctx)
	if err != nil {
		return nil, err
	}
	defer closer()

	row := conn.QueryRowContext(ctx, `
		SELECT id, path, filename, directory, extension, size_bytes, container,
			partial_hash, mod_time, last_scan_time, scan_status, scan_error
		FROM files WHERE path = ?`, path)
	return scanFile(row)
}

func scanFile(row *sql.Row) (*model.File, error) {
	var f model.File
	var status string
	err := row.Scan(&f.ID, &f.Path, &f.Filename, &f.Directory, &f.Extension,
		&f.SizeBytes, &f.Container, &f.PartialHash, &f.ModTime, &f.LastScanTime,
		&status, &f.ScanError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	f.ScanStatus = model.ScanStatus(status)
	return &f, nil
}

// ListStale returns files whose last_scan_time precedes cutoff, for
// re-introspection sweeps.
func (r *FilesRepo) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]model.File, error) {
	conn, closer, err := r.engine.ReadConn(ctx)
	if err != nil {
		return nil, err
	}
	defer closer()

	rows, err := conn.QueryContext(ctx, `
		SELECT id, path, filename, directory, extension, size_bytes, container,
			partial_hash, mod_time, last_scan_time, scan_status, scan_error
		FROM files WHERE last_scan_time < ? ORDER BY last_scan_time ASC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale files: %w", err)
	}
	defer rows.Close()

	var out []model.File
	for rows.Next() {
		var f model.File
		var status string
		if err := rows.Scan(&f.ID, &f.Path, &f.Filename, &f.Directory, &f.Extension,
			&f.SizeBytes, &f.Container, &f.PartialHash, &f.ModTime, &f.LastScanTime,
			&status, &f.ScanError); err != nil {
			return nil, fmt.Errorf("scan stale file row: %w", err)
		}
		f.ScanStatus = model.ScanStatus(status)
		out = append(out, f)
	}
	return out, rows.Err()
}
