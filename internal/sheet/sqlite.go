package sheet

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SqliteSink keeps the dashboard in a local sqlite table instead of Google
// Sheets. Each worksheet row maps to one record holding its current cells
// and style; only the latest contents are kept, never history.
type SqliteSink struct {
	db *sql.DB
}

func OpenSqliteSink(path string) (*SqliteSink, error) {
	if path == "" {
		path = "data/dashboard.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	s := &SqliteSink{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqliteSink) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dashboard_rows (
			sheet TEXT NOT NULL,
			row_idx INTEGER NOT NULL,
			cells TEXT NOT NULL,
			style TEXT,
			updated_at TEXT,
			PRIMARY KEY (sheet, row_idx)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_dashboard_rows_sheet ON dashboard_rows(sheet);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SqliteSink) ReadAllRows(ctx context.Context, sheet string) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_idx, cells FROM dashboard_rows WHERE sheet = ? ORDER BY row_idx`, sheet)
	if err != nil {
		return nil, fmt.Errorf("query rows of %q: %w", sheet, err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var idx int
		var cellsJSON string
		if err := rows.Scan(&idx, &cellsJSON); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(cellsJSON), &cells); err != nil {
			return nil, fmt.Errorf("decode cells of %s row %d: %w", sheet, idx, err)
		}
		// Preserve listing order including gaps, so row numbers stay 1-based.
		for len(out) < idx-1 {
			out = append(out, nil)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows of %q: %w", sheet, err)
	}
	return out, nil
}

func (s *SqliteSink) WriteRange(ctx context.Context, sheet, rng string, values []any) error {
	sp, err := parseSpan(rng)
	if err != nil {
		return err
	}
	cells, err := s.rowCells(ctx, sheet, sp.Row)
	if err != nil {
		return err
	}
	for i, v := range values {
		col := sp.StartCol + i
		if col > sp.EndCol {
			break
		}
		for len(cells) <= col {
			cells = append(cells, "")
		}
		cells[col] = fmt.Sprint(v)
	}
	return s.saveRow(ctx, sheet, sp.Row, cells)
}

func (s *SqliteSink) WriteFormula(ctx context.Context, sheet, cell, formula string) error {
	return s.WriteRange(ctx, sheet, cell, []any{formula})
}

func (s *SqliteSink) ApplyStyle(ctx context.Context, sheet, rng string, style Style) error {
	sp, err := parseSpan(rng)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE dashboard_rows SET style = ?, updated_at = ? WHERE sheet = ? AND row_idx = ?`,
		string(style), time.Now().Format(time.RFC3339), sheet, sp.Row)
	if err != nil {
		return fmt.Errorf("style %s row %d: %w", sheet, sp.Row, err)
	}
	return nil
}

// SeedRow inserts or replaces one raw listing row, used to load a watchlist
// into an empty database.
func (s *SqliteSink) SeedRow(ctx context.Context, sheet string, row int, cells []string) error {
	return s.saveRow(ctx, sheet, row, cells)
}

// RowStyle reports the stored style of one row.
func (s *SqliteSink) RowStyle(ctx context.Context, sheet string, row int) (Style, error) {
	var style sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT style FROM dashboard_rows WHERE sheet = ? AND row_idx = ?`, sheet, row).Scan(&style)
	if err != nil {
		return "", fmt.Errorf("row style %s %d: %w", sheet, row, err)
	}
	return Style(style.String), nil
}

func (s *SqliteSink) rowCells(ctx context.Context, sheet string, row int) ([]string, error) {
	var cellsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT cells FROM dashboard_rows WHERE sheet = ? AND row_idx = ?`, sheet, row).Scan(&cellsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load row %s %d: %w", sheet, row, err)
	}
	var cells []string
	if err := json.Unmarshal([]byte(cellsJSON), &cells); err != nil {
		return nil, fmt.Errorf("decode row %s %d: %w", sheet, row, err)
	}
	return cells, nil
}

func (s *SqliteSink) saveRow(ctx context.Context, sheet string, row int, cells []string) error {
	data, err := json.Marshal(cells)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dashboard_rows (sheet, row_idx, cells, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(sheet, row_idx) DO UPDATE SET cells = excluded.cells, updated_at = excluded.updated_at`,
		sheet, row, string(data), time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save row %s %d: %w", sheet, row, err)
	}
	return nil
}

func (s *SqliteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
