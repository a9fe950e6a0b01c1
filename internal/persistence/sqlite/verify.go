// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CheckMode selects how thoroughly Verify scans a database.
type CheckMode string

const (
	// QuickCheck skips index consistency and runs in O(pages).
	QuickCheck CheckMode = "quick_check"
	// FullCheck also verifies every index.
	FullCheck CheckMode = "integrity_check"
)

// CorruptError lists the problems SQLite reported for a database.
type CorruptError struct {
	Path   string
	Issues []string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("sqlite: %s is corrupt: %s", e.Path, strings.Join(e.Issues, "; "))
}

// Verify opens path read-only and runs the integrity pragma for mode. A
// damaged database yields a *CorruptError; a file SQLite cannot read at all
// yields the driver error.
func Verify(ctx context.Context, path string, mode CheckMode) error {
	db, err := Open(ctx, path, Config{BusyTimeout: 2 * time.Second, MaxOpenConns: 1, ReadOnly: true})
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "PRAGMA "+string(mode))
	if err != nil {
		return fmt.Errorf("sqlite: %s %s: %w", mode, path, err)
	}
	defer rows.Close()

	var issues []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("sqlite: scan %s result: %w", mode, err)
		}
		if !strings.EqualFold(line, "ok") {
			issues = append(issues, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: %s %s: %w", mode, path, err)
	}
	if len(issues) > 0 {
		return &CorruptError{Path: path, Issues: issues}
	}
	return nil
}
