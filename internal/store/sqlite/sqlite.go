package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/model"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveResult upserts every row of a ranked result keyed by the query
// fingerprint, so re-running the same analysis replaces its prior archive.
func (s *Store) SaveResult(ctx context.Context, result *model.RankedResult) error {
	if result == nil || len(result.Rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO analysis_rows (
			query_id, rank, group_key, group_label, is_total,
			rank_metric, metrics, share, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_id, group_key)
		DO UPDATE SET
			rank = excluded.rank,
			group_label = excluded.group_label,
			is_total = excluded.is_total,
			rank_metric = excluded.rank_metric,
			metrics = excluded.metrics,
			share = excluded.share,
			archived_at = excluded.archived_at
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	queryID := fingerprint(result.Query)
	now := time.Now().UTC().Format(time.RFC3339)
	for i, row := range result.Rows {
		metrics, encodeErr := encodeMetrics(row)
		if encodeErr != nil {
			_ = tx.Rollback()
			return encodeErr
		}
		var share any
		if row.Share != nil {
			share = row.Share.String()
		}
		_, err = stmt.ExecContext(
			ctx,
			queryID,
			i,
			row.GroupKey,
			row.GroupLabel,
			row.IsTotal,
			result.RankMetric,
			metrics,
			share,
			now,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

func fingerprint(query model.Query) string {
	parts := []string{
		string(query.Source),
		string(query.Frequency),
		strings.Join(query.Periods, ","),
		query.Classification,
		query.ReporterCode,
		strings.Join(query.ProductCodes, ","),
		string(query.Flow),
		string(query.PartnerScope),
		query.PartnerCode,
		query.RankMetric,
	}
	return strings.Join(parts, "|")
}

func encodeMetrics(row model.AggregatedRow) (string, error) {
	values := make(map[string]string, len(row.Metrics))
	for metric, value := range row.Metrics {
		values[metric] = value.String()
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode metrics: %w", err)
	}
	return string(encoded), nil
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS analysis_rows (
			query_id TEXT NOT NULL,
			rank INTEGER NOT NULL,
			group_key TEXT NOT NULL,
			group_label TEXT,
			is_total INTEGER NOT NULL DEFAULT 0,
			rank_metric TEXT NOT NULL,
			metrics TEXT NOT NULL,
			share TEXT,
			archived_at TEXT NOT NULL,
			PRIMARY KEY (query_id, group_key)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}
