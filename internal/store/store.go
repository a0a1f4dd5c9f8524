package store

import (
	"context"

	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/model"
)

// Store archives completed analysis runs. Archiving is optional and off by
// default; NopStore is used when no archive database is configured.
type Store interface {
	SaveResult(ctx context.Context, result *model.RankedResult) error
	Close() error
}

type NopStore struct{}

func (s *NopStore) SaveResult(ctx context.Context, result *model.RankedResult) error {
	_ = ctx
	_ = result
	return nil
}

func (s *NopStore) Close() error {
	return nil
}
