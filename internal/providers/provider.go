package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/model"
)

// RowProvider yields the trade records matching a resolved query. Fetch is
// restartable: calling it again with the same query re-reads the source,
// no cursor state is retained. An empty result is a valid "no trade"
// outcome, not an error.
type RowProvider interface {
	Name() string
	Fetch(ctx context.Context, query model.Query) ([]model.TradeRecord, error)
}

// ErrDataUnavailable marks a bulk fetch whose underlying year file is
// missing. Recoverable: the user can pick a different period.
var ErrDataUnavailable = errors.New("dataset file unavailable")

// ProviderError reports a non-success response from the remote API. The
// fetch is aborted without retry; the caller surfaces status and message.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider request failed (status %d): %s", e.Status, e.Message)
}
