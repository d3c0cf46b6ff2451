package queries

import (
	"context"
	"fmt"

	"rewardsetl/internal/storage"
)

// Result is the outcome of one query. Exactly one of Rows and Err is set.
type Result struct {
	Query Query
	Rows  *storage.ResultSet
	Err   error
}

// RunAll runs qs in order. A failing query is recorded in its Result and the
// next one still runs.
func RunAll(ctx context.Context, repo storage.Repository, qs []Query) []Result {
	out := make([]Result, 0, len(qs))
	for _, q := range qs {
		rs, err := repo.Query(ctx, q.SQL)
		if err != nil {
			err = fmt.Errorf("%s: %w", q.Name, err)
		}
		out = append(out, Result{Query: q, Rows: rs, Err: err})
	}
	return out
}
