//go:build integration
// +build integration

package report

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostgresSink(t *testing.T) {
	url := os.Getenv("TASKRANK_TEST_DB")
	if url == "" {
		t.Skip("TASKRANK_TEST_DB is not set")
	}
	ctx := context.Background()
	sink, err := ConnectPostgres(ctx, url)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, sink.Close())
	}()

	r := sample()
	require.NoError(t, sink.Write(ctx, r))

	rows, err := sink.Results(ctx, r.RunID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "solved_tasks", rows[0].Name)
	require.Equal(t, 12.0, rows[0].Value.Float64)
	require.False(t, rows[2].Value.Valid)
}
