//go:build integration

// Run with:
//
//	go test -v -race -tags=integration ./pkg/store/postgres/...
package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-identity/internal/testutil/containers"
	pgclient "github.com/StricklySoft/stricklysoft-identity/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store/postgres"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store/storetest"
)

func TestStore_Integration(t *testing.T) {
	ctx := context.Background()
	pg := containers.RequirePostgres(t)

	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := postgres.Open(ctx, pgclient.Config{URI: pg.ConnString})
		require.NoError(t, err)

		// Each subtest starts from empty tables.
		conn, err := pgclient.NewClient(ctx, pgclient.Config{URI: pg.ConnString})
		require.NoError(t, err)
		defer conn.Close()
		_, err = conn.Exec(ctx, "TRUNCATE external_logins, users RESTART IDENTITY CASCADE")
		require.NoError(t, err)
		return s
	})
}

func TestOpen_MigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pg := containers.RequirePostgres(t)

	for range 2 {
		s, err := postgres.Open(ctx, pgclient.Config{URI: pg.ConnString})
		require.NoError(t, err)
		require.NoError(t, s.Health(ctx))
		require.NoError(t, s.Close())
	}
}
