package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

// Ces tests tournent contre de vrais serveurs et sont ignorés sans Docker.

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("account"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, EnsureSchema(ctx, pool))
	return pool
}

func TestPostgresPostLog_PagingAgainstServer(t *testing.T) {
	ctx := context.Background()
	log := NewPostgresPostLog(startPostgres(t))

	for i := range 12 {
		require.NoError(t, log.Append(ctx, &domain.Post{
			ID: fmt.Sprintf("post-%02d", i), UserID: "bob", Type: domain.PostTypeText, Body: "body", Timestamp: int64(1000 + i),
		}))
	}
	// Timestamps égaux : départagés par l'id
	for _, id := range []string{"tie-a", "tie-b"} {
		require.NoError(t, log.Append(ctx, &domain.Post{ID: id, UserID: "bob", Type: domain.PostTypeText, Timestamp: 1005}))
	}
	// Réécriture du même id : pas de doublon
	require.NoError(t, log.Append(ctx, &domain.Post{ID: "post-03", UserID: "bob", Type: domain.PostTypeText, Body: "edited", Timestamp: 1003}))

	var (
		cursor *domain.Cursor
		sizes  []int
		seen   []string
	)
	for {
		page, err := log.Page(ctx, cursor, 5)
		require.NoError(t, err)
		sizes = append(sizes, len(page))
		if len(page) == 0 {
			break
		}
		for _, p := range page {
			seen = append(seen, p.ID)
		}
		last := page[len(page)-1]
		cursor = &domain.Cursor{Timestamp: last.Timestamp, ID: last.ID}
	}

	assert.Equal(t, []int{5, 5, 4, 0}, sizes)
	assert.Equal(t, []string{
		"post-11", "post-10", "post-09", "post-08", "post-07",
		"post-06", "tie-b", "tie-a", "post-05", "post-04",
		"post-03", "post-02", "post-01", "post-00",
	}, seen)
}

func TestNeo4jRelationshipRepo_ConditionalWrites(t *testing.T) {
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	ctr, err := tcneo4j.Run(ctx, "neo4j:5", tcneo4j.WithoutAuthentication())
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	uri, err := ctr.BoltUrl(ctx)
	require.NoError(t, err)
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.NoAuth())
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close(ctx) })

	repo := NewNeo4jRelationshipRepo(driver, "bob")
	require.NoError(t, repo.EnsureSchema(ctx))

	require.NoError(t, repo.AddMember(ctx, domain.SetFollowers, "alice"))
	require.ErrorIs(t, repo.AddMember(ctx, domain.SetFollowers, "alice"), domain.ErrAlreadyPresent)

	ok, err := repo.Contains(ctx, domain.SetFollowers, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Contains(ctx, domain.SetFollowing, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	// Un autre compte sur le même graphe ne voit pas les arêtes de bob
	carol := NewNeo4jRelationshipRepo(driver, "carol")
	ok, err = carol.Contains(ctx, domain.SetFollowers, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.AddMember(ctx, domain.SetFollowers, "dave"))
	members, err := repo.AllMembers(ctx, domain.SetFollowers)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "dave"}, members)

	require.NoError(t, repo.RemoveMember(ctx, domain.SetFollowers, "alice"))
	require.ErrorIs(t, repo.RemoveMember(ctx, domain.SetFollowers, "alice"), domain.ErrNotPresent)
	require.ErrorIs(t, repo.RemoveMember(ctx, domain.SetIncomingRequests, "nobody"), domain.ErrNotPresent)
}
