package repository

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

var postColumns = []string{"id", "user_id", "type", "body", "media_url", "ts"}

// postRows renvoie les posts post-<hi>..post-<lo> dans l'ordre (ts DESC, id DESC).
func postRows(hi, lo int) *pgxmock.Rows {
	rows := pgxmock.NewRows(postColumns)
	for i := hi; i >= lo; i-- {
		rows.AddRow(fmt.Sprintf("post-%02d", i), "bob", "text", "body", "", int64(1000+i))
	}
	return rows
}

const (
	firstPageSQL = "FROM posts ORDER BY ts DESC, id DESC LIMIT $1"
	nextPageSQL  = "FROM posts WHERE (ts, id) < ($1, $2) ORDER BY ts DESC, id DESC LIMIT $3"
)

func TestPostgresPostLog_KeysetPaging(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(firstPageSQL)).
		WithArgs(5).
		WillReturnRows(postRows(11, 7))
	mock.ExpectQuery(regexp.QuoteMeta(nextPageSQL)).
		WithArgs(int64(1007), "post-07", 5).
		WillReturnRows(postRows(6, 2))
	mock.ExpectQuery(regexp.QuoteMeta(nextPageSQL)).
		WithArgs(int64(1002), "post-02", 5).
		WillReturnRows(postRows(1, 0))
	mock.ExpectQuery(regexp.QuoteMeta(nextPageSQL)).
		WithArgs(int64(1000), "post-00", 5).
		WillReturnRows(pgxmock.NewRows(postColumns))

	log := NewPostgresPostLog(mock)

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
		cursor, err = domain.ParseCursor(domain.SortKey(last.Timestamp, last.ID))
		require.NoError(t, err)
	}

	assert.Equal(t, []int{5, 5, 2, 0}, sizes)
	require.Len(t, seen, 12)
	assert.Equal(t, "post-11", seen[0])
	assert.Equal(t, "post-00", seen[11])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPostLog_AppendUpsertsByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	post := &domain.Post{ID: "p1", UserID: "bob", Type: domain.PostTypeLink, Body: "look", MediaURL: "https://example.com", Timestamp: 42}
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE")).
		WithArgs("p1", "bob", "link", "look", "https://example.com", int64(42)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewPostgresPostLog(mock).Append(context.Background(), post))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFeedLog_PageScansEntries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM feed_entries WHERE (ts, id) < ($1, $2)")).
		WithArgs(int64(50), "f9", 2).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "type", "operation", "body", "ts"}).
			AddRow("f8", "carol", "text", "create", "hi", int64(50)).
			AddRow("f7", "bob", "image", "create", "", int64(49)))

	entries, err := NewPostgresFeedLog(mock).Page(context.Background(), &domain.Cursor{Timestamp: 50, ID: "f9"}, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "f8", entries[0].ID)
	assert.Equal(t, domain.OperationCreate, entries[0].Operation)
	assert.Equal(t, domain.PostTypeImage, entries[1].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPostLog_QueryErrorSurfaces(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(firstPageSQL)).WithArgs(5).WillReturnError(fmt.Errorf("connection reset"))

	_, err = NewPostgresPostLog(mock).Page(context.Background(), nil, 5)
	require.Error(t, err)
}
