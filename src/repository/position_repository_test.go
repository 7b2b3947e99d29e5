package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paperledger/src/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPosition(id, owner, symbol string, openedAt time.Time) *model.Position {
	marker := openedAt.Unix()
	return &model.Position{
		ID:         id,
		Owner:      owner,
		Symbol:     symbol,
		Side:       model.SideLong,
		Amount:     model.NewDecimal(decimal.RequireFromString("1.5")),
		OpenPrice:  model.NewDecimal(decimal.NewFromInt(50000)),
		OpenedAt:   openedAt,
		OpenMarker: &marker,
	}
}

func TestPositionRepository_CreateGetAndList(t *testing.T) {
	repo := NewPositionRepository(newSQLiteDB(t))
	ctx := context.Background()
	openedAt := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, openPosition("a1", "alice", "BTCUSDT", openedAt)))
	require.NoError(t, repo.Create(ctx, openPosition("a2", "alice", "ETHUSDT", openedAt.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, openPosition("b1", "bob", "BTCUSDT", openedAt)))

	got, err := repo.Get(ctx, "a1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, got.IsOpen())
	assert.False(t, got.ClosePrice.Valid)

	_, err = repo.Get(ctx, "a1", "bob")
	require.ErrorIs(t, err, model.ErrNotFound, "id lookups are scoped to the owner")

	open, err := repo.ListOpen(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, open, 2)

	open, err = repo.ListOpen(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestPositionRepository_CloseIfOpenOnce(t *testing.T) {
	repo := NewPositionRepository(newSQLiteDB(t))
	ctx := context.Background()
	openedAt := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, openPosition("a1", "alice", "BTCUSDT", openedAt)))

	closing := model.PositionClose{
		ClosedAt:   openedAt.Add(time.Hour),
		ClosePrice: decimal.NewFromInt(51000),
		Profit:     decimal.RequireFromString("1423.5"),
	}

	err := repo.CloseIfOpen(ctx, "a1", "bob", closing)
	require.ErrorIs(t, err, model.ErrAlreadyClosed, "other owners cannot match the precondition")

	require.NoError(t, repo.CloseIfOpen(ctx, "a1", "alice", closing))

	second := closing
	second.Profit = decimal.NewFromInt(1)
	err = repo.CloseIfOpen(ctx, "a1", "alice", second)
	require.ErrorIs(t, err, model.ErrAlreadyClosed)

	got, err := repo.Get(ctx, "a1", "alice")
	require.NoError(t, err)
	assert.False(t, got.IsOpen())
	require.NotNil(t, got.ClosedAt)
	assert.True(t, got.ClosePrice.Valid)
	assert.True(t, got.ClosePrice.Decimal.Equal(decimal.NewFromInt(51000)))
	assert.True(t, got.Profit.Decimal.Equal(decimal.RequireFromString("1423.5")), "first close wins, got %s", got.Profit.Decimal)

	open, err := repo.ListOpen(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestPositionRepository_ConcurrentCloseHasOneWinner(t *testing.T) {
	repo := NewPositionRepository(newSQLiteDB(t))
	ctx := context.Background()
	openedAt := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, openPosition("a1", "alice", "BTCUSDT", openedAt)))

	const callers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		losers  int
		start   = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := repo.CloseIfOpen(ctx, "a1", "alice", model.PositionClose{
				ClosedAt:   openedAt.Add(time.Hour),
				ClosePrice: decimal.NewFromInt(int64(51000 + i)),
				Profit:     decimal.NewFromInt(int64(i)),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, model.ErrAlreadyClosed):
				losers++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, callers-1, losers)
}

func TestPositionRepository_CloseIfOpenStatement(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPositionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "positions" SET "close_price"=\$1,"closed_at"=\$2,"open_marker"=\$3,"profit"=\$4 WHERE id = \$5 AND owner = \$6 AND open_marker IS NOT NULL`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), nil, sqlmock.AnyArg(), "a1", "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CloseIfOpen(context.Background(), "a1", "alice", model.PositionClose{
		ClosedAt:   time.Now().UTC(),
		ClosePrice: decimal.NewFromInt(51000),
		Profit:     decimal.NewFromInt(949),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPositionRepository_ListOpenFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPositionRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "positions" WHERE owner = \$1 AND open_marker IS NOT NULL`).
		WithArgs("alice").
		WillReturnError(errors.New("read timeout"))

	_, err := repo.ListOpen(context.Background(), "alice")
	require.ErrorIs(t, err, model.ErrStoreUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}
