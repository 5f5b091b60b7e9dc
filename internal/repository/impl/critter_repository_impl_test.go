package impl

import (
	"context"
	"errors"
	"testing"
	"time"

	"critter-coliseum/internal/model/battlemodel"
	"critter-coliseum/internal/pkg/xerrors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var critterCols = []string{"id", "created_at", "is_reserved", "attributes_json", "experience", "num_wins", "num_losses"}

func critterRow(rows *sqlmock.Rows, id string, reserved bool, attrs string, exp int64) *sqlmock.Rows {
	return rows.AddRow(id, time.Now(), reserved, []byte(attrs), exp, int64(0), int64(0))
}

func TestCritterRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	roll := func() int { return 7 }
	repo := NewCritterRepositoryWithRoll(db, roll)

	rows := critterRow(sqlmock.NewRows(critterCols), "critter-1", false,
		`{"strength":7,"agility":7,"wit":7,"senses":7,"toughness":7}`, 0)
	mock.ExpectQuery("INSERT INTO critters").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	critter, err := repo.Create(context.Background(), []string{"toughness"})
	require.NoError(t, err)
	assert.Equal(t, "critter-1", critter.ID)
	assert.Equal(t, 7, critter.Attributes["toughness"])
	assert.Len(t, critter.Attributes, 5)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCritterRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewCritterRepository(db)
	ctx := context.Background()

	t.Run("成功获取斗兽", func(t *testing.T) {
		rows := critterRow(sqlmock.NewRows(critterCols), "critter-a", true, `{"strength":3}`, 12)
		mock.ExpectQuery("SELECT .+ FROM critters WHERE id = \\$1").
			WithArgs("critter-a").
			WillReturnRows(rows)

		critter, err := repo.GetByID(ctx, " critter-a ")
		require.NoError(t, err)
		assert.True(t, critter.IsReserved)
		assert.Equal(t, int64(12), critter.Experience)
		assert.Equal(t, 3, critter.Attributes[battlemodel.AttrStrength])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("斗兽不存在", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM critters WHERE id = \\$1").
			WithArgs("critter-x").
			WillReturnRows(sqlmock.NewRows(critterCols))

		critter, err := repo.GetByID(ctx, "critter-x")
		assert.Nil(t, critter)
		assert.True(t, xerrors.HasCode(err, xerrors.CodeCritterNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCritterRepository_Reserve(t *testing.T) {
	ctx := context.Background()

	t.Run("两只斗兽均空闲", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewCritterRepository(db)

		rows := sqlmock.NewRows(critterCols)
		critterRow(rows, "critter-b", true, `{"strength":5}`, 0)
		critterRow(rows, "critter-a", true, `{"strength":9}`, 0)
		mock.ExpectQuery("WITH locked AS").
			WithArgs("critter-a", "critter-b").
			WillReturnRows(rows)

		pair, err := repo.Reserve(ctx, db, "critter-a", "critter-b")
		require.NoError(t, err)
		assert.Equal(t, "critter-a", pair[0].ID)
		assert.Equal(t, "critter-b", pair[1].ID)
		assert.Equal(t, 9, pair[0].Attributes[battlemodel.AttrStrength])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("相同ID不访问数据库", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewCritterRepository(db)

		_, err = repo.Reserve(ctx, db, "critter-a", " critter-a")
		assert.True(t, xerrors.HasCode(err, xerrors.CodeInvalidCritterReference))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("一只斗兽已被占用", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewCritterRepository(db)

		mock.ExpectQuery("WITH locked AS").
			WithArgs("critter-a", "critter-b").
			WillReturnRows(critterRow(sqlmock.NewRows(critterCols), "critter-a", true, `{}`, 0))
		mock.ExpectQuery("SELECT id, is_reserved FROM critters WHERE id = ANY").
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "is_reserved"}).AddRow("critter-b", true))

		_, err = repo.Reserve(ctx, db, "critter-a", "critter-b")
		require.Error(t, err)

		var appErr *xerrors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, xerrors.CodeCritterBusy, appErr.Code)
		assert.Equal(t, []string{"critter-b"}, appErr.Context.Metadata["busy_critter_ids"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("引用不存在的斗兽", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewCritterRepository(db)

		mock.ExpectQuery("WITH locked AS").
			WithArgs("critter-a", "critter-missing").
			WillReturnRows(sqlmock.NewRows(critterCols))
		mock.ExpectQuery("SELECT id, is_reserved FROM critters WHERE id = ANY").
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "is_reserved"}).AddRow("critter-a", false))

		_, err = repo.Reserve(ctx, db, "critter-a", "critter-missing")
		require.Error(t, err)

		var appErr *xerrors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, xerrors.CodeInvalidCritterReference, appErr.Code)
		assert.Equal(t, []string{"critter-a"}, appErr.Context.Metadata["valid_critter_ids"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("返回行数超过两行", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewCritterRepository(db)

		rows := sqlmock.NewRows(critterCols)
		critterRow(rows, "critter-a", true, `{}`, 0)
		critterRow(rows, "critter-b", true, `{}`, 0)
		critterRow(rows, "critter-b", true, `{}`, 0)
		mock.ExpectQuery("WITH locked AS").WillReturnRows(rows)

		_, err = repo.Reserve(ctx, db, "critter-a", "critter-b")
		assert.True(t, xerrors.HasCode(err, xerrors.CodeUnexpectedStoreState))
	})
}

func TestCritterRepository_Settle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewCritterRepository(db)
	ctx := context.Background()

	t.Run("胜者累加胜场与经验", func(t *testing.T) {
		mock.ExpectExec("UPDATE critters").
			WithArgs("critter-b", int64(1), int64(0), int64(6)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Settle(ctx, db, "critter-b", true, 6))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("败者累加败场", func(t *testing.T) {
		mock.ExpectExec("UPDATE critters").
			WithArgs("critter-a", int64(0), int64(1), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Settle(ctx, db, "critter-a", false, 3))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("未更新任何行", func(t *testing.T) {
		mock.ExpectExec("UPDATE critters").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Settle(ctx, db, "critter-gone", true, 1)
		assert.True(t, xerrors.HasCode(err, xerrors.CodeUnexpectedStoreState))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("负经验增量被拒绝", func(t *testing.T) {
		err := repo.Settle(ctx, db, "critter-a", true, -1)
		assert.True(t, xerrors.HasCode(err, xerrors.CodeInvalidParams))
	})
}
