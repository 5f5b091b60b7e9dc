package impl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"critter-coliseum/internal/model/battlemodel"
	"critter-coliseum/internal/pkg/xerrors"
	"critter-coliseum/internal/repository/entity"
	"critter-coliseum/internal/repository/interfaces"

	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/aarondl/sqlboiler/v4/queries"
	"github.com/aarondl/sqlboiler/v4/types"
	"github.com/friendsofgo/errors"
	"github.com/lib/pq"
)

const critterTable = "critters"

// reserveSQL 按 id 顺序加锁，重叠的两组预约不会互相死锁。
// 等锁后 Postgres 会重新检查 is_reserved，已被他人占用的行不会返回
const reserveSQL = `
WITH locked AS (
	SELECT id FROM critters
	WHERE id IN ($1, $2) AND is_reserved = FALSE
	ORDER BY id
	FOR UPDATE
)
UPDATE critters c
SET is_reserved = TRUE
FROM locked
WHERE c.id = locked.id AND c.is_reserved = FALSE
RETURNING c.id, c.created_at, c.is_reserved, c.attributes_json, c.experience, c.num_wins, c.num_losses`

const settleSQL = `
UPDATE critters
SET is_reserved = FALSE,
    num_wins = num_wins + $2,
    num_losses = num_losses + $3,
    experience = experience + $4
WHERE id = $1`

type critterRepositoryImpl struct {
	db   *sql.DB
	roll battlemodel.RollFunc
}

// NewCritterRepository 创建斗兽仓储实例
func NewCritterRepository(db *sql.DB) interfaces.CritterRepository {
	return NewCritterRepositoryWithRoll(db, battlemodel.DefaultRoll)
}

// NewCritterRepositoryWithRoll 使用指定的属性生成函数
func NewCritterRepositoryWithRoll(db *sql.DB, roll battlemodel.RollFunc) interfaces.CritterRepository {
	return &critterRepositoryImpl{db: db, roll: roll}
}

// Create 创建斗兽
func (r *critterRepositoryImpl) Create(ctx context.Context, extraAttributes []string) (*battlemodel.Critter, error) {
	var attrs types.JSON
	if err := attrs.Marshal(battlemodel.RollAttributes(extraAttributes, r.roll)); err != nil {
		return nil, errors.Wrap(err, "序列化斗兽属性失败")
	}

	var row entity.Critter
	err := queries.Raw(
		`INSERT INTO critters (id, attributes_json) VALUES ($1, $2) RETURNING `+entity.CritterColumns,
		battlemodel.NewCritterID(), attrs,
	).Bind(ctx, r.db, &row)
	if err != nil {
		return nil, xerrors.NewDatabaseError("insert", critterTable, errors.Wrap(err, "创建斗兽失败"))
	}
	return toCritter(&row)
}

// GetByID 根据ID获取斗兽
func (r *critterRepositoryImpl) GetByID(ctx context.Context, critterID string) (*battlemodel.Critter, error) {
	critterID = strings.TrimSpace(critterID)

	var row entity.Critter
	err := queries.Raw(
		`SELECT `+entity.CritterColumns+` FROM critters WHERE id = $1`,
		critterID,
	).Bind(ctx, r.db, &row)
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, xerrors.NewCritterNotFoundError(critterID)
	}
	if err != nil {
		return nil, xerrors.NewDatabaseError("select", critterTable, errors.Wrap(err, "查询斗兽失败"))
	}
	return toCritter(&row)
}

// Reserve 预约两只斗兽
func (r *critterRepositoryImpl) Reserve(ctx context.Context, execer boil.ContextExecutor, critterAID, critterBID string) ([2]battlemodel.Critter, error) {
	var pair [2]battlemodel.Critter

	idA := strings.TrimSpace(critterAID)
	idB := strings.TrimSpace(critterBID)
	if idA == "" || idB == "" {
		return pair, xerrors.NewInvalidCritterReferenceError("斗兽ID不能为空", nil)
	}
	if idA == idB {
		return pair, xerrors.NewInvalidCritterReferenceError("斗兽不能与自己战斗", nil)
	}

	var rows []*entity.Critter
	if err := queries.Raw(reserveSQL, idA, idB).Bind(ctx, execer, &rows); err != nil {
		return pair, xerrors.NewDatabaseError("reserve", critterTable, errors.Wrap(err, "预约斗兽失败"))
	}

	switch {
	case len(rows) > 2:
		return pair, xerrors.NewUnexpectedStoreStateError(fmt.Sprintf("reserve returned %d rows for 2 ids", len(rows)))
	case len(rows) < 2:
		return pair, r.diagnoseReserve(ctx, execer, [2]string{idA, idB}, rows)
	}

	for _, row := range rows {
		c, err := row.ToModel()
		if err != nil {
			return pair, xerrors.NewUnexpectedStoreStateError("invalid attributes_json for " + row.ID)
		}
		switch row.ID {
		case idA:
			pair[0] = c
		case idB:
			pair[1] = c
		default:
			return pair, xerrors.NewUnexpectedStoreStateError("reserve returned unrequested id " + row.ID)
		}
	}
	if pair[0].ID == "" || pair[1].ID == "" {
		return pair, xerrors.NewUnexpectedStoreStateError("reserve returned duplicate ids")
	}
	return pair, nil
}

// diagnoseReserve 区分不存在的引用与已被占用的斗兽
func (r *critterRepositoryImpl) diagnoseReserve(ctx context.Context, execer boil.ContextExecutor, ids [2]string, reserved []*entity.Critter) error {
	got := make(map[string]bool, len(reserved))
	for _, row := range reserved {
		got[row.ID] = true
	}
	pending := make([]string, 0, 2)
	for _, id := range ids {
		if !got[id] {
			pending = append(pending, id)
		}
	}

	var found []*entity.Critter
	err := queries.Raw(
		`SELECT id, is_reserved FROM critters WHERE id = ANY($1)`,
		pq.Array(pending),
	).Bind(ctx, execer, &found)
	if err != nil {
		return xerrors.NewDatabaseError("select", critterTable, errors.Wrap(err, "诊断预约失败"))
	}

	exists := make(map[string]bool, len(found))
	for _, row := range found {
		exists[row.ID] = true
	}

	valid := make([]string, 0, 2)
	missing := false
	for _, id := range ids {
		if got[id] || exists[id] {
			valid = append(valid, id)
		} else {
			missing = true
		}
	}
	if missing {
		return xerrors.NewInvalidCritterReferenceError(
			fmt.Sprintf("斗兽不存在，有效的斗兽ID: %v", valid), valid)
	}

	busy := make([]string, 0, len(found))
	for _, row := range found {
		busy = append(busy, row.ID)
	}
	return xerrors.NewCritterBusyError(busy)
}

// Settle 结算单只斗兽
func (r *critterRepositoryImpl) Settle(ctx context.Context, execer boil.ContextExecutor, critterID string, won bool, experienceDelta int64) error {
	if experienceDelta < 0 {
		return xerrors.NewValidationError("experience_delta", "经验增量不能为负")
	}

	var wins, losses int64
	if won {
		wins = 1
	} else {
		losses = 1
	}

	res, err := execer.ExecContext(ctx, settleSQL, critterID, wins, losses, experienceDelta)
	if err != nil {
		return xerrors.NewDatabaseError("settle", critterTable, errors.Wrap(err, "结算斗兽失败"))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.NewDatabaseError("settle", critterTable, errors.Wrap(err, "读取影响行数失败"))
	}
	if affected != 1 {
		return xerrors.NewUnexpectedStoreStateError(
			fmt.Sprintf("settle %s affected %d rows", critterID, affected))
	}
	return nil
}

func toCritter(row *entity.Critter) (*battlemodel.Critter, error) {
	c, err := row.ToModel()
	if err != nil {
		return nil, xerrors.NewUnexpectedStoreStateError("invalid attributes_json for " + row.ID)
	}
	return &c, nil
}
