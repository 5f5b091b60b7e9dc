package entity

import (
	"time"

	"critter-coliseum/internal/model/battlemodel"

	"github.com/aarondl/null/v8"
)

// BattleColumns battles 表列
const BattleColumns = "id, created_at, completed_at, in_progress, kind, critter_a_id, critter_b_id, a_won, a_score, b_score"

// Battle battles 表行。结果列在结算前为 NULL
type Battle struct {
	ID          string     `boil:"id" json:"id"`
	CreatedAt   time.Time  `boil:"created_at" json:"created_at"`
	CompletedAt null.Time  `boil:"completed_at" json:"completed_at,omitempty"`
	InProgress  bool       `boil:"in_progress" json:"in_progress"`
	Kind        string     `boil:"kind" json:"kind"`
	CritterAID  string     `boil:"critter_a_id" json:"critter_a_id"`
	CritterBID  string     `boil:"critter_b_id" json:"critter_b_id"`
	AWon        null.Bool  `boil:"a_won" json:"a_won,omitempty"`
	AScore      null.Int64 `boil:"a_score" json:"a_score,omitempty"`
	BScore      null.Int64 `boil:"b_score" json:"b_score,omitempty"`
}

// TableName 返回表名
func (Battle) TableName() string {
	return "battles"
}

// IsSettled 结果是否已写入
func (b *Battle) IsSettled() bool {
	return b.AWon.Valid
}

// ToModel 转换为领域模型
func (b *Battle) ToModel() battlemodel.Battle {
	battle := battlemodel.Battle{
		ID:         b.ID,
		CreatedAt:  b.CreatedAt,
		InProgress: b.InProgress,
		Kind:       b.Kind,
		CritterAID: b.CritterAID,
		CritterBID: b.CritterBID,
	}
	if b.CompletedAt.Valid {
		t := b.CompletedAt.Time
		battle.CompletedAt = &t
	}
	if b.IsSettled() {
		battle.Result = &battlemodel.BattleResult{
			AWon:   b.AWon.Bool,
			AScore: b.AScore.Int64,
			BScore: b.BScore.Int64,
		}
	}
	return battle
}
