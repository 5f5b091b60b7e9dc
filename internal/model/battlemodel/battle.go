package battlemodel

import (
	"time"

	"github.com/google/uuid"
)

// KindDefault 内置的默认计算器
const KindDefault = "default"

const battleIDPrefix = "battle-"

// NewBattleID 生成战斗 ID
func NewBattleID() string {
	return battleIDPrefix + uuid.NewString()
}

// Battle 一场战斗。Result 在结算后写入且不再变化
type Battle struct {
	ID          string        `json:"id"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	InProgress  bool          `json:"in_progress"`
	Kind        string        `json:"kind"`
	CritterAID  string        `json:"critter_a_id"`
	CritterBID  string        `json:"critter_b_id"`
	Result      *BattleResult `json:"result,omitempty"`
}

// BattleResult 战斗结果，分数为决定胜负的原始数值
type BattleResult struct {
	AWon   bool  `json:"a_won"`
	AScore int64 `json:"a_score"`
	BScore int64 `json:"b_score"`
}

// ExperienceDeltas 计算双方获得的经验：败者得到自己的分数，胜者得到败者分数的两倍
func (r BattleResult) ExperienceDeltas() (aDelta, bDelta int64) {
	if r.AWon {
		return 2 * r.BScore, r.BScore
	}
	return r.AScore, 2 * r.AScore
}

// WinnerID 返回胜者 ID
func (b Battle) WinnerID(r BattleResult) string {
	if r.AWon {
		return b.CritterAID
	}
	return b.CritterBID
}
