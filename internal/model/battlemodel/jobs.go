package battlemodel

import (
	"fmt"
	"time"
)

// OpenBattleJob 待计算的战斗，Critters 为预约时的快照 [A, B]
type OpenBattleJob struct {
	Battle   Battle    `json:"battle"`
	Critters []Critter `json:"critters"`
	TraceID  string    `json:"trace_id,omitempty"`
}

// MessageID 发布去重 ID
func (j OpenBattleJob) MessageID() string { return "open:" + j.Battle.ID }

// Validate 检查任务结构是否完整
func (j OpenBattleJob) Validate() error {
	if j.Battle.ID == "" {
		return fmt.Errorf("open battle job: missing battle id")
	}
	if len(j.Critters) != 2 {
		return fmt.Errorf("open battle job %s: expected 2 critters, got %d", j.Battle.ID, len(j.Critters))
	}
	if j.Critters[0].ID != j.Battle.CritterAID || j.Critters[1].ID != j.Battle.CritterBID {
		return fmt.Errorf("open battle job %s: critter snapshots do not match battle participants", j.Battle.ID)
	}
	return nil
}

// ClosedBattleJob 计算完成的战斗
type ClosedBattleJob struct {
	Battle  Battle       `json:"battle"`
	Result  BattleResult `json:"result"`
	TraceID string       `json:"trace_id,omitempty"`
}

// MessageID 发布去重 ID
func (j ClosedBattleJob) MessageID() string { return "closed:" + j.Battle.ID }

// Validate 检查任务结构是否完整
func (j ClosedBattleJob) Validate() error {
	if j.Battle.ID == "" {
		return fmt.Errorf("closed battle job: missing battle id")
	}
	if j.Battle.CritterAID == "" || j.Battle.CritterBID == "" {
		return fmt.Errorf("closed battle job %s: missing participants", j.Battle.ID)
	}
	if j.Result.AScore < 0 || j.Result.BScore < 0 {
		return fmt.Errorf("closed battle job %s: negative score", j.Battle.ID)
	}
	return nil
}

// BattleSettledEvent 结算提交后发布的通知
type BattleSettledEvent struct {
	BattleID   string           `json:"battle_id"`
	CritterAID string           `json:"critter_a_id"`
	CritterBID string           `json:"critter_b_id"`
	AWon       bool             `json:"a_won"`
	Experience map[string]int64 `json:"experience"`
	SettledAt  time.Time        `json:"settled_at"`
}
