package battlemodel

// CreateCritterRequest 创建斗兽请求
type CreateCritterRequest struct {
	AdditionalAttributes []string `json:"additional_attributes" validate:"omitempty,max=32,dive,max=64"`
}

// CreateBattleRequest 创建战斗请求
type CreateBattleRequest struct {
	CritterAID string `json:"critter_a_id" validate:"required"`
	CritterBID string `json:"critter_b_id" validate:"required"`
}
