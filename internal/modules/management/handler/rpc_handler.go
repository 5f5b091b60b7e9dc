package handler

import (
	"context"
	"encoding/json"

	"critter-coliseum/internal/modules/management/service"
	"critter-coliseum/internal/pkg/xerrors"
)

// RPCHandler 供其他 mqant 模块调用的只读接口，请求与响应均为 JSON
type RPCHandler struct {
	critterService *service.CritterService
	battleService  *service.BattleService
}

// NewRPCHandler 创建 RPC Handler
func NewRPCHandler(serviceContainer *service.ServiceContainer) *RPCHandler {
	return &RPCHandler{
		critterService: serviceContainer.CritterService,
		battleService:  serviceContainer.BattleService,
	}
}

// GetCritterRequest RPC 请求
type GetCritterRequest struct {
	CritterID string `json:"critter_id"`
}

// GetBattleRequest RPC 请求
type GetBattleRequest struct {
	BattleID string `json:"battle_id"`
}

// GetCritter 获取斗兽
func (h *RPCHandler) GetCritter(data []byte) ([]byte, error) {
	var req GetCritterRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, xerrors.NewValidationError("request", "invalid json data")
	}

	critter, err := h.critterService.GetCritter(context.Background(), req.CritterID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(critter)
}

// GetBattle 获取战斗
func (h *RPCHandler) GetBattle(data []byte) ([]byte, error) {
	var req GetBattleRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, xerrors.NewValidationError("request", "invalid json data")
	}

	battle, err := h.battleService.GetBattle(context.Background(), req.BattleID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(battle)
}
