package handler

import (
	"critter-coliseum/internal/model/battlemodel"
	"critter-coliseum/internal/modules/management/service"
	"critter-coliseum/internal/pkg/response"

	"github.com/labstack/echo/v4"
)

// BattleHandler 战斗 Handler
type BattleHandler struct {
	battleService *service.BattleService
	respWriter    response.Writer
}

// NewBattleHandler 创建战斗 Handler
func NewBattleHandler(serviceContainer *service.ServiceContainer, respWriter response.Writer) *BattleHandler {
	return &BattleHandler{
		battleService: serviceContainer.BattleService,
		respWriter:    respWriter,
	}
}

// CreateBattle 发起战斗。返回时战斗处于进行中，结果由 coliseum 异步计算
// POST /api/v1/battles
func (h *BattleHandler) CreateBattle(c echo.Context) error {
	var req battlemodel.CreateBattleRequest
	if err := c.Bind(&req); err != nil {
		return response.EchoBadRequest(c, h.respWriter, "请求格式错误")
	}
	if err := c.Validate(&req); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	battle, err := h.battleService.CreateBattle(c.Request().Context(), &req)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, battle)
}

// GetBattle 获取战斗
// GET /api/v1/battles/:battle_id
func (h *BattleHandler) GetBattle(c echo.Context) error {
	battle, err := h.battleService.GetBattle(c.Request().Context(), c.Param("battle_id"))
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, battle)
}
