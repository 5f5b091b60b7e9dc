// Package handler 管理服的 HTTP 与 RPC 处理器
package handler

import (
	"critter-coliseum/internal/model/battlemodel"
	"critter-coliseum/internal/modules/management/service"
	"critter-coliseum/internal/pkg/response"

	"github.com/labstack/echo/v4"
)

// CritterHandler 斗兽 Handler
type CritterHandler struct {
	critterService *service.CritterService
	respWriter     response.Writer
}

// NewCritterHandler 创建斗兽 Handler
func NewCritterHandler(serviceContainer *service.ServiceContainer, respWriter response.Writer) *CritterHandler {
	return &CritterHandler{
		critterService: serviceContainer.CritterService,
		respWriter:     respWriter,
	}
}

// CreateCritter 创建斗兽
// POST /api/v1/critters，body 可为空
func (h *CritterHandler) CreateCritter(c echo.Context) error {
	var req battlemodel.CreateCritterRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return response.EchoBadRequest(c, h.respWriter, "请求格式错误")
		}
	}
	if err := c.Validate(&req); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	critter, err := h.critterService.CreateCritter(c.Request().Context(), &req)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, critter)
}

// GetCritter 获取斗兽
// GET /api/v1/critters/:critter_id
func (h *CritterHandler) GetCritter(c echo.Context) error {
	critter, err := h.critterService.GetCritter(c.Request().Context(), c.Param("critter_id"))
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, critter)
}
