// Package service 管理服的业务服务：斗兽、战斗编排与结算
package service

import (
	"context"
	"strings"

	"critter-coliseum/internal/model/battlemodel"
	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/xerrors"
	"critter-coliseum/internal/repository/interfaces"
)

// CritterService 斗兽服务
type CritterService struct {
	critterRepo interfaces.CritterRepository
	logger      log.Logger
}

// NewCritterService 创建斗兽服务
func NewCritterService(critterRepo interfaces.CritterRepository, logger log.Logger) *CritterService {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &CritterService{
		critterRepo: critterRepo,
		logger:      logger.With("component", "critter_service"),
	}
}

// CreateCritter 创建斗兽，req 为 nil 时只生成基础属性
func (s *CritterService) CreateCritter(ctx context.Context, req *battlemodel.CreateCritterRequest) (*battlemodel.Critter, error) {
	var extras []string
	if req != nil {
		extras = req.AdditionalAttributes
	}

	critter, err := s.critterRepo.Create(ctx, extras)
	if err != nil {
		return nil, err
	}

	log.LogBusinessEvent(ctx, s.logger, "critter_created", "critter", critter.ID, map[string]interface{}{
		"attributes": critter.Attributes,
	})
	return critter, nil
}

// GetCritter 获取斗兽
func (s *CritterService) GetCritter(ctx context.Context, critterID string) (*battlemodel.Critter, error) {
	critterID = strings.TrimSpace(critterID)
	if critterID == "" {
		return nil, xerrors.NewValidationError("critter_id", "斗兽ID不能为空")
	}
	return s.critterRepo.GetByID(ctx, critterID)
}
