package entity

import (
	"time"

	"critter-coliseum/internal/model/battlemodel"

	"github.com/aarondl/sqlboiler/v4/types"
)

// CritterColumns critters 表列，RETURNING 与 SELECT 共用
const CritterColumns = "id, created_at, is_reserved, attributes_json, experience, num_wins, num_losses"

// Critter critters 表行
type Critter struct {
	ID             string     `boil:"id" json:"id"`
	CreatedAt      time.Time  `boil:"created_at" json:"created_at"`
	IsReserved     bool       `boil:"is_reserved" json:"is_reserved"`
	AttributesJSON types.JSON `boil:"attributes_json" json:"attributes_json"`
	Experience     int64      `boil:"experience" json:"experience"`
	NumWins        int64      `boil:"num_wins" json:"num_wins"`
	NumLosses      int64      `boil:"num_losses" json:"num_losses"`
}

// TableName 返回表名
func (Critter) TableName() string {
	return "critters"
}

// ToModel 转换为领域模型
func (c *Critter) ToModel() (battlemodel.Critter, error) {
	attrs := map[string]int{}
	if len(c.AttributesJSON) > 0 {
		if err := c.AttributesJSON.Unmarshal(&attrs); err != nil {
			return battlemodel.Critter{}, err
		}
	}
	return battlemodel.Critter{
		ID:         c.ID,
		CreatedAt:  c.CreatedAt,
		IsReserved: c.IsReserved,
		Attributes: attrs,
		Experience: c.Experience,
		NumWins:    c.NumWins,
		NumLosses:  c.NumLosses,
	}, nil
}
