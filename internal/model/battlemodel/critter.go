package battlemodel

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 基础属性，每只斗兽都拥有
const (
	AttrStrength = "strength"
	AttrAgility  = "agility"
	AttrWit      = "wit"
	AttrSenses   = "senses"
)

// BaseAttributes 基础属性，顺序即默认计算器的比较顺序
var BaseAttributes = []string{AttrStrength, AttrAgility, AttrWit, AttrSenses}

// 属性取值范围
const (
	MinAttributeScore = 1
	MaxAttributeScore = 10
)

const critterIDPrefix = "critter-"

// NewCritterID 生成斗兽 ID
func NewCritterID() string {
	return critterIDPrefix + uuid.NewString()
}

// Critter 斗兽
type Critter struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	IsReserved bool           `json:"is_reserved"`
	Attributes map[string]int `json:"attributes"`
	Experience int64          `json:"experience"`
	NumWins    int64          `json:"num_wins"`
	NumLosses  int64          `json:"num_losses"`
}

// Attribute 返回属性值，缺失时 ok 为 false
func (c Critter) Attribute(name string) (int, bool) {
	v, ok := c.Attributes[name]
	return v, ok
}

// IsBaseAttribute 判断是否为基础属性
func IsBaseAttribute(name string) bool {
	for _, a := range BaseAttributes {
		if a == name {
			return true
		}
	}
	return false
}

// RollFunc 生成一个 [MinAttributeScore, MaxAttributeScore] 范围内的属性值
type RollFunc func() int

// DefaultRoll 均匀随机
func DefaultRoll() int {
	return MinAttributeScore + rand.IntN(MaxAttributeScore-MinAttributeScore+1)
}

// RollAttributes 生成基础属性以及附加属性。
// 附加属性名去除首尾空白后为空的跳过；与基础属性同名的会重新掷一次该属性。
func RollAttributes(extras []string, roll RollFunc) map[string]int {
	if roll == nil {
		roll = DefaultRoll
	}
	attrs := make(map[string]int, len(BaseAttributes)+len(extras))
	for _, name := range BaseAttributes {
		attrs[name] = roll()
	}
	for _, raw := range extras {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		attrs[name] = roll()
	}
	return attrs
}
