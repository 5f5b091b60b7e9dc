package calculator

import (
	"context"
	"time"

	"critter-coliseum/internal/model/battlemodel"
)

const (
	// DefaultMargin 属性差值达到该值才分出胜负
	DefaultMargin = 3
	// DefaultDelay 模拟计算耗时
	DefaultDelay = 5 * time.Second
)

// DefaultCalculator 依次比较 strength/agility/wit/senses，
// 首个差值 >= margin 的属性决定胜负；全部持平时比较经验，A 在经验相等时获胜
type DefaultCalculator struct {
	margin int
	delay  time.Duration
	order  []string
}

// DefaultOption 默认计算器选项
type DefaultOption func(*DefaultCalculator)

// WithDelay 设置模拟耗时，0 表示不等待
func WithDelay(d time.Duration) DefaultOption {
	return func(c *DefaultCalculator) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithMargin 设置胜负阈值
func WithMargin(margin int) DefaultOption {
	return func(c *DefaultCalculator) {
		if margin > 0 {
			c.margin = margin
		}
	}
}

// NewDefault 创建默认计算器
func NewDefault(opts ...DefaultOption) *DefaultCalculator {
	c := &DefaultCalculator{
		margin: DefaultMargin,
		delay:  DefaultDelay,
		order:  battlemodel.BaseAttributes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute 实现 Calculator。等待期间 ctx 取消时返回 ctx.Err()
func (c *DefaultCalculator) Compute(ctx context.Context, a, b battlemodel.Critter) (battlemodel.BattleResult, error) {
	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return battlemodel.BattleResult{}, ctx.Err()
		case <-timer.C:
		}
	}

	for _, attr := range c.order {
		av, aok := a.Attribute(attr)
		bv, bok := b.Attribute(attr)
		// 缺失的属性按平局处理
		if !aok || !bok {
			continue
		}
		if diff := av - bv; diff >= c.margin || -diff >= c.margin {
			return battlemodel.BattleResult{
				AWon:   av > bv,
				AScore: int64(av),
				BScore: int64(bv),
			}, nil
		}
	}

	return battlemodel.BattleResult{
		AWon:   a.Experience >= b.Experience,
		AScore: a.Experience,
		BScore: b.Experience,
	}, nil
}
