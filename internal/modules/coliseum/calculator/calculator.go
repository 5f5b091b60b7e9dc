// Package calculator 战斗结果计算策略
package calculator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"critter-coliseum/internal/model/battlemodel"
)

// Calculator 根据双方快照计算战斗结果
type Calculator interface {
	Compute(ctx context.Context, a, b battlemodel.Critter) (battlemodel.BattleResult, error)
}

// Func 将普通函数适配为 Calculator
type Func func(ctx context.Context, a, b battlemodel.Critter) (battlemodel.BattleResult, error)

// Compute 实现 Calculator
func (f Func) Compute(ctx context.Context, a, b battlemodel.Critter) (battlemodel.BattleResult, error) {
	return f(ctx, a, b)
}

// UnknownKindError 未注册的战斗类型
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("calculator: unknown battle kind %q", e.Kind)
}

// Registry 战斗类型到计算器的映射
type Registry struct {
	mu          sync.RWMutex
	calculators map[string]Calculator
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{calculators: make(map[string]Calculator)}
}

// NewDefaultRegistry 创建只包含 default 计算器的注册表
func NewDefaultRegistry(opts ...DefaultOption) *Registry {
	r := NewRegistry()
	r.Register(battlemodel.KindDefault, NewDefault(opts...))
	return r
}

// Register 注册计算器，同名覆盖
func (r *Registry) Register(kind string, c Calculator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calculators[kind] = c
}

// Lookup 查找计算器，未注册时返回 *UnknownKindError
func (r *Registry) Lookup(kind string) (Calculator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calculators[kind]
	if !ok {
		return nil, &UnknownKindError{Kind: kind}
	}
	return c, nil
}

// Kinds 已注册的类型，按名称排序
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.calculators))
	for k := range r.calculators {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
