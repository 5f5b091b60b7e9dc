// File: internal/pkg/metrics/registry.go
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace 所有指标共用的命名空间
const Namespace = "coliseum"

const defaultServiceName = "unknown"

var (
	defaultRegistryManager = &RegistryManager{
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
	}

	globalServiceName atomic.Value
)

func init() {
	globalServiceName.Store(defaultServiceName)
}

// RegistryManager 管理 Prometheus Registerer/Gatherer, 支持在测试中注入独立注册表。
type RegistryManager struct {
	mu         sync.RWMutex
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// SetRegistry 同时替换 Registerer 与 Gatherer，/metrics 将暴露该注册表中的指标。
func SetRegistry(reg *prometheus.Registry) {
	if reg == nil {
		defaultRegistryManager.set(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
		return
	}
	defaultRegistryManager.set(reg, reg)
}

// GetRegisterer 返回当前的 Registerer。
func GetRegisterer() prometheus.Registerer {
	defaultRegistryManager.mu.RLock()
	defer defaultRegistryManager.mu.RUnlock()
	return defaultRegistryManager.registerer
}

// GetGatherer 返回当前的 Gatherer。
func GetGatherer() prometheus.Gatherer {
	defaultRegistryManager.mu.RLock()
	defer defaultRegistryManager.mu.RUnlock()
	return defaultRegistryManager.gatherer
}

func (m *RegistryManager) set(r prometheus.Registerer, g prometheus.Gatherer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerer = r
	m.gatherer = g
}

// SetServiceName 配置当前服务名称, 用于所有指标的 service 标签。
func SetServiceName(name string) {
	if name == "" {
		name = defaultServiceName
	}
	globalServiceName.Store(name)
}

// GetServiceName 返回当前配置的服务名称。
func GetServiceName() string {
	if value, ok := globalServiceName.Load().(string); ok && value != "" {
		return value
	}
	return defaultServiceName
}

func normalizeServiceName(name string) string {
	if name == "" {
		return GetServiceName()
	}
	return name
}
