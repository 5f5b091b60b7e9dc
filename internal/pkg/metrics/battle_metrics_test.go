// File: internal/pkg/metrics/battle_metrics_test.go
package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBattleMetrics_RecordSettled(t *testing.T) {
	tests := []struct {
		name      string
		aWon      bool
		createdAt time.Time
		label     string
		observed  int
	}{
		{name: "A 获胜并记录耗时", aWon: true, createdAt: time.Now().Add(-5 * time.Second), label: "a_won", observed: 1},
		{name: "B 获胜且无创建时间", aWon: false, label: "b_won", observed: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			m := NewBattleMetricsWithRegistry("test", reg)

			m.RecordSettled(tt.aWon, tt.createdAt, "management")

			assert.Equal(t, float64(1), testutil.ToFloat64(m.BattlesSettled.WithLabelValues(tt.label, "management")))
			assert.Equal(t, tt.observed, testutil.CollectAndCount(m.SettleDuration))
		})
	}
}

func TestBattleMetrics_RecordJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBattleMetricsWithRegistry("test", reg)

	m.RecordJob("open-battles", OutcomeAck, "coliseum")
	m.RecordJob("open-battles", OutcomeAck, "coliseum")
	m.RecordJob("closed-battles", OutcomeDuplicate, "management")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.JobsTotal.WithLabelValues("open-battles", OutcomeAck, "coliseum")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsTotal.WithLabelValues("closed-battles", OutcomeDuplicate, "management")))
}

func TestBattleMetrics_CreatedAndStale(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBattleMetricsWithRegistry("test", reg)

	m.RecordCreated("default", "")
	m.SetStale(3, "")
	m.SetStale(1, "")

	service := GetServiceName()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BattlesCreated.WithLabelValues("default", service)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StaleBattles.WithLabelValues(service)))
}

func TestSetRegistry_ExposesCustomGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	SetRegistry(reg)
	t.Cleanup(func() { SetRegistry(nil) })

	m := NewBattleMetrics("registry_test")
	m.RecordCreated("default", "management")

	families, err := GetGatherer().Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "registry_test_battle_created_total", families[0].GetName())
}

func TestSetServiceName(t *testing.T) {
	original := GetServiceName()
	t.Cleanup(func() { SetServiceName(original) })

	SetServiceName("coliseum")
	assert.Equal(t, "coliseum", GetServiceName())
	assert.Equal(t, "management", normalizeServiceName("management"))
	assert.Equal(t, "coliseum", normalizeServiceName(""))

	SetServiceName("")
	assert.Equal(t, defaultServiceName, GetServiceName())
}
