package tasks

import (
	"context"
	"testing"
	"time"

	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/metrics"
	"critter-coliseum/internal/repository/impl"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaleBattleTask_Check(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := metrics.NewBattleMetricsWithRegistry(metrics.Namespace, prometheus.NewRegistry())
	task := NewStaleBattleTask(impl.NewBattleRepository(db), m, "management", 10*time.Minute, log.Discard())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	task.now = func() time.Time { return now }
	cutoff := now.Add(-10 * time.Minute)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery("SELECT .+ FROM battles WHERE in_progress = TRUE").
		WithArgs(cutoff, staleSampleLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "completed_at", "in_progress", "kind", "critter_a_id", "critter_b_id", "a_won", "a_score", "b_score"}).
			AddRow("battle-1", cutoff.Add(-time.Hour), nil, true, "default", "critter-a", "critter-b", nil, nil, nil).
			AddRow("battle-2", cutoff.Add(-time.Minute), nil, true, "default", "critter-c", "critter-d", nil, nil, nil))

	assert.Equal(t, int64(2), task.Check(context.Background()))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.StaleBattles.WithLabelValues("management")))
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

	assert.Equal(t, int64(0), task.Check(context.Background()))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.StaleBattles.WithLabelValues("management")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStaleBattleTask_StartStop(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	task := NewStaleBattleTask(impl.NewBattleRepository(db), nil, "management", 0, log.Discard())
	assert.Equal(t, DefaultStaleAfter, task.staleAfter)
	task.Start()
	task.Stop()
}
