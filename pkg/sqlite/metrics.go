package sqlite

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "litewrap"

// Metrics counts contention, rollbacks, failures and backup progress. A nil
// Registerer yields working but unregistered collectors.
type Metrics struct {
	retriesTotal   *prometheus.CounterVec
	rollbacksTotal *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec

	backupsTotal     *prometheus.CounterVec
	backupPagesTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		retriesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of engine calls retried after BUSY or LOCKED, by operation and status.",
		}, []string{"op", "code"}),
		rollbacksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Total number of ROLLBACK statements issued to recover from contention or fatal statuses.",
		}, []string{"op", "outcome"}),
		errorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of engine errors returned to callers, by operation and primary status.",
		}, []string{"op", "code"}),
		backupsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Total number of backup and restore sessions, by direction and outcome.",
		}, []string{"direction", "outcome"}),
		backupPagesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_pages_total",
			Help:      "Total number of database pages copied by backup and restore sessions.",
		}, []string{"direction"}),
	}
}
