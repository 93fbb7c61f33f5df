package services

import (
	"context"
	"sync"
	"time"

	"go-bridge/internal/metrics"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MonitoringService periodically refreshes database gauges for Prometheus
type MonitoringService struct {
	db       *gorm.DB
	interval time.Duration
	logger   *logrus.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitoringService samples every interval (10s when zero)
func NewMonitoringService(db *gorm.DB, interval time.Duration, logger *logrus.Logger) *MonitoringService {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &MonitoringService{
		db:       db,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start samples once immediately, then on every tick until Stop
func (m *MonitoringService) Start() {
	m.logger.WithField("interval", m.interval).Info("🚀 Starting monitoring service")
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.UpdateDatabaseMetrics()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.UpdateDatabaseMetrics()
			}
		}
	}()
}

// Stop waits for the sampler to exit
func (m *MonitoringService) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// UpdateDatabaseMetrics pings the database and records pool state. Reports whether the ping succeeded.
func (m *MonitoringService) UpdateDatabaseMetrics() bool {
	sqlDB, err := m.db.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return false
	}
	metrics.DBConnectionOpen.Set(float64(sqlDB.Stats().OpenConnections))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		metrics.DBConnectionStatus.Set(0)
		m.logger.WithError(err).Warn("⚠️ Database ping failed")
		return false
	}
	metrics.DBConnectionStatus.Set(1)
	return true
}
