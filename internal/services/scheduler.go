package services

import (
	"auction-settlement/internal/domain"
	"auction-settlement/internal/metrics"
	"auction-settlement/pkg/logger"

	"github.com/robfig/cron/v3"
)

// KeyReloader refreshes a key registry snapshot.
type KeyReloader interface {
	Reload() (int, error)
}

// CronMaintenanceScheduler runs periodic housekeeping: key registry reloads
// and ledger statistics.
type CronMaintenanceScheduler struct {
	cron    *cron.Cron
	ledger  domain.Ledger
	keys    KeyReloader
	metrics metrics.Service
	log     logger.Logger
}

func NewCronMaintenanceScheduler(ledger domain.Ledger, keys KeyReloader, m metrics.Service, log logger.Logger) *CronMaintenanceScheduler {
	return &CronMaintenanceScheduler{
		cron:    cron.New(),
		ledger:  ledger,
		keys:    keys,
		metrics: m,
		log:     log,
	}
}

// Start registers the jobs. An empty schedule disables its job; keys may be nil.
func (s *CronMaintenanceScheduler) Start(keySchedule, statsSchedule string) error {
	s.log.Info("Starting maintenance scheduler")

	if s.keys != nil && keySchedule != "" {
		if _, err := s.cron.AddFunc(keySchedule, s.ReloadKeys); err != nil {
			return err
		}
	}
	if statsSchedule != "" {
		if _, err := s.cron.AddFunc(statsSchedule, s.ReportStats); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

func (s *CronMaintenanceScheduler) Stop() {
	s.log.Info("Stopping maintenance scheduler")
	<-s.cron.Stop().Done()
}

func (s *CronMaintenanceScheduler) ReloadKeys() {
	n, err := s.keys.Reload()
	if err != nil {
		s.metrics.BumpSum("keys.reload.err", 1)
		s.log.Error("Failed to reload bidder keys", "error", err)
		return
	}
	s.metrics.BumpAvg("keys.loaded", float64(n))
}

func (s *CronMaintenanceScheduler) ReportStats() {
	stats := s.ledger.Stats()
	s.metrics.BumpAvg("auctions.count", float64(stats.Active), "status", domain.StatusActive.String())
	s.metrics.BumpAvg("auctions.count", float64(stats.Ended), "status", domain.StatusEnded.String())
	s.log.Info("Ledger stats", "pending", stats.Pending, "active", stats.Active, "ended", stats.Ended)
}
