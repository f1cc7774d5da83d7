package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ExpirySweeper periodically force-submits attempts whose time limit has passed, so abandoned
// timed attempts do not block new ones forever.
type ExpirySweeper struct {
	service  *Service
	interval time.Duration
	log      logrus.FieldLogger
}

func NewExpirySweeper(service *Service, interval time.Duration, log logrus.FieldLogger) *ExpirySweeper {
	return &ExpirySweeper{service: service, interval: interval, log: log}
}

// Run sweeps until ctx is canceled.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.service.ExpireOverdue(ctx)
			if err != nil {
				s.log.WithError(err).Error("expiry sweep failed")
				continue
			}
			if n > 0 {
				s.log.WithField("expired", n).Info("expired attempts force-submitted")
			}
		}
	}
}
