package security

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper periodically prunes expired remembered approvals so a stale
// decision can never satisfy a new approval requirement from storage.
type Sweeper struct {
	cron    *cron.Cron
	manager *Manager
}

// NewSweeper schedules pruning on the given cron spec (e.g. "@every 1m").
func NewSweeper(manager *Manager, spec string) (*Sweeper, error) {
	if spec == "" {
		spec = "@every 1m"
	}

	s := &Sweeper{
		cron:    cron.New(),
		manager: manager,
	}

	_, err := s.cron.AddFunc(spec, s.sweep)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	return s, nil
}

func (s *Sweeper) sweep() {
	removed, err := s.manager.PruneExpiredApprovals(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Approval sweep failed")
		return
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Pruned expired approvals")
	}
}

// Start begins the sweep schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
	log.Info().Msg("Approval sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
