package monitoring

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Evictor drops conversation sessions idle for longer than a TTL.
type Evictor interface {
	EvictIdle(ttl time.Duration) int
	Len() int
}

// HistorySweeper periodically evicts idle conversation sessions.
type HistorySweeper struct {
	store Evictor
	ttl   time.Duration
	cron  *cron.Cron
}

// NewHistorySweeper schedules the sweep on spec (standard cron or "@every" syntax).
func NewHistorySweeper(store Evictor, ttl time.Duration, spec string) (*HistorySweeper, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("history ttl must be positive, got %s", ttl)
	}
	s := &HistorySweeper{store: store, ttl: ttl, cron: cron.New()}
	if _, err := s.cron.AddFunc(spec, s.Sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *HistorySweeper) Start() {
	log.Info().Dur("ttl", s.ttl).Msg("Starting conversation history sweeper...")
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *HistorySweeper) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Stopped conversation history sweeper.")
}

// Sweep evicts idle sessions once.
func (s *HistorySweeper) Sweep() {
	removed := s.store.EvictIdle(s.ttl)
	if removed > 0 {
		log.Info().Int("evicted", removed).Int("remaining", s.store.Len()).Msg("Evicted idle conversation sessions")
	}
}
