package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/podpairer/server/internal/clock"
	"github.com/podpairer/server/internal/config"
	"github.com/podpairer/server/internal/metrics"
	"github.com/podpairer/server/internal/service"
)

const (
	jobAssembly = "assembly"
	jobTimeout  = "timeout"
)

type Assembler interface {
	AssemblePods(ctx context.Context) (*service.AssemblyResult, error)
}

type Reaper interface {
	SweepTimeouts(ctx context.Context) (*service.SweepResult, error)
}

// PodScheduler drives pod assembly and the timeout sweep on two independent
// tickers. A failing tick is logged and the next one runs as usual.
type PodScheduler struct {
	assembler        Assembler
	reaper           Reaper
	clock            clock.Clock
	metrics          metrics.Recorder
	assemblyInterval time.Duration
	timeoutInterval  time.Duration
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	stopOnce         sync.Once
}

func NewPodScheduler(
	assembler Assembler,
	reaper Reaper,
	clk clock.Clock,
	rec metrics.Recorder,
	assemblyInterval time.Duration,
	timeoutInterval time.Duration,
) *PodScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &PodScheduler{
		assembler:        assembler,
		reaper:           reaper,
		clock:            clk,
		metrics:          rec,
		assemblyInterval: assemblyInterval,
		timeoutInterval:  timeoutInterval,
		ctx:              ctx,
		cancel:           cancel,
	}
}

func (s *PodScheduler) Start() {
	assemblyTicker := s.clock.NewTicker(s.assemblyInterval)
	timeoutTicker := s.clock.NewTicker(s.timeoutInterval)

	s.wg.Add(2)
	go s.run(jobAssembly, assemblyTicker, s.assemble)
	go s.run(jobTimeout, timeoutTicker, s.sweep)

	log.Info().
		Dur("assemblyInterval", s.assemblyInterval).
		Dur("timeoutInterval", s.timeoutInterval).
		Msg("pod scheduler started")
}

// Stop cancels any in-flight tick and waits for both loops to exit.
func (s *PodScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		log.Info().Msg("pod scheduler stopped")
	})
}

func (s *PodScheduler) run(job string, ticker clock.Ticker, fn func(context.Context) error) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C():
			s.tick(job, fn)
		}
	}
}

func (s *PodScheduler) tick(job string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, config.SchedulerTickTimeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return fn(ctx)
	}()
	s.metrics.RecordTick(job, time.Since(start), err)

	if err != nil {
		log.Error().Err(err).Str("job", job).Msg("scheduler tick failed")
	}
}

func (s *PodScheduler) assemble(ctx context.Context) error {
	result, err := s.assembler.AssemblePods(ctx)
	if err != nil {
		return err
	}
	if result.PodsCreated > 0 {
		log.Info().Int("count", result.PodsCreated).Msg(result.Message)
	} else {
		log.Debug().Msg(result.Message)
	}
	return nil
}

func (s *PodScheduler) sweep(ctx context.Context) error {
	result, err := s.reaper.SweepTimeouts(ctx)
	if err != nil {
		return err
	}
	if result.PodsRemoved > 0 {
		log.Info().Int("count", result.PodsRemoved).Msg(result.Message)
	} else {
		log.Debug().Msg(result.Message)
	}
	return nil
}
