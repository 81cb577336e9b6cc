package scheduler

import (
	"context"

	"github.com/bzz-bot/bzz/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Cadences is what the scheduler drives: one reader and one actor cycle
type Cadences interface {
	ReadOnce(ctx context.Context) error
	ActOnce(ctx context.Context) error
}

// Service runs the reader and actor cadences on independent timers
type Service struct {
	config *config.Config
	engine Cadences
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, engine Cadences) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config: cfg,
		engine: engine,
		// A hanging fetch or device call delays only its own cadence
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logrus.StandardLogger()))),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers both cadences, runs each once right away and starts the timers
func (s *Service) Start() error {
	readID := s.cron.Schedule(cron.Every(s.config.ParsePeriod()), cron.FuncJob(func() {
		if err := s.engine.ReadOnce(s.ctx); err != nil {
			logrus.Errorf("Reader cycle failed: %v", err)
		}
	}))

	actID := s.cron.Schedule(cron.Every(s.config.ActPeriod()), cron.FuncJob(func() {
		if err := s.engine.ActOnce(s.ctx); err != nil {
			logrus.Warnf("Actor cycle failed, will retry: %v", err)
		}
	}))

	// First cycles go through the same chain as the timed ones
	readJob, actJob := s.cron.Entry(readID).WrappedJob, s.cron.Entry(actID).WrappedJob
	s.cron.Start()
	go readJob.Run()
	go actJob.Run()

	logrus.Infof("Scheduler started: reading every %s, acting every %s", s.config.ParsePeriod(), s.config.ActPeriod())
	return nil
}

// Stop cancels in-flight cycles and waits for them to return
func (s *Service) Stop() {
	if s.cron != nil {
		s.cancel()
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
