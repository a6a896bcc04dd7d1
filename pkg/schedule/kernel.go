package schedule

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Kernel manages scheduled tasks
type Kernel struct {
	cron   *cron.Cron
	logger cronLogger
	ctx    context.Context
}

// JobOption configures a scheduled job
type JobOption func(*jobConfig)

type jobConfig struct {
	withoutOverlapping bool
}

// NewKernel creates a new scheduler kernel with second-level precision
func NewKernel(logger zerolog.Logger) *Kernel {
	l := cronLogger{logger: logger}
	return &Kernel{
		cron:   cron.New(cron.WithSeconds(), cron.WithLogger(l)),
		logger: l,
		ctx:    context.Background(),
	}
}

// WithoutOverlapping skips a tick while the previous run is still going
func WithoutOverlapping() JobOption {
	return func(c *jobConfig) {
		c.withoutOverlapping = true
	}
}

// Register adds fn to be run on the given schedule.
// Schedule format: "s m h d m w" (Seconds Minutes Hours Day Month Week),
// or a descriptor such as "@hourly" or "@every 10m".
func (k *Kernel) Register(schedule, name string, fn func(ctx context.Context), opts ...JobOption) error {
	cfg := &jobConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var job cron.Job = cron.FuncJob(func() {
		logger := k.logger.logger.With().Str("job", name).Logger()
		logger.Debug().Msg("Running scheduled job")
		fn(logger.WithContext(k.ctx))
	})

	if cfg.withoutOverlapping {
		job = cron.NewChain(cron.SkipIfStillRunning(k.logger)).Then(job)
	}

	if _, err := k.cron.AddJob(schedule, job); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, name, err)
	}

	k.logger.logger.Info().Str("job", name).Str("schedule", schedule).Msg("Registered cron job")
	return nil
}

// Len returns the number of registered jobs
func (k *Kernel) Len() int {
	return len(k.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish. Jobs receive ctx.
func (k *Kernel) Run(ctx context.Context) {
	k.ctx = ctx

	k.logger.logger.Info().Msg("Starting task scheduler")
	k.cron.Start()

	<-ctx.Done()

	k.logger.logger.Info().Msg("Stopping task scheduler")
	<-k.cron.Stop().Done()
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// DefaultKernel returns a kernel logging through the global logger
func DefaultKernel() *Kernel {
	return NewKernel(log.Logger)
}
