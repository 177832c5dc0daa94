package keeper

import (
	"context"
	"sync"

	core "github.com/DomeLiquid/leverage"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Keeper runs the periodic upkeep of both pools on a cron schedule.
type Keeper struct {
	log      core.Log
	lending  *core.LendingPool
	leverage *core.LeveragePool
	store    core.StateStore
	metrics  *Metrics
	schedule string

	cron *cron.Cron
	mu   sync.Mutex
}

// Report is the outcome of one upkeep tick.
type Report struct {
	Advanced     bool
	Epoch        uint64
	Stamped      int
	Liquidatable []core.PositionKey
	Checkpointed bool
}

type Option func(k *Keeper)

func WithSchedule(spec string) Option {
	return func(k *Keeper) {
		k.schedule = spec
	}
}

func WithLog(log core.Log) Option {
	return func(k *Keeper) {
		k.log = log
	}
}

// WithCheckpoint saves both pools to store after every tick.
func WithCheckpoint(store core.StateStore) Option {
	return func(k *Keeper) {
		k.store = store
	}
}

func WithMetrics(m *Metrics) Option {
	return func(k *Keeper) {
		k.metrics = m
	}
}

func New(lending *core.LendingPool, leverage *core.LeveragePool, opts ...Option) *Keeper {
	k := &Keeper{
		log:      core.NopLog(),
		lending:  lending,
		leverage: leverage,
		schedule: core.DEFAULT_PENDING_DRAIN_SCHEDULE,
	}
	for _, opt := range opts {
		opt(k)
	}
	logger := cronLogger{log: k.log}
	k.cron = cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	return k
}

func (k *Keeper) Start() error {
	_, err := k.cron.AddFunc(k.schedule, func() {
		if _, err := k.RunOnce(context.Background()); err != nil {
			k.log.Error().Err(err).Msg("keeper tick failed")
		}
	})
	if err != nil {
		return errors.Wrapf(core.InvalidConfig, "keeper schedule %q: %v", k.schedule, err)
	}

	k.cron.Start()
	k.log.Info().Str("schedule", k.schedule).Msg("keeper started")
	return nil
}

// Stop halts the schedule and waits for a running tick to finish.
func (k *Keeper) Stop() {
	<-k.cron.Stop().Done()
	k.log.Info().Msg("keeper stopped")
}

// RunOnce performs one upkeep tick. A price oracle outage only skips the
// liquidation scan.
func (k *Keeper) RunOnce(ctx context.Context) (*Report, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	report, err := k.tick(ctx)
	k.metrics.observe(k.lending, k.leverage, report, err)
	return report, err
}

func (k *Keeper) tick(ctx context.Context) (*Report, error) {
	report := &Report{}
	report.Advanced = k.leverage.TryAdvanceEpoch(ctx)
	report.Epoch = k.leverage.CurrentEpoch()

	if k.leverage.HasPendingRequestNow() {
		stamped, err := k.leverage.MakeWithdrawRequestOfPending(ctx)
		if err != nil {
			return report, errors.Wrap(err, "stamp pending requests")
		}
		report.Stamped = stamped
	}

	keys, err := k.leverage.GetLiquidationUsers(ctx)
	switch {
	case errors.Is(err, core.ErrOracleUnavailable):
		k.log.Warn().Err(err).Msg("liquidation scan skipped")
	case err != nil:
		return report, errors.Wrap(err, "liquidation scan")
	default:
		report.Liquidatable = keys
		for _, key := range keys {
			k.log.Warn().Str("owner", key.Owner).Str("asset", key.Asset).Msg("position liquidatable")
		}
	}

	if k.store != nil {
		if err := core.Checkpoint(ctx, k.store, k.lending, k.leverage); err != nil {
			return report, err
		}
		report.Checkpointed = true
	}

	k.log.Info().
		Bool("advanced", report.Advanced).
		Uint64("epoch", report.Epoch).
		Int("stamped", report.Stamped).
		Int("liquidatable", len(report.Liquidatable)).
		Bool("checkpointed", report.Checkpointed).
		Msg("keeper tick")
	return report, nil
}

// cronLogger routes cron's own messages to the pool log.
type cronLogger struct {
	log core.Log
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
