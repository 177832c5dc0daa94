package config

import (
	"io"
	"os"
	"strings"
	"time"

	core "github.com/DomeLiquid/leverage"
	"github.com/facebookgo/clock"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration of the pool daemon. Decimals may be
// written as YAML numbers or strings; unset optional values take the
// defaults from the core package.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Roles    RolesConfig    `yaml:"roles"`
	Epoch    EpochConfig    `yaml:"epoch"`
	Lending  LendingConfig  `yaml:"lending"`
	Leverage LeverageConfig `yaml:"leverage"`
	Keeper   KeeperConfig   `yaml:"keeper"`
}

// LogConfig writes to stderr unless File is set, in which case the file is
// rotated at MaxSizeMB.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RolesConfig struct {
	Owner string `yaml:"owner"`
	Admin string `yaml:"admin"`
}

// EpochConfig sets the epoch clock. A zero request window keeps requests
// open for the whole epoch.
type EpochConfig struct {
	Length        time.Duration  `yaml:"length"`
	RequestWindow *time.Duration `yaml:"request_window"`
}

type LendingConfig struct {
	Asset           string   `yaml:"asset"`
	Account         string   `yaml:"account"`
	SupportedAssets []string `yaml:"supported_assets"`

	DepositFee     *decimal.Decimal     `yaml:"deposit_fee"`
	WithdrawFee    *decimal.Decimal     `yaml:"withdraw_fee"`
	FeeReceiver    string               `yaml:"fee_receiver"`
	MaxUtilization *decimal.Decimal     `yaml:"max_utilization"`
	FeeSplit       *core.FeeSplitConfig `yaml:"fee_split"`
}

type LeverageConfig struct {
	Account         string   `yaml:"account"`
	SupportedAssets []string `yaml:"supported_assets"`

	DepositFee             *decimal.Decimal `yaml:"deposit_fee"`
	WithdrawFee            *decimal.Decimal `yaml:"withdraw_fee"`
	FeeReceiver            string           `yaml:"fee_receiver"`
	MaxDTV                 *decimal.Decimal `yaml:"max_dtv"`
	MinDeposit             *decimal.Decimal `yaml:"min_deposit"`
	WithdrawEpochsTimelock *uint64          `yaml:"withdraw_epochs_timelock"`

	// YieldAccount holds the yield asset's underlying.
	YieldAccount string `yaml:"yield_account"`
}

type KeeperConfig struct {
	Schedule   string `yaml:"schedule"`
	Checkpoint bool   `yaml:"checkpoint"`
}

// Load reads the YAML configuration at path, applies the LEVERAGE_*
// environment overrides (a .env file next to the process is honored) and
// validates the result.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Config{}, errors.Wrap(core.InvalidConfig, "config path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	_ = godotenv.Load()
	return parse(data, true)
}

// Parse decodes and validates a YAML document without consulting the
// environment.
func Parse(data []byte) (Config, error) {
	return parse(data, false)
}

func parse(data []byte, env bool) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}

	if env {
		cfg.applyEnv()
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	cfg.Log.Level = getEnv("LEVERAGE_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LEVERAGE_LOG_FILE", cfg.Log.File)
	cfg.Database.DSN = getEnv("LEVERAGE_DATABASE_DSN", cfg.Database.DSN)
	cfg.Roles.Owner = getEnv("LEVERAGE_OWNER", cfg.Roles.Owner)
	cfg.Roles.Admin = getEnv("LEVERAGE_ADMIN", cfg.Roles.Admin)
}

func (cfg *Config) normalize() {
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = zerolog.InfoLevel.String()
	}
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
	if cfg.Log.File != "" && cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 100
	}
	cfg.Database.DSN = strings.TrimSpace(cfg.Database.DSN)
	cfg.Roles.Owner = strings.TrimSpace(cfg.Roles.Owner)
	cfg.Roles.Admin = strings.TrimSpace(cfg.Roles.Admin)

	if cfg.Epoch.Length == 0 {
		cfg.Epoch.Length = core.DEFAULT_EPOCH_LENGTH
	}
	if cfg.Epoch.RequestWindow == nil {
		window := core.DEFAULT_WITHDRAW_REQUEST_WINDOW
		cfg.Epoch.RequestWindow = &window
	}

	cfg.Lending.Asset = strings.TrimSpace(cfg.Lending.Asset)
	cfg.Lending.Account = strings.TrimSpace(cfg.Lending.Account)
	cfg.Lending.SupportedAssets = trimAll(cfg.Lending.SupportedAssets)
	cfg.Lending.FeeReceiver = strings.TrimSpace(cfg.Lending.FeeReceiver)
	cfg.Leverage.Account = strings.TrimSpace(cfg.Leverage.Account)
	cfg.Leverage.SupportedAssets = trimAll(cfg.Leverage.SupportedAssets)
	cfg.Leverage.FeeReceiver = strings.TrimSpace(cfg.Leverage.FeeReceiver)
	cfg.Leverage.YieldAccount = strings.TrimSpace(cfg.Leverage.YieldAccount)
	if cfg.Leverage.FeeReceiver == "" {
		cfg.Leverage.FeeReceiver = cfg.Lending.FeeReceiver
	}

	cfg.Keeper.Schedule = strings.TrimSpace(cfg.Keeper.Schedule)
	if cfg.Keeper.Schedule == "" {
		cfg.Keeper.Schedule = core.DEFAULT_PENDING_DRAIN_SCHEDULE
	}
}

func (cfg *Config) validate() error {
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return errors.Wrapf(core.InvalidConfig, "log level %q", cfg.Log.Level)
	}
	if cfg.Roles.Owner == "" {
		return errors.Wrap(core.InvalidConfig, "roles.owner required")
	}
	if window := *cfg.Epoch.RequestWindow; cfg.Epoch.Length < 0 || window < 0 || window > cfg.Epoch.Length {
		return errors.Wrapf(core.InvalidConfig, "epoch length %s, request window %s", cfg.Epoch.Length, window)
	}
	if cfg.Leverage.YieldAccount == "" {
		return errors.Wrap(core.InvalidConfig, "leverage.yield_account required")
	}

	lending := cfg.LendingPoolConfig()
	if err := lending.Validate(); err != nil {
		return errors.Wrap(err, "lending")
	}
	leverage := cfg.LeveragePoolConfig()
	if err := leverage.Validate(); err != nil {
		return errors.Wrap(err, "leverage")
	}
	if lending.Account == leverage.Account {
		return errors.Wrap(core.InvalidConfig, "lending and leverage accounts must differ")
	}

	if _, err := cron.ParseStandard(cfg.Keeper.Schedule); err != nil {
		return errors.Wrapf(core.InvalidConfig, "keeper schedule %q: %v", cfg.Keeper.Schedule, err)
	}
	if cfg.Keeper.Checkpoint && cfg.Database.DSN == "" {
		return errors.Wrap(core.InvalidConfig, "keeper.checkpoint requires database.dsn")
	}
	return nil
}

func (cfg *Config) LendingPoolConfig() core.LendingPoolConfig {
	c := core.DefaultLendingPoolConfig(cfg.Lending.Asset, cfg.Lending.Account)
	c.SupportedAssets = cfg.Lending.SupportedAssets
	c.FeeReceiver = cfg.Lending.FeeReceiver
	setDecimal(&c.DepositFee, cfg.Lending.DepositFee)
	setDecimal(&c.WithdrawFee, cfg.Lending.WithdrawFee)
	setDecimal(&c.MaxUtilization, cfg.Lending.MaxUtilization)
	if cfg.Lending.FeeSplit != nil {
		c.FeeSplit = *cfg.Lending.FeeSplit
	}
	return c
}

// LeveragePoolConfig borrows and deploys the lending pool's asset.
func (cfg *Config) LeveragePoolConfig() core.LeveragePoolConfig {
	c := core.DefaultLeveragePoolConfig(cfg.Lending.Asset, cfg.Leverage.Account)
	c.SupportedAssets = cfg.Leverage.SupportedAssets
	c.FeeReceiver = cfg.Leverage.FeeReceiver
	setDecimal(&c.DepositFee, cfg.Leverage.DepositFee)
	setDecimal(&c.WithdrawFee, cfg.Leverage.WithdrawFee)
	setDecimal(&c.MaxDTV, cfg.Leverage.MaxDTV)
	setDecimal(&c.MinDeposit, cfg.Leverage.MinDeposit)
	if cfg.Leverage.WithdrawEpochsTimelock != nil {
		c.WithdrawEpochsTimelock = *cfg.Leverage.WithdrawEpochsTimelock
	}
	return c
}

// EpochScheduler starts the epoch clock at the current time of clk.
func (cfg *Config) EpochScheduler(clk clock.Clock) *core.EpochScheduler {
	return core.NewEpochScheduler(clk, cfg.Epoch.Length, *cfg.Epoch.RequestWindow)
}

// Logger builds the zerolog logger at the configured level.
func (cfg *Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(cfg.logWriter()).Level(level).With().Timestamp().Logger()
}

func (cfg *Config) logWriter() io.Writer {
	if cfg.Log.File == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
	}
}

func setDecimal(dst *decimal.Decimal, v *decimal.Decimal) {
	if v != nil {
		*dst = *v
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
