package bootstrap

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"
)

type Config struct {
	ServerPort    string `mapstructure:"SERVER_PORT"`
	GrpcPort      string `mapstructure:"GRPC_PORT"`
	StoreBackend  string `mapstructure:"STORE_BACKEND"`
	RedisUrl      string `mapstructure:"REDIS_URL"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`
	MongoUri      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`
	IsLocalCors   bool   `mapstructure:"LOCAL_CORS"`

	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`

	WaitingTimeout   time.Duration `mapstructure:"WAITING_TIMEOUT"`
	ChoiceTimeout    time.Duration `mapstructure:"CHOICE_TIMEOUT"`
	MatchQueryLimit  int           `mapstructure:"MATCH_QUERY_LIMIT"`
	StopOnMajority   bool          `mapstructure:"STOP_ON_MAJORITY"`
	OrphanSweepAfter time.Duration `mapstructure:"ORPHAN_SWEEP_AFTER"`

	StatsCheckInterval  time.Duration `mapstructure:"STATS_CHECK_INTERVAL"`
	HealthProbeInterval time.Duration `mapstructure:"HEALTH_PROBE_INTERVAL"`
	PageLimitPlayers    int           `mapstructure:"PAGE_LIMIT_PLAYERS"`
	PageLimitGames      int           `mapstructure:"PAGE_LIMIT_GAMES"`

	ScoreRoundWin  int `mapstructure:"SCORE_ROUND_WIN"`
	ScoreRoundLoss int `mapstructure:"SCORE_ROUND_LOSS"`
	ScoreRoundDraw int `mapstructure:"SCORE_ROUND_DRAW"`
	ScoreGameWin   int `mapstructure:"SCORE_GAME_WIN"`
	ScoreGameLoss  int `mapstructure:"SCORE_GAME_LOSS"`
}

var defaults = map[string]any{
	"SERVER_PORT":           "8080",
	"GRPC_PORT":             "8082",
	"STORE_BACKEND":         StoreMemory,
	"REDIS_URL":             "",
	"REDIS_PASSWORD":        "",
	"REDIS_PREFIX":          "rps",
	"MONGO_URI":             "",
	"MONGO_DATABASE":        "rps_arena",
	"LOCAL_CORS":            false,
	"SESSION_TTL":           11 * time.Hour,
	"WAITING_TIMEOUT":       30 * time.Second,
	"CHOICE_TIMEOUT":        30 * time.Second,
	"MATCH_QUERY_LIMIT":     10,
	"STOP_ON_MAJORITY":      false,
	"ORPHAN_SWEEP_AFTER":    time.Duration(0),
	"STATS_CHECK_INTERVAL":  5 * time.Minute,
	"HEALTH_PROBE_INTERVAL": 15 * time.Second,
	"PAGE_LIMIT_PLAYERS":    100,
	"PAGE_LIMIT_GAMES":      20,
	"SCORE_ROUND_WIN":       10,
	"SCORE_ROUND_LOSS":      -2,
	"SCORE_ROUND_DRAW":      2,
	"SCORE_GAME_WIN":        5,
	"SCORE_GAME_LOSS":       -3,
}

// Setup reads cfgPath (a dotenv file) on top of the defaults. A missing file
// is not an error: every key can also come from the environment.
func Setup(cfgPath string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var (
	ErrUnknownStore  = errors.New("STORE_BACKEND must be one of memory, redis, mongo")
	ErrMissingRedis  = errors.New("REDIS_URL is required for the redis store")
	ErrMissingMongo  = errors.New("MONGO_URI is required for the mongo store")
	ErrBadTimeout    = errors.New("WAITING_TIMEOUT and CHOICE_TIMEOUT must be positive")
	ErrBadQueryLimit = errors.New("MATCH_QUERY_LIMIT must be positive")
)

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if c.RedisUrl == "" {
			return ErrMissingRedis
		}
	case StoreMongo:
		if c.MongoUri == "" {
			return ErrMissingMongo
		}
	default:
		return ErrUnknownStore
	}
	if c.WaitingTimeout <= 0 || c.ChoiceTimeout <= 0 {
		return ErrBadTimeout
	}
	if c.MatchQueryLimit <= 0 {
		return ErrBadQueryLimit
	}
	return nil
}
