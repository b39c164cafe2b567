// Package config builds the runtime configuration of the two CLIs.
// Values come from the environment (and a .env file if present) and are
// then overridden by command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pkgconfig "github.com/Checker-Finance/apitests/pkg/config"
	"github.com/Checker-Finance/apitests/pkg/logger"
)

// ErrInvalid marks configuration that cannot be used; the CLIs exit with 2.
var ErrInvalid = errors.New("invalid configuration")

// Common holds settings shared by both CLIs.
type Common struct {
	ServiceName string
	Env         string // "dev", "ci", "prod"
	LogLevel    string
	HTTPTimeout time.Duration
	RunTimeout  time.Duration // 0 = no overall deadline

	AWSRegion      string
	SecretName     string // when set, credentials come from Secrets Manager
	SecretCacheTTL time.Duration

	PushgatewayURL string // empty disables the metrics push
}

// Sinks configures where scenario results are delivered besides the log.
type Sinks struct {
	NATSURL       string // empty disables publishing
	ResultSubject string
	RedisAddr     string // empty disables the result store
	RedisDB       int
	DatabaseURL   string // optional history table next to redis

	PGMaxConns          int
	PGMinConns          int
	PGMaxConnLifetime   time.Duration
	PGMaxConnIdleTime   time.Duration
	PGHealthCheckPeriod time.Duration
}

// SmartiConfig configures smarti-apitest.
type SmartiConfig struct {
	Common
	Sinks

	URL      string
	Username string
	Password string

	Scenarios   []string // empty = default scenarios
	CleanupOnly bool
	Channels    int
	Messages    int
	RPS         float64
}

// DatasetConfig configures rc-dataset.
type DatasetConfig struct {
	Common

	URL         string
	Username    string
	Password    string
	NumRequests int
	MaxMessages int
	RPS         float64
}

func loadCommon(service, secretEnv string) Common {
	return Common{
		ServiceName:    pkgconfig.GetEnv("SERVICE_NAME", service),
		Env:            pkgconfig.GetEnv("ENV", "dev"),
		LogLevel:       pkgconfig.GetEnv("LOG_LEVEL", logger.DefaultLevel),
		HTTPTimeout:    pkgconfig.GetEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		RunTimeout:     pkgconfig.GetEnvDuration("RUN_TIMEOUT", 0),
		AWSRegion:      pkgconfig.GetEnv("AWS_REGION", "us-east-2"),
		SecretName:     pkgconfig.GetEnv(secretEnv, ""),
		SecretCacheTTL: pkgconfig.GetEnvDuration("SECRET_CACHE_TTL", 15*time.Minute),
		PushgatewayURL: pkgconfig.GetEnv("PUSHGATEWAY_URL", ""),
	}
}

func loadSinks() Sinks {
	return Sinks{
		NATSURL:             pkgconfig.GetEnv("NATS_URL", ""),
		ResultSubject:       pkgconfig.GetEnv("RESULT_SUBJECT", "evt.apitest.result.v1"),
		RedisAddr:           pkgconfig.GetEnv("REDIS_ADDR", ""),
		RedisDB:             pkgconfig.GetEnvInt("REDIS_DB", 0),
		DatabaseURL:         pkgconfig.GetEnv("DATABASE_URL", ""),
		PGMaxConns:          pkgconfig.GetEnvInt("PG_MAX_CONNS", 4),
		PGMinConns:          pkgconfig.GetEnvInt("PG_MIN_CONNS", 0),
		PGMaxConnLifetime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_LIFETIME", 30*time.Minute),
		PGMaxConnIdleTime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_IDLE_TIME", 5*time.Minute),
		PGHealthCheckPeriod: pkgconfig.GetEnvDuration("PG_HEALTH_CHECK_PERIOD", 1*time.Minute),
	}
}

func (c *Common) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.LogLevel, "loglevel", c.LogLevel, "log level: "+strings.Join(logger.Levels, ", "))
	fs.DurationVar(&c.HTTPTimeout, "http-timeout", c.HTTPTimeout, "timeout of a single HTTP request")
	fs.DurationVar(&c.RunTimeout, "timeout", c.RunTimeout, "overall deadline of the run (0 = none)")
}

func (c *Common) validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: http timeout must be positive", ErrInvalid)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("%w: run timeout must not be negative", ErrInvalid)
	}
	return nil
}

// LoadSmarti reads the environment and parses args (without the program name).
// flag.ErrHelp is returned as is when -h was given.
func LoadSmarti(args []string, output io.Writer) (*SmartiConfig, error) {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	cfg := &SmartiConfig{
		Common:      loadCommon("smarti-apitest", "SMARTI_SECRET_NAME"),
		Sinks:       loadSinks(),
		URL:         pkgconfig.GetEnv("SMARTI_URL", "http://localhost:8080/"),
		Username:    pkgconfig.GetEnv("SMARTI_USERNAME", "admin"),
		Password:    pkgconfig.GetEnv("SMARTI_PASSWORD", "admin"),
		Scenarios:   pkgconfig.GetEnvList("SMARTI_SCENARIOS", nil),
		CleanupOnly: pkgconfig.GetEnvBool("SMARTI_CLEANUP_ONLY", false),
		Channels:    pkgconfig.GetEnvInt("SMARTI_CHANNELS", 20),
		Messages:    pkgconfig.GetEnvInt("SMARTI_MESSAGES", 500),
		RPS:         pkgconfig.GetEnvFloat("SMARTI_RPS", 0),
	}

	fs := flag.NewFlagSet(cfg.ServiceName, flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}
	cfg.Common.bind(fs)
	fs.StringVar(&cfg.URL, "url", cfg.URL, "Smarti base URL")
	fs.StringVar(&cfg.Username, "username", cfg.Username, "Smarti admin username")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "Smarti admin password")
	fs.Var(&listFlag{values: &cfg.Scenarios}, "scenario", "scenario to run; repeatable or comma separated (default: current API scenarios)")
	fs.BoolVar(&cfg.CleanupOnly, "cleanup-only", cfg.CleanupOnly, "delete all clients and non-admin users, then exit")
	fs.IntVar(&cfg.Channels, "channels", cfg.Channels, "channels used by the performance scenario")
	fs.IntVar(&cfg.Messages, "messages", cfg.Messages, "messages sent by the performance scenario")
	fs.Float64Var(&cfg.RPS, "rps", cfg.RPS, "requests per second against Smarti (0 = unpaced)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %v", ErrInvalid, fs.Args())
	}

	cfg.URL = NormalizeBaseURL(cfg.URL)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *SmartiConfig) validate() error {
	if err := c.Common.validate(); err != nil {
		return err
	}
	if err := validateURL(c.URL); err != nil {
		return err
	}
	if c.Channels <= 0 || c.Messages <= 0 {
		return fmt.Errorf("%w: channels and messages must be positive", ErrInvalid)
	}
	if c.RPS < 0 {
		return fmt.Errorf("%w: rps must not be negative", ErrInvalid)
	}
	if c.SecretName == "" && c.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalid)
	}
	return nil
}

// LoadDataset reads the environment and parses args for rc-dataset.
func LoadDataset(args []string, output io.Writer) (*DatasetConfig, error) {
	_ = godotenv.Load()

	const rcAdmin = "rocketchat.internal.admin.test"
	cfg := &DatasetConfig{
		Common:      loadCommon("rc-dataset", "RC_SECRET_NAME"),
		URL:         pkgconfig.GetEnv("RC_URL", "http://localhost:3000/"),
		Username:    pkgconfig.GetEnv("RC_USERNAME", rcAdmin),
		Password:    pkgconfig.GetEnv("RC_PASSWORD", rcAdmin),
		NumRequests: pkgconfig.GetEnvInt("RC_NUM_REQUESTS", 5),
		MaxMessages: pkgconfig.GetEnvInt("RC_MAX_MESSAGES", 3),
		RPS:         pkgconfig.GetEnvFloat("RC_RPS", 0),
	}

	fs := flag.NewFlagSet(cfg.ServiceName, flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}
	cfg.Common.bind(fs)
	fs.StringVar(&cfg.URL, "url", cfg.URL, "Rocket.Chat base URL")
	fs.StringVar(&cfg.Username, "username", cfg.Username, "Rocket.Chat login username")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "Rocket.Chat login password")
	fs.IntVar(&cfg.NumRequests, "numRequests", cfg.NumRequests, "number of help requests to create")
	fs.IntVar(&cfg.MaxMessages, "maxMessages", cfg.MaxMessages, "maximum random messages per request")
	fs.Float64Var(&cfg.RPS, "rps", cfg.RPS, "requests per second against Rocket.Chat (0 = unpaced)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %v", ErrInvalid, fs.Args())
	}

	cfg.URL = NormalizeBaseURL(cfg.URL)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *DatasetConfig) validate() error {
	if err := c.Common.validate(); err != nil {
		return err
	}
	if err := validateURL(c.URL); err != nil {
		return err
	}
	if c.NumRequests <= 0 || c.MaxMessages <= 0 {
		return fmt.Errorf("%w: numRequests and maxMessages must be positive", ErrInvalid)
	}
	if c.RPS < 0 {
		return fmt.Errorf("%w: rps must not be negative", ErrInvalid)
	}
	return nil
}

// NormalizeBaseURL trims blanks and guarantees a trailing slash.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return raw
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url %q must be an absolute http(s) URL", ErrInvalid, raw)
	}
	return nil
}

// listFlag collects repeated and comma separated flag values. The first
// occurrence replaces whatever default the environment provided.
type listFlag struct {
	values  *[]string
	touched bool
}

func (l *listFlag) String() string {
	if l == nil || l.values == nil {
		return ""
	}
	return strings.Join(*l.values, ",")
}

func (l *listFlag) Set(v string) error {
	if !l.touched {
		*l.values = nil
		l.touched = true
	}
	*l.values = append(*l.values, pkgconfig.SplitList(v)...)
	return nil
}
