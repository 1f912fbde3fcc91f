package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/keys"
)

const (
	configKey    = "config"
	keysKey      = "keys"
	redisAddrKey = "redis_addr"
	logLevelKey  = "log.level"
	logFormatKey = "log.format"
)

// app carries the per-invocation settings shared by all subcommands.
type app struct {
	v   *viper.Viper
	out io.Writer
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), out: os.Stdout}

	root := &cobra.Command{
		Use:   "tokenctl",
		Short: "Mint, verify and inspect tokens",
		Long: `tokenctl drives a goToken engine from the command line.
Keys are read from a directory of <kid>.<version>.pem and <kid>.<version>.key
files; the engine configuration is an optional YAML file.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			return a.initLogging(cmd.ErrOrStderr())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "Engine configuration file (YAML)")
	flags.String("keys", "keys", "Key directory")
	flags.String("redis-addr", "", "Redis address for the redis replay backend")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console, json)")
	_ = a.v.BindPFlag(configKey, flags.Lookup("config"))
	_ = a.v.BindPFlag(keysKey, flags.Lookup("keys"))
	_ = a.v.BindPFlag(redisAddrKey, flags.Lookup("redis-addr"))
	_ = a.v.BindPFlag(logLevelKey, flags.Lookup("log-level"))
	_ = a.v.BindPFlag(logFormatKey, flags.Lookup("log-format"))

	a.v.SetEnvPrefix("TOKENCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newKeygenCmd(a),
		newMintCmd(a),
		newVerifyCmd(a),
		newJWKSCmd(a),
		newSupportsCmd(a),
		newBenchCmd(a),
		newLintCmd(a),
		newReportCmd(a),
	)
	return root
}

func (a *app) initLogging(w io.Writer) error {
	level, err := zerolog.ParseLevel(a.v.GetString(logLevelKey))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	switch a.v.GetString(logFormatKey) {
	case "json":
		a.log = zerolog.New(w).With().Timestamp().Logger().Level(level)
	case "console", "":
		a.log = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger().Level(level)
	default:
		return fmt.Errorf("unknown log format %q", a.v.GetString(logFormatKey))
	}
	log.Logger = a.log
	return nil
}

func (a *app) loadConfig() (goToken.Config, error) {
	path := a.v.GetString(configKey)
	if path == "" {
		return goToken.DefaultConfig(), nil
	}
	cfg, err := goToken.LoadConfig(path)
	if err != nil {
		return goToken.Config{}, err
	}
	a.log.Debug().Str("path", path).Msg("using config file")
	return cfg, nil
}

// buildEngine loads the config and key directory and builds an engine.
// The returned cleanup closes the engine and any Redis client.
func (a *app) buildEngine(configure ...func(*goToken.Builder)) (*goToken.Engine, func(), error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	provider, err := keys.LoadDir(a.v.GetString(keysKey))
	if err != nil {
		return nil, nil, err
	}

	b := goToken.New().
		WithConfig(cfg).
		WithKeyProvider(provider).
		WithLogger(a.log).
		WithAuditSink(goToken.NewLoggerSink(a.log.With().Str("component", "audit").Logger()))
	var client redis.UniversalClient
	if addr := a.v.GetString(redisAddrKey); addr != "" {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		b.WithRedis(client)
	}
	for _, fn := range configure {
		fn(b)
	}

	e, err := b.Build()
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, nil, err
	}
	return e, func() {
		e.Close()
		if client != nil {
			_ = client.Close()
		}
	}, nil
}
