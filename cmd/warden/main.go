package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aegis-bot/warden/automod/config"
	"github.com/aegis-bot/warden/automod/filter"
	"github.com/aegis-bot/warden/pkg/metrics"
	"github.com/aegis-bot/warden/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "automated chat moderation daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "config and violation database (sqlite:// or postgres://)",
			Value:   "sqlite://data/warden/warden.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"WARDEN_MAX_DB_CONNECTIONS"},
			Value:   40,
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			EnvVars: []string{"WARDEN_LOG_LEVEL", "LOG_LEVEL"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		configCmd,
		checkCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis for shared state (config cache, sanctions, optionally the ledger); in-process state if unset",
			EnvVars: []string{"WARDEN_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "ledger-backend",
			Usage:   "where violation records are kept: sql or redis",
			Value:   "sql",
			EnvVars: []string{"WARDEN_LEDGER_BACKEND"},
		},
		&cli.DurationFlag{
			Name:    "ledger-retention",
			Usage:   "how long the redis ledger keeps violation records; never less than the longest escalation window (7 days)",
			Value:   7 * 24 * time.Hour,
			EnvVars: []string{"WARDEN_LEDGER_RETENTION"},
		},
		&cli.BoolFlag{
			Name:    "readonly",
			Usage:   "log moderation actions instead of performing them",
			EnvVars: []string{"WARDEN_READONLY", "READONLY"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":4100",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":4101",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "bearer token required for the HTTP API",
			EnvVars: []string{"WARDEN_ADMIN_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "bridge-host",
			Usage:   "method, hostname, and port of the chat platform bridge",
			EnvVars: []string{"WARDEN_BRIDGE_HOST"},
		},
		&cli.StringFlag{
			Name:    "bridge-token",
			EnvVars: []string{"WARDEN_BRIDGE_TOKEN"},
		},
		&cli.Float64Flag{
			Name:    "bridge-rate-limit",
			Usage:   "max requests per second to the platform bridge",
			Value:   20,
			EnvVars: []string{"WARDEN_BRIDGE_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "sanction-quota",
			Usage:   "max automated mutes and bans per group per hour",
			Value:   30,
			EnvVars: []string{"WARDEN_SANCTION_QUOTA"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook for violation notifications",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "kafka bootstrap brokers for the message topic; the consumer is disabled if unset",
			EnvVars: []string{"WARDEN_KAFKA_BROKERS"},
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Value:   "chat-messages",
			EnvVars: []string{"WARDEN_KAFKA_TOPIC"},
		},
		&cli.StringFlag{
			Name:    "kafka-group",
			Value:   "warden-automod",
			EnvVars: []string{"WARDEN_KAFKA_GROUP"},
		},
		&cli.StringFlag{
			Name:    "config-file",
			Usage:   "TOML file of group configs to seed into the database at startup",
			EnvVars: []string{"WARDEN_CONFIG_FILE"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger, err := cliutil.SetupSlog(cliutil.LogOptions{Level: cctx.String("log-level")})
		if err != nil {
			return err
		}

		shutdownTracing, err := configOTEL(ctx, "warden")
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownTracing(ctx)
		}()

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}

		srvConfig := Config{
			Logger:            logger,
			Bind:              cctx.String("bind"),
			LedgerBackend:     cctx.String("ledger-backend"),
			LedgerRetention:   cctx.Duration("ledger-retention"),
			BridgeHost:        cctx.String("bridge-host"),
			BridgeToken:       cctx.String("bridge-token"),
			BridgeRateLimit:   cctx.Float64("bridge-rate-limit"),
			ReadOnly:          cctx.Bool("readonly"),
			SlackWebhookURL:   cctx.String("slack-webhook-url"),
			SanctionQuotaHour: cctx.Int("sanction-quota"),
			KafkaBrokers:      cctx.StringSlice("kafka-brokers"),
			KafkaTopic:        cctx.String("kafka-topic"),
			KafkaGroup:        cctx.String("kafka-group"),
			AdminToken:        cctx.String("admin-token"),
		}
		if u := cctx.String("redis-url"); u != "" {
			rdb, err := cliutil.SetupRedis(ctx, u)
			if err != nil {
				return err
			}
			defer rdb.Close()
			srvConfig.RedisClient = rdb
		}

		srv, err := NewServer(db, srvConfig)
		if err != nil {
			return err
		}

		if path := cctx.String("config-file"); path != "" {
			if err := seedConfigs(ctx, srv.configs, path); err != nil {
				return err
			}
		}

		go func() {
			if err := metrics.RunServer(ctx, cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run automod service: %w", err)
		}
		return nil
	},
}

func seedConfigs(ctx context.Context, store *config.GormStore, path string) error {
	fs, err := config.LoadFileStore(path)
	if err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}
	if err := fs.SeedInto(ctx, store); err != nil {
		return fmt.Errorf("seeding configs: %w", err)
	}
	slog.Info("seeded group configs", "path", path, "groups", len(fs.Groups()))
	return nil
}

var configCmd = &cli.Command{
	Name:  "config",
	Usage: "inspect or seed group moderation configs",
	Subcommands: []*cli.Command{
		{
			Name:      "seed",
			Usage:     "load group configs from a TOML file into the database",
			ArgsUsage: "<file>",
			Action: func(cctx *cli.Context) error {
				if cctx.Args().Len() != 1 {
					return fmt.Errorf("expected a single config file path")
				}
				store, err := openConfigStore(cctx)
				if err != nil {
					return err
				}
				return seedConfigs(cctx.Context, store, cctx.Args().First())
			},
		},
		{
			Name:      "show",
			Usage:     "print the effective config of a group as JSON",
			ArgsUsage: "<group>",
			Action: func(cctx *cli.Context) error {
				if cctx.Args().Len() != 1 {
					return fmt.Errorf("expected a single group id")
				}
				store, err := openConfigStore(cctx)
				if err != nil {
					return err
				}
				cfg, err := store.GetConfig(cctx.Context, cctx.Args().First())
				if err != nil {
					return err
				}
				b, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(b))
				return nil
			},
		},
	},
}

func openConfigStore(cctx *cli.Context) (*config.GormStore, error) {
	logger, err := cliutil.SetupSlog(cliutil.LogOptions{Level: cctx.String("log-level"), Format: "text", Out: os.Stderr})
	if err != nil {
		return nil, err
	}
	db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
	if err != nil {
		return nil, err
	}
	return config.NewGormStore(db, logger)
}

var checkCmd = &cli.Command{
	Name:  "check",
	Usage: "reads lines of text from stdin and runs the content filters over each (spam is not evaluated)",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "config-file",
			Usage: "TOML file of group configs; defaults are used otherwise",
		},
		&cli.StringFlag{
			Name:  "group",
			Usage: "which group within the config file to use",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg := config.Default()
		if path := cctx.String("config-file"); path != "" {
			fs, err := config.LoadFileStore(path)
			if err != nil {
				return err
			}
			if cfg, err = fs.GetConfig(cctx.Context, cctx.String("group")); err != nil {
				return err
			}
		}
		filters := filter.DefaultSet()
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			res := filters.Evaluate(cctx.Context, &filter.Message{Content: line}, cfg)
			for _, err := range res.Errors {
				fmt.Fprintf(os.Stderr, "ERROR\t%s\n", err)
			}
			var hits []string
			for _, v := range res.Triggered() {
				hits = append(hits, fmt.Sprintf("%s:%s", v.Kind, v.Detail))
			}
			if len(hits) > 0 {
				fmt.Printf("MATCH\t%s\t%s\n", strings.Join(hits, ","), line)
			}
		}
		return scanner.Err()
	},
}
