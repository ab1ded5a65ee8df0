// Command loopctl is the operator CLI for Loop: schema migrations, demo data,
// outbox maintenance, role changes and a realtime tail.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"loop/internal/cache"
	"loop/internal/config"
	"loop/internal/database"
	"loop/internal/models"
	"loop/internal/notifications"
	"loop/internal/repository"
	"loop/internal/seed"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// deps holds the seams tests replace.
type deps struct {
	loadConfig func() (*config.Config, error)
	openDB     func(*config.Config) (*gorm.DB, error)
	closeDB    func(*gorm.DB) error
	openRedis  func(*config.Config) *redis.Client
	out        io.Writer
}

func defaultDeps() *deps {
	return &deps{
		loadConfig: config.LoadConfig,
		openDB:     database.Open,
		closeDB:    database.Close,
		openRedis: func(cfg *config.Config) *redis.Client {
			cache.InitRedis(cfg.RedisURL)
			return cache.GetClient()
		},
		out: os.Stdout,
	}
}

// withDB loads config, opens the database and hands both to fn.
func (d *deps) withDB(fn func(*config.Config, *gorm.DB) error) error {
	cfg, err := d.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := d.openDB(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = d.closeDB(db) }()
	return fn(cfg, db)
}

func (d *deps) printYAML(v any) error {
	enc := yaml.NewEncoder(d.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func newApp(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "loopctl",
		Usage: "Operate a Loop deployment",
		Commands: []*cli.Command{
			migrateCommand(d),
			seedCommand(d),
			outboxCommand(d),
			usersCommand(d),
			realtimeCommand(d),
		},
	}
}

func migrateCommand(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage SQL schema migrations",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return d.withDB(func(_ *config.Config, db *gorm.DB) error {
						if err := database.RunMigrations(ctx, db); err != nil {
							return fmt.Errorf("sql migrations failed: %w", err)
						}
						_, err := fmt.Fprintln(d.out, "sql migrations applied")
						return err
					})
				},
			},
			{
				Name:      "down",
				Usage:     "Roll back one migration, the latest when no version is given",
				ArgsUsage: "[version]",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return d.withDB(func(_ *config.Config, db *gorm.DB) error {
						if cmd.Args().Len() == 0 {
							version, err := database.RollbackLatest(ctx, db)
							if err != nil {
								return fmt.Errorf("rollback failed: %w", err)
							}
							if version == 0 {
								_, err = fmt.Fprintln(d.out, "nothing to roll back")
								return err
							}
							_, err = fmt.Fprintf(d.out, "rolled back migration %d\n", version)
							return err
						}
						version, err := strconv.Atoi(cmd.Args().First())
						if err != nil {
							return fmt.Errorf("invalid version %q: %w", cmd.Args().First(), err)
						}
						if err := database.RollbackMigration(ctx, db, version); err != nil {
							return fmt.Errorf("rollback failed: %w", err)
						}
						_, err = fmt.Fprintf(d.out, "rolled back migration %d\n", version)
						return err
					})
				},
			},
			{
				Name:  "status",
				Usage: "Print schema mode plus applied and pending migrations as YAML",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return d.withDB(func(cfg *config.Config, db *gorm.DB) error {
						status, err := database.GetSchemaStatus(ctx, db, cfg)
						if err != nil {
							return fmt.Errorf("schema status failed: %w", err)
						}
						return d.printYAML(status)
					})
				},
			},
		},
	}
}

func seedCommand(d *deps) *cli.Command {
	defaults := seed.DefaultOptions()
	return &cli.Command{
		Name:  "seed",
		Usage: "Populate the database with demo profiles, loops and activity",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "users", Value: int64(defaults.NumUsers), Usage: "profiles to create"},
			&cli.IntFlag{Name: "loops", Value: int64(defaults.NumLoops), Usage: "root loops to create"},
			&cli.FloatFlag{Name: "branch-chance", Value: defaults.BranchChance, Usage: "probability that a loop grows another branch"},
			&cli.IntFlag{Name: "coins", Value: defaults.StartingCoins, Usage: "starting coins per profile"},
			&cli.IntFlag{Name: "seed", Usage: "random seed, 0 for a random one"},
			&cli.BoolFlag{Name: "clean", Usage: "delete existing data first"},
			&cli.BoolFlag{Name: "dry-run", Usage: "generate without writing"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return d.withDB(func(cfg *config.Config, db *gorm.DB) error {
				if cfg.IsProduction() && cmd.Bool("clean") {
					return errors.New("refusing to clean a production database")
				}
				opts := defaults
				opts.NumUsers = int(cmd.Int("users"))
				opts.NumLoops = int(cmd.Int("loops"))
				opts.BranchChance = cmd.Float("branch-chance")
				opts.StartingCoins = cmd.Int("coins")
				opts.RandomSeed = cmd.Int("seed")
				opts.ShouldClean = cmd.Bool("clean")
				opts.DryRun = cmd.Bool("dry-run")
				opts.MaxBranchDepth = cfg.MaxBranchDepth

				report, err := seed.Seed(ctx, db, opts)
				if err != nil {
					return err
				}
				return d.printYAML(report)
			})
		},
	}
}

func outboxCommand(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "outbox",
		Usage: "Inspect and repair the side-effect outbox",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Print event counts per status as YAML",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return d.withDB(func(_ *config.Config, db *gorm.DB) error {
						counts, err := repository.NewOutboxRepository(db).CountByStatus(ctx)
						if err != nil {
							return err
						}
						return d.printYAML(counts)
					})
				},
			},
			{
				Name:  "replay",
				Usage: "Move dead events back to pending",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return d.withDB(func(_ *config.Config, db *gorm.DB) error {
						n, err := repository.NewOutboxRepository(db).ReplayDead(ctx)
						if err != nil {
							return err
						}
						_, err = fmt.Fprintf(d.out, "replayed %d events\n", n)
						return err
					})
				},
			},
		},
	}
}

// resolveProfile accepts a profile id or a username.
func resolveProfile(ctx context.Context, repo repository.ProfileRepository, ref string) (*models.Profile, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return repo.GetByID(ctx, id)
	}
	return repo.GetByUsername(ctx, ref)
}

func usersCommand(d *deps) *cli.Command {
	setBanned := func(banned bool) cli.ActionFunc {
		return func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("expected <user>")
			}
			return d.withDB(func(_ *config.Config, db *gorm.DB) error {
				repo := repository.NewProfileRepository(db)
				p, err := resolveProfile(ctx, repo, cmd.Args().First())
				if err != nil {
					return fmt.Errorf("find user: %w", err)
				}
				if err := repo.SetBanned(ctx, p.ID, banned); err != nil {
					return err
				}
				cache.InvalidateProfile(ctx, p.ID)
				_, err = fmt.Fprintf(d.out, "%s banned=%t\n", p.Username, banned)
				return err
			})
		}
	}

	return &cli.Command{
		Name:  "users",
		Usage: "Change roles and bans without an admin account",
		Commands: []*cli.Command{
			{
				Name:      "set-role",
				Usage:     "Grant a role (user, moderator, admin)",
				ArgsUsage: "<user> <role>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 2 {
						return errors.New("expected <user> <role>")
					}
					role := cmd.Args().Get(1)
					if !models.ValidRole(role) {
						return fmt.Errorf("unknown role %q", role)
					}
					return d.withDB(func(_ *config.Config, db *gorm.DB) error {
						repo := repository.NewProfileRepository(db)
						p, err := resolveProfile(ctx, repo, cmd.Args().First())
						if err != nil {
							return fmt.Errorf("find user: %w", err)
						}
						if err := repo.SetRole(ctx, p.ID, role); err != nil {
							return err
						}
						cache.InvalidateProfile(ctx, p.ID)
						_, err = fmt.Fprintf(d.out, "%s is now %s\n", p.Username, role)
						return err
					})
				},
			},
			{Name: "ban", Usage: "Ban a user", ArgsUsage: "<user>", Action: setBanned(true)},
			{Name: "unban", Usage: "Lift a ban", ArgsUsage: "<user>", Action: setBanned(false)},
		},
	}
}

func realtimeCommand(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "realtime",
		Usage: "Watch realtime room traffic",
		Commands: []*cli.Command{
			{
				Name:      "tail",
				Usage:     "Print messages for rooms matching a pattern, such as user:* or loop:<id>",
				ArgsUsage: "[pattern]",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := d.loadConfig()
					if err != nil {
						return fmt.Errorf("load config: %w", err)
					}
					rdb := d.openRedis(cfg)
					if rdb == nil {
						return errors.New("redis is not reachable")
					}
					defer func() { _ = rdb.Close() }()

					pattern := cmd.Args().First()
					if pattern == "" {
						pattern = "*"
					}
					enc := json.NewEncoder(d.out)
					err = notifications.NewNotifier(rdb).Subscribe(ctx, pattern, func(m notifications.Message) {
						_ = enc.Encode(m)
					})
					if err != nil {
						return err
					}
					<-ctx.Done()
					return nil
				},
			},
		},
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newApp(defaultDeps()).Run(ctx, os.Args)
}

func main() {
	if err := run(); err != nil {
		slog.Error("loopctl failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
