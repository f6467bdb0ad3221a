// Command levellist runs the level list ranking engine: the HTTP API with
// its reconcile scheduler, seed imports and one-off reconciliation.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/aimd54/levellist/internal/api/admin"
	"github.com/aimd54/levellist/internal/importer"
	"github.com/aimd54/levellist/internal/service/scheduler"
)

func main() {
	cliApp := &cli.App{
		Name:  "levellist",
		Usage: "ranked level list and points engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
				EnvVars: []string{"LEVELLIST_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			seedCommand(),
			reconcileCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and the reconcile scheduler",
		Action: func(c *cli.Context) error {
			a, err := newApp(c.String("config"))
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Server.Environment == "production" {
				gin.SetMode(gin.ReleaseMode)
			}
			router := gin.New()
			router.Use(gin.Recovery())

			router.GET("/health", func(ctx *gin.Context) {
				if err := a.db.Health(ctx.Request.Context()); err != nil {
					ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unavailable"})
					return
				}
				if a.redis != nil {
					if err := a.redis.Health(ctx.Request.Context()); err != nil {
						ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "redis unavailable"})
						return
					}
				}
				ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
			})
			if a.cfg.Metrics.Prometheus.Enabled {
				router.GET(a.cfg.Metrics.Prometheus.Path, gin.WrapH(promhttp.Handler()))
			}
			admin.NewHandler(a.engine, a.cfg.Server.AdminToken, a.log).RegisterRoutes(router)

			sched := scheduler.NewService(&a.cfg.Scheduler, a.engine, a.log)
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info().Int("port", a.cfg.Server.Port).Msg("HTTP server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server failed: %w", err)
				}
			case <-ctx.Done():
			}

			a.log.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:      "seed",
		Usage:     "import levels, users and records from a YAML file",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("seed requires exactly one file argument", 2)
			}

			seed, err := importer.Load(c.Args().First())
			if err != nil {
				return err
			}

			a, err := newApp(c.String("config"))
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := importer.New(a.engine, a.log).Apply(c.Context, seed)
			if err != nil {
				return err
			}
			fmt.Printf("imported %d levels (%d skipped), %d users, %d records\n",
				summary.Levels, summary.Skipped, summary.Users, summary.Records)
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "recompute every user total and verify both lists",
		Action: func(c *cli.Context) error {
			a, err := newApp(c.String("config"))
			if err != nil {
				return err
			}
			defer a.close()

			result, err := scheduler.NewService(&a.cfg.Scheduler, a.engine, a.log).RunOnce(c.Context)
			if err != nil {
				return err
			}
			fmt.Printf("recomputed %d users in %s, lists consistent\n", result.Users, result.Duration.Round(time.Millisecond))
			return nil
		},
	}
}
