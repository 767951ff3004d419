package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/webitel/code-delivery-service/config"
	"github.com/webitel/code-delivery-service/internal/domain/model"
)

const (
	ServiceName      = "code-delivery-service"
	ServiceNamespace = "webitel"

	startTimeout = 30 * time.Second
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	model.ServerVersion = version

	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Real-time verification code delivery",
		Version: fmt.Sprintf("%s (commit %s, branch %s, %s)", version, commit, branch, commitDate),
		Commands: []*cli.Command{
			serverCmd(),
			monitorCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:      "server",
		Aliases:   []string{"s"},
		Usage:     "Run the delivery server",
		ArgsUsage: "[--server.addr=:5000 --postgres.dsn=... ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config_file",
				Usage:   "Path to the configuration file",
				EnvVars: []string{config.EnvPrefix + "_CONFIG_FILE"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config_file"), c.Args().Slice())
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			startCtx, cancel := context.WithTimeout(c.Context, startTimeout)
			defer cancel()
			if err := app.Start(startCtx); err != nil {
				return err
			}
			slog.Info("SERVER_STARTED", slog.String("version", version), slog.String("build", buildTimestamp))

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			stopCtx, cancelStop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancelStop()
			return app.Stop(stopCtx)
		},
	}
}
