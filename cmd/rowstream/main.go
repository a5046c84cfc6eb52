package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/yourorg/rowstream-kit/pkg/config"
	apperrors "github.com/yourorg/rowstream-kit/pkg/errors"
	"github.com/yourorg/rowstream-kit/pkg/logging"
)

const usage = `usage:
  rowstream generate -out FILE [-rows N] [-cols N] [-config FILE]
  rowstream convert  -src FILE -dst FILE [-publish NAME] [-config FILE]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	fs := flag.NewFlagSet("rowstream "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "YAML or JSON config file (environment overrides it)")

	var cmd func(app *App) error
	switch args[0] {
	case "generate":
		out := fs.String("out", "", "destination file")
		rows := fs.Int("rows", 1000, "number of data rows")
		cols := fs.Int("cols", 10, "number of columns")
		cmd = func(app *App) error {
			if *out == "" {
				return fmt.Errorf("-out is required")
			}
			return app.Generate(ctx, *out, *rows, *cols)
		}
	case "convert":
		src := fs.String("src", "", "source delimited file")
		dst := fs.String("dst", "", "destination spreadsheet")
		name := fs.String("publish", "", "publish the spreadsheet under this name")
		cmd = func(app *App) error {
			if *src == "" || *dst == "" {
				return fmt.Errorf("-src and -dst are required")
			}
			url, err := app.Convert(ctx, *src, *dst, *name)
			if err != nil {
				return err
			}
			if url != "" {
				app.logger.Info("Spreadsheet published", logging.NewField("url", url))
			}
			return nil
		}
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}

	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer logging.Sync(logger)
	logger = logger.With(
		logging.NewField("app", cfg.AppName),
		logging.NewField("version", cfg.AppVersion),
	)

	app, err := NewApp(cfg, logger, nil)
	if err != nil {
		logger.Error("Failed to initialise", logging.NewField("error", err))
		return 1
	}

	if err := cmd(app); err != nil {
		appErr := apperrors.FromError(err)
		logger.Error("Command failed",
			logging.NewField("command", args[0]),
			logging.NewField("code", string(appErr.Code)),
			logging.NewField("details", appErr.Details),
			logging.NewField("error", err),
		)
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadConfigFromEnv()
	}
	return config.LoadConfigFromFile(path)
}
