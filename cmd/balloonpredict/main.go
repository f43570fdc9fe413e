package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/balloonpredict/internal/config"
	"github.com/lox/balloonpredict/internal/ingest"
	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/observability"
	"github.com/lox/balloonpredict/internal/predict"
)

type Globals struct {
	EnvFile   kongdotenv.ENVFileConfig    `kong:"optional,name=env-file,help='Path to a .env file loaded before flags are resolved'"`
	LogLevel  string                      `help:"Log level" enum:"debug,info,warn,error" default:"info" env:"LOG_LEVEL"`
	LogFormat string                      `help:"Log format" enum:"text,json" default:"text" env:"LOG_FORMAT"`
	Tuning    string                      `help:"Engine tuning file (JSON)" type:"path" env:"BALLOONPREDICT_TUNING"`
	Tracing   observability.TracingConfig `embed:"" prefix:"tracing-"`
}

type CLI struct {
	Globals

	Predict PredictCmd `cmd:"" help:"Predict one flight and print the result as JSON"`
	Serve   ServeCmd   `cmd:"" help:"Serve predictions over HTTP"`
	Ingest  IngestCmd  `cmd:"" help:"Load forecast data into the store"`
}

// Runtime is what every command receives once flags are parsed.
type Runtime struct {
	Ctx    context.Context
	Log    logging.Logger
	Config predict.Config
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("balloonpredict"),
		kong.Description("High-altitude balloon trajectory prediction."),
		kong.UsageOnError(),
		kong.Vars{
			"openmeteo_url":    ingest.DefaultOpenMeteoURL,
			"refresh_interval": ingest.DefaultRefreshInterval.String(),
			"horizon":          ingest.DefaultHorizon.String(),
		},
	)

	log := logging.New(logging.Config{Level: cli.LogLevel, Format: cli.LogFormat})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown, err := observability.InitTracing(ctx, cli.Tracing, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracing: %v\n", err)
		os.Exit(1)
	}

	rt, err := newRuntime(ctx, &cli.Globals, log)
	if err == nil {
		err = kctx.Run(rt)
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	observability.Shutdown(shutdownCtx, shutdown, log)
	done()

	kctx.FatalIfErrorf(err)
}

func newRuntime(ctx context.Context, g *Globals, log logging.Logger) (*Runtime, error) {
	cfg, err := config.Load(g.Tuning)
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}
	if g.Tuning != "" {
		log.Info(ctx, "tuning loaded", logging.String("path", g.Tuning))
	}
	return &Runtime{Ctx: ctx, Log: log, Config: cfg}, nil
}
