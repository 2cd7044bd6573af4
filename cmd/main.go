package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	"github.com/flowcheck/flowcheck"
	"github.com/flowcheck/flowcheck/exitcodes"
	"github.com/flowcheck/flowcheck/flags"
	"github.com/flowcheck/flowcheck/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "flowcheck"
	app.Usage = "Conversational Assistant E2E Tester Service"
	app.Description = "flowcheck replays scripted conversations against an assistant and evaluates its event stream"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if flowcheck.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if flowcheck.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Fatal("Failed to setup open telemetry", "message", err)
	}
	defer otelShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server
	svc := service.New()
	svc.Start(ctx)
	defer svc.Shutdown()

	// Start CLI
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal("Application failed", "message", err)
	}
}

func run(cliCtx *cli.Context) error {
	logger := newLogger(cliCtx.String(flags.LogLevel.Name))

	cfg, err := flowcheck.NewConfig(cliCtx, logger)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return flowcheck.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config",
		"testDir", cfg.TestDir,
		"assistantURL", cfg.AssistantURL,
		"logDir", cfg.LogDir,
		"concurrency", cfg.Concurrency)

	ctx, cancel := context.WithCancelCause(cliCtx.Context)
	defer cancel(nil)

	app, err := flowcheck.New(ctx, cfg, Version, cancel)
	if err != nil {
		return flowcheck.NewRuntimeError(fmt.Errorf("failed to create flowcheck: %w", err))
	}

	if err := app.Start(ctx); err != nil {
		return err
	}
	if cfg.RunOnce {
		return nil
	}

	// Continuous mode: block until interrupted, then drain the run loop.
	<-ctx.Done()
	if err := app.Stop(context.Background()); err != nil {
		return flowcheck.NewRuntimeError(err)
	}
	return app.WaitForShutdown(context.Background())
}

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		logger.Warn("Unknown log level, using info", "level", level)
		parsed = log.InfoLevel
	}
	logger.SetLevel(parsed)
	log.SetLevel(parsed)
	return logger
}
