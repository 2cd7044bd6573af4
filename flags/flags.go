package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "FLOWCHECK"

func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	TestDir = &cli.StringFlag{
		Name:     "testdir",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVar("TESTDIR"),
		Usage:    "Path to the directory from which to discover E2E test files",
	}
	Flows = &cli.StringFlag{
		Name:    "flows",
		Value:   "",
		EnvVars: prefixEnvVar("FLOWS"),
		Usage:   "Path to the flow definitions file used for coverage reporting (eg. 'flows.yaml')",
	}
	AssistantURL = &cli.StringFlag{
		Name:     "assistant-url",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVar("ASSISTANT_URL"),
		Usage:    "Base URL of the assistant under test (eg. 'http://localhost:5005')",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVar("RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: prefixEnvVar("LOGDIR"),
		Usage:   "Directory to store per-run transcripts and reports",
	}
	ReportFile = &cli.StringFlag{
		Name:    "report",
		Value:   "",
		EnvVars: prefixEnvVar("REPORT"),
		Usage:   "Path to write a machine-readable JSON run report. Empty disables the report.",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   4,
		EnvVars: prefixEnvVar("CONCURRENCY"),
		Usage:   "Number of test cases evaluated in parallel",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: prefixEnvVar("TIMEOUT"),
		Usage:   "Timeout for a whole test run. Set to 0 or omit for no timeout.",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Log level: debug, info, warn, error",
	}
)

var requiredFlags = []cli.Flag{
	TestDir,
	AssistantURL,
}

var optionalFlags = []cli.Flag{
	Flows,
	RunInterval,
	LogDir,
	ReportFile,
	Concurrency,
	Timeout,
	LogLevel,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
