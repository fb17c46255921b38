package main

import (
	"context"
	"os"

	"github.com/stratum-ci/stratum/cli"
	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/telemetry"
	"github.com/stratum-ci/stratum/internal/tf"
	"github.com/stratum-ci/stratum/internal/util"
	"github.com/stratum-ci/stratum/options"
	"github.com/stratum-ci/stratum/pkg/log"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	var exitCode tf.DetailedExitCode

	opts := options.NewStratumOptions()

	defer errors.Recover(checkForErrorsAndExit(opts.Logger, exitCode.Get()))

	app := cli.NewApp(opts, Version)

	ctx, tlm := setupContext(opts, &exitCode)

	err := app.RunContext(ctx, os.Args)

	if shutdownErr := tlm.Shutdown(ctx); shutdownErr != nil {
		opts.Logger.Warnf("Could not flush telemetry: %v", shutdownErr)
	}

	checkForErrorsAndExit(opts.Logger, exitCode.Get())(err)
}

// checkForErrorsAndExit logs the error and exits with the underlying process
// exit code. Without an error the recorded detailed exit code is used, so a
// plan with pending changes exits 2.
func checkForErrorsAndExit(logger log.Logger, exitCode int) func(error) {
	return func(err error) {
		if err == nil {
			os.Exit(exitCode)
		}

		logger.Error(err.Error())

		if errStack := errors.ErrorStack(err); errStack != "" {
			logger.Trace(errStack)
		}

		var classified *tf.ClassifiedError
		if errors.As(err, &classified) && classified.Remedy != "" {
			logger.Errorf("Suggested fix: %s", classified.Remedy)
		}

		code, codeErr := util.GetExitCode(err)
		if codeErr != nil {
			code = 1
		}

		os.Exit(code)
	}
}

func setupContext(opts *options.StratumOptions, exitCode *tf.DetailedExitCode) (context.Context, *telemetry.Telemeter) {
	ctx := context.Background()
	ctx = tf.ContextWithDetailedExitCode(ctx, exitCode)
	ctx = log.ContextWithLogger(ctx, opts.Logger)

	tlm, err := telemetry.NewTelemeter(&telemetry.Options{
		AppName:    cli.AppName,
		AppVersion: Version,
		Writer:     opts.ErrWriter,
		Enabled:    os.Getenv("STRATUM_TELEMETRY") == "1",
	})
	if err != nil {
		opts.Logger.Warnf("Could not initialize telemetry: %v", err)
		tlm = new(telemetry.Telemeter)
	}

	return telemetry.ContextWithTelemeter(ctx, tlm), tlm
}
