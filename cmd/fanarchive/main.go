package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"fanarchive/archive"
	"fanarchive/cmd/fanarchive/commands"
	"fanarchive/lib/restyutil"
	"fanarchive/lib/telemetry"
)

func main() {
	ctx := context.Background()

	verbose := os.Getenv("FANARCHIVE_VERBOSE") != ""
	telemetry.InitSlog(verbose)
	_, err := telemetry.SetupFromEnv(ctx, "fanarchive")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("telemetry setup failed, continuing without traces", "err", err)
	}

	if verbose {
		out, err := restyutil.NewFilesystemOutput(".dev/resty/fanarchive")
		if err != nil {
			slog.Warn("failed to set up transcript output", "err", err)
		} else {
			archive.SetTranscriptOutput(out)
		}
	}

	commands.ExecuteContext(ctx)
}
