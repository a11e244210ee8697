package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/tiancaiamao/toolstream/pkg/logger"
)

func main() {
	mode := flag.String("mode", "", "Input format (text|sse). Default: text")
	configPath := flag.String("config", "", "Config file path (default ~/.toolstream/config.json)")
	chunkSize := flag.Int("chunk", 64, "Bytes per chunk in text mode")
	snapshots := flag.Bool("snapshots", false, "Emit a snapshot line after every chunk")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Errors raised before the configured logger exists go here.
	slog.SetDefault(logger.NewDefaultLogger().Slog())

	opts := runOptions{
		ConfigPath: *configPath,
		ChunkSize:  *chunkSize,
		Snapshots:  *snapshots,
		Debug:      *debug,
	}

	switch *mode {
	case "text", "":
		opts.Mode = modeText
	case "sse":
		opts.Mode = modeSSE
	default:
		slog.Error("invalid mode", "mode", *mode, "valid_modes", "text|sse")
		os.Exit(1)
	}

	if err := run(opts, os.Stdin, os.Stdout); err != nil {
		slog.Error("toolstream error", "error", err)
		os.Exit(1)
	}
}
