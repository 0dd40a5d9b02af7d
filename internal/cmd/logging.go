package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

var (
	logger  *slog.Logger
	logFile *os.File
)

// initLogging installs the process logger from the log.* settings.
// Without log.file it writes to stderr.
func initLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(viper.GetString("log.level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if path := viper.GetString("log.file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot open log file %s: %v, logging to stderr\n", path, err)
		} else {
			logFile = f
			out = f
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(viper.GetString("log.format"), "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

func closeLogging() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}
