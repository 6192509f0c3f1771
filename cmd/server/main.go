package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	rootCmd *cobra.Command
	debug   bool
)

func main() {
	rootCmd = &cobra.Command{
		Use:           "smileright",
		Short:         "SmileRight Dental bilingual booking agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "human-readable debug logging")

	rootCmd.AddCommand(newServeCmd(), newChatCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. level comes from LOG_LEVEL; --debug switches to the
// development encoder at debug level.
func newLogger(level string) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}
