package main

import (
	"fmt"
	"os"

	"github.com/handiism/cloudmusic-downloader/internal/config"
	"github.com/handiism/cloudmusic-downloader/internal/logging"
	"github.com/handiism/cloudmusic-downloader/internal/tui"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run())
}

func run() int {
	configFlag := pflag.String("config", "", "Path to config file (.json, .yaml)")
	pflag.Parse()

	settings := config.DefaultSettings()
	if *configFlag != "" {
		var err error
		settings, err = config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 1
		}
	}

	// The screen belongs to the UI; logs only go to a configured file.
	logger := logging.Discard()
	if settings.LogFile != "" {
		fileLogger, closer := logging.New(settings.ToLoggingOptions())
		defer closer.Close()
		logger = fileLogger
	}

	if err := tui.Run(settings, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
