package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"whisperer/internal/app"
	"whisperer/internal/asr"
	"whisperer/internal/config"
)

const defaultConfigPath = "config.json"

func usage(fs *flag.FlagSet) func() {
	return func() {
		name := filepath.Base(os.Args[0])
		fmt.Fprintf(fs.Output(), `Usage: %s [options]

Records speech from the microphone with hotkeys, cuts it into utterances,
sends each one to a transcription API and delivers the text.

  %s                        record mode, reading ./config.json
  %s -config my.yaml        record mode with another config file
  %s -file memo.m4a         transcribe an existing file to memo.txt

Without a config file and without flags, a default config.json is written
and the program exits so it can be edited.

Options:
`, name, name, name, name)
		fs.PrintDefaults()
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet(filepath.Base(os.Args[0]), flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (JSON or YAML); defaults to ./config.json")
	filePath := fs.String("file", "", "transcribe an existing audio file instead of recording")
	fv := config.BindFlags(fs)
	fs.Usage = usage(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, done, err := loadConfig(*configPath, fv.AnySet() || *filePath != "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if done {
		fmt.Printf("default config created at %s. Please edit it and re-run.\n", defaultConfigPath)
		return 0
	}
	if err := config.LoadEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		return 1
	}
	config.ApplyFlags(&cfg, fv)
	if err := config.Validate(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 1
	}

	logger, closer := app.NewLogger(cfg)
	defer closer.Close()
	config.InitCacheDir(&cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *filePath != "" {
		if err := app.RunFileMode(ctx, cfg, *filePath, fv.OutputPath, fv.Segment, logger); err != nil {
			logger.Error("file transcription failed", "component", "main", "file", *filePath, "err", err)
			var re *asr.RetryExhaustedError
			if errors.As(err, &re) {
				return 3
			}
			return 1
		}
		return 0
	}

	if err := app.RunRecordMode(ctx, cfg, logger); err != nil {
		logger.Error("recording stopped", "component", "main", "err", err)
		return 1
	}
	logger.Info("bye", "component", "main")
	return 0
}

// loadConfig reads path, or ./config.json when path is empty. With neither a
// config file nor flags it writes the default file and reports done.
func loadConfig(path string, flagsGiven bool) (cfg config.Config, done bool, err error) {
	if path != "" {
		cfg, err = config.Load(path)
		return cfg, false, err
	}
	_, err = os.Stat(defaultConfigPath)
	switch {
	case err == nil:
		cfg, err = config.Load(defaultConfigPath)
		return cfg, false, err
	case !os.IsNotExist(err):
		return cfg, false, err
	case !flagsGiven:
		if err := config.SaveDefault(defaultConfigPath); err != nil {
			return cfg, false, fmt.Errorf("write default config: %w", err)
		}
		return cfg, true, nil
	}
	return config.DefaultConfig(), false, nil
}
