// snippetd expands snippet triggers as you type.
//
// The daemon loads the snippet collection, keeps a trigger index in sync
// with it and serves the expansion engine to the desktop input method
// framework (IBus on Linux).
//
//	snippetd                 Run the daemon
//	snippetd -v              Run with debug logging
//	snippetd -install        Install the IBus component and exit
//	snippetd -uninstall      Remove the IBus component and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"snippetd/internal/config"
	"snippetd/internal/ime"
	"snippetd/internal/logging"
)

var (
	configPath    = flag.String("config", "", "path to config file")
	verbose       = flag.Bool("v", false, "enable debug logging")
	ibusFlag      = flag.Bool("ibus", false, "started by ibus-daemon")
	installFlag   = flag.Bool("install", false, "install the IBus component")
	uninstallFlag = flag.Bool("uninstall", false, "remove the IBus component")
)

func main() {
	flag.Parse()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *installFlag:
		exe, err := os.Executable()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error locating executable: %v\n", err)
			os.Exit(1)
		}
		if err := ime.Install(cfg.IBus.ComponentPath, ime.NewComponent(cfg.IBus.EngineName, exe)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to install: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Installed %s. Run 'ibus restart' to load.\n", cfg.IBus.ComponentPath)
		return
	case *uninstallFlag:
		if err := ime.Uninstall(cfg.IBus.ComponentPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to uninstall: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Uninstalled successfully.")
		return
	}

	if *ibusFlag {
		cfg.IBus.Enabled = true
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directories: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	crash := logging.NewCrashHandler(logger, logging.DefaultCrashDir())
	defer func() {
		if r := recover(); r != nil {
			crash.HandlePanic("main", r, nil)
			os.Exit(2)
		}
	}()

	d, err := newDaemon(cfg, logger, crash)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	if err := loader.Watch(); err != nil {
		logger.Debug("config hot reload disabled", "path", loader.Path(), "error", err)
	} else {
		defer loader.Close()
		loader.OnChange(func(c *config.Config) {
			logger.Info("configuration reloaded", "path", loader.Path())
			d.reconfigure(c)
		})
		go func() {
			for err := range loader.Errors() {
				logger.Warn("config reload rejected", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	if err := d.run(ctx); err != nil {
		logger.Error("daemon stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	lc, err := cfg.LoggerConfig()
	if err != nil {
		return nil, err
	}
	if *verbose {
		lc.Level = logging.LevelDebug
	}
	return logging.New(lc)
}
