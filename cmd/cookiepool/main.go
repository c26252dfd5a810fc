package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/app"
	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths // Multiple -config flags supported
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Cookiepool version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("cookiepool.toml"); err == nil {
			configFiles = append(configFiles, "cookiepool.toml")
		} else if _, err := os.Stat("deployments/local/cookiepool.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/cookiepool.toml")
		}
	}

	// Startup order: defaults -> files -> env -> CLI, then validate, then logger.
	// {key} references are resolved in app.New once storage is open.
	config, err := common.LoadFromFiles(nil, configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, finalPort, *serverHost)

	if err := config.Validate(); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(config, logger)

	logger.Debug().
		Str("badger_path", config.Storage.Badger.Path).
		Str("browser_mode", config.Browser.Mode).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Msg("Resolved configuration (sanitized)")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	srv := server.New(application)
	serverErr := make(chan error, 1)
	go func() {
		defer common.RecoverWithCrashFile()
		serverErr <- srv.Start()
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s", srv.Addr())).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("Server stopped unexpectedly")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	cancel()

	// Suspend cleanup runs here: cookies and storage of every managed domain are removed
	if err := application.Close(); err != nil {
		logger.Error().Err(err).Msg("Application close reported errors")
	}

	logger.Info().Msg("Server stopped")
}
