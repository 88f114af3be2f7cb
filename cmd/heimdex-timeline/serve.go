package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-timeline/internal/api"
	"github.com/heimdex/heimdex-timeline/internal/config"
	"github.com/heimdex/heimdex-timeline/internal/db"
	"github.com/heimdex/heimdex-timeline/internal/editor"
	"github.com/heimdex/heimdex-timeline/internal/frames"
	"github.com/heimdex/heimdex-timeline/internal/logging"
	"github.com/heimdex/heimdex-timeline/internal/playback"
	"github.com/heimdex/heimdex-timeline/internal/segmentation"
	"github.com/heimdex/heimdex-timeline/internal/ui"
)

var headless bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local API server and system tray",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Flags().Changed("headless"))
	},
}

func init() {
	serveCmd.Flags().BoolVar(&headless, "headless", false, "run without the system tray")
	rootCmd.AddCommand(serveCmd)
}

func serve(headlessFlag bool) error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if headlessFlag {
		cfg.SetHeadless(headless)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.FramesDir(), cfg.ExportDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel(), cfg.LogFile())
	logger.Info("starting heimdex timeline", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := segmentation.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fetcher := frames.NewHTTPFetcher(cfg.APIBase(), cfg.FrameTimeout(), logging.WithComponent(logger, "frames"))
	ed, err := editor.New(fetcher, editor.Options{
		FramesDir:    cfg.FramesDir(),
		CacheLimit:   cfg.FrameCacheLimit(),
		FetchTimeout: cfg.FrameTimeout(),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize editor: %w", err)
	}
	defer ed.Close()

	printBanner(cfg, authToken)

	apiServer := api.NewServer(api.ServerConfig{
		Port:          cfg.Port(),
		Version:       config.Version,
		Editor:        ed,
		Segmentations: segmentation.NewService(repo, logger),
		Tokens:        repo,
		FrameServer:   playback.NewFrameServer(ed.Handles, logger),
		ExportDir:     cfg.ExportDir(),
		Logger:        logger,
		StartTime:     startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	var tray *ui.Tray
	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			Store:  ed.Store,
			Logger: logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if tray != nil {
		tray.Quit()
	}

	logger.Info("shutdown complete")
	return nil
}

func printBanner(cfg config.Config, authToken string) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                 HEIMDEX TIMELINE v%-24s║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Frames:     %-45s ║\n", cfg.APIBase())
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// ensureAuthToken returns the API bearer token, generating and storing one
// on first run.
func ensureAuthToken(repo segmentation.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}
