package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	servePort string
	serveHost string
	serveDB   string
	serveSeed string
)

var rootCmd = &cobra.Command{
	Use:   "nozzlecam",
	Short: "Camera preview and nozzle calibration service",
	Long: `nozzlecam serves the camera preview panel: it polls the snapshot URL,
computes the CSS transform for the configured flip and rotate settings, and
records the nozzle tip position clicked on the preview.

Examples:
  nozzlecam --port 5000
  nozzlecam --db /data/nozzlecam.db --seed nozzlecam.yaml
  nozzlecam transform --flip-h --rotate
  nozzlecam orient snapshot.jpg oriented.webp --rotate`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.Flags().StringVar(&servePort, "port", "", "Web interface port (default from configuration)")
	rootCmd.Flags().StringVar(&serveHost, "host", DefaultWebHost, "Web interface host")
	rootCmd.Flags().StringVar(&serveDB, "db", "", "SQLite database path (default $NOZZLECAM_DB_PATH or ./"+DefaultDBFileName+")")
	rootCmd.Flags().StringVar(&serveSeed, "seed", "", "YAML file with initial settings, applied once")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	bridge, err := NewCameraBridge(serveDB)
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}
	defer bridge.Close()

	if serveSeed != "" {
		seed, err := LoadSeedFile(serveSeed)
		if err != nil {
			return err
		}
		applied, err := bridge.ApplySeed(seed, serveSeed)
		if err != nil {
			return err
		}
		if applied {
			if err := bridge.ReloadConfig(); err != nil {
				return err
			}
		}
	}

	config := bridge.Config()

	// Command line port wins over the stored one
	port := servePort
	if port == "" {
		port = config.WebPort
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Starting camera monitor and web interface...")
	fmt.Printf("Database: %s\n", bridge.dbFile)
	fmt.Printf("Cloud URL: %s\n", config.CloudURL)
	fmt.Printf("Poll interval: %v\n", config.PollInterval)
	fmt.Printf("Web interface: http://%s:%s\n", serveHost, port)

	webServer := NewWebServer(bridge)

	go func() {
		ticker := time.NewTicker(config.PollInterval)
		defer ticker.Stop()

		// Run initial check
		bridge.MonitorCamera(ctx)
		webServer.BroadcastPreview()

		for {
			select {
			case <-ticker.C:
				bridge.MonitorCamera(ctx)
				webServer.BroadcastPreview()
			case <-ctx.Done():
				return
			}
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		errChan <- webServer.Start(serveHost, port)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("web server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	fmt.Println("Shutting down services...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Web server shutdown: %v", err)
	}
	return nil
}
