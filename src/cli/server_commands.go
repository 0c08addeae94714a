package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"browser-engine/src/config"
	"browser-engine/src/coordinator"
	"browser-engine/src/internal/common"
	"browser-engine/src/server"
)

var serverCmd = &cobra.Command{
	Use:   CmdServer,
	Short: "Start the browser optimization gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunServer(serverAddr, configPath)
	},
}

var statusCmd = &cobra.Command{
	Use:   CmdStatus,
	Short: "Query a running gateway for engine status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunStatus(serverAddr)
	},
}

// RunServer starts the optimization gateway and blocks until interrupted
func RunServer(addr string, configPath string) error {
	cfg := LoadConfigWithFallback(configPath)

	gateway, err := server.NewHTTPGateway(addr, cfg, coordinator.Options{})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gateway.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	common.CLILogger.Info("Browser engine gateway started on %s", gateway.Addr())
	common.CLILogger.Info("Facade endpoints: /optimize/cache, /optimize/memory, /tasks, /monitor")
	common.CLILogger.Info("Health check endpoint: http://%s/health", gateway.Addr())

	// Hot-reload tuning parameters while running
	var watcher *config.Watcher
	if configPath != "" {
		watcher, err = config.NewWatcher(configPath, func(reloaded *config.Config) {
			gateway.Coordinator().ApplyTuning(reloaded)
		})
		if err != nil {
			common.CLILogger.Warn("Config watcher unavailable: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	common.CLILogger.Info("Received shutdown signal, stopping gateway...")

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			common.CLILogger.Warn("Config watcher stop error: %v", err)
		}
	}

	if err := gateway.Stop(); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	common.CLILogger.Info("Gateway stopped")
	return nil
}

// RunStatus queries a running gateway's health and cache stats
func RunStatus(addr string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	health, err := fetchJSON(client, fmt.Sprintf("http://%s/health", addr))
	if err != nil {
		return fmt.Errorf("gateway not reachable at %s: %w", addr, err)
	}

	fmt.Printf("Gateway:  %s\n", addr)
	fmt.Printf("Status:   %v\n", health["status"])
	fmt.Printf("Pressure: %v\n", health["pressure"])

	if stats, err := fetchJSON(client, fmt.Sprintf("http://%s/cache/stats", addr)); err == nil {
		fmt.Printf("Cache:    %v entries, %v bytes (hits: %v, misses: %v)\n",
			stats["entry_count"], stats["total_size"], stats["hit_count"], stats["miss_count"])
	}

	if tasks, ok := health["tasks"].(map[string]interface{}); ok {
		fmt.Printf("Tasks:    queued: %v, running: %v, failed: %v\n",
			tasks["queued"], tasks["running"], tasks["failed"])
	}

	return nil
}

func fetchJSON(client *http.Client, url string) (map[string]interface{}, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}
