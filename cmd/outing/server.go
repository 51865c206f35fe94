package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/outing/internal/activities"
	"github.com/kalambet/outing/internal/agent"
	"github.com/kalambet/outing/internal/api"
	"github.com/kalambet/outing/internal/config"
	"github.com/kalambet/outing/internal/proxy"
	"github.com/kalambet/outing/internal/tools"
)

const (
	workerPollInterval = time.Second
	shutdownTimeout    = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the outing HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running outing server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show outing system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the outing tools over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		return runMCP(user)
	},
}

func init() {
	mcpCmd.Flags().String("user", "default", "user id for preference tools when the client omits one")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "outing.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "outing version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level, os.Stderr)

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("outing is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("outing is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	proxyClient := proxy.NewClientWithBaseURL(cfg.Proxy.OpenRouterAPIKey, cfg.Proxy.BaseURL)
	loop := agent.New(proxyClient, a.tools, cfg.Proxy.DefaultModel, cfg.Agent.MaxTurns,
		agent.WithHint(func(ctx context.Context) string {
			return a.prefs.Summary(ctx, tools.UserID(ctx))
		}),
	)

	deps := api.Deps{
		Agent:          loop,
		Models:         proxyClient,
		Preferences:    a.prefs,
		History:        a.history,
		Fetcher:        a.fetcher,
		Activities:     a.activities,
		Disabled:       cfg.Tools.DisabledSet(),
		AllowedOrigins: cfg.Server.Origins(),
	}

	if cfg.Scraper.Enabled {
		deps.Jobs = a.store
		interval := cfg.Scraper.IntervalDuration()
		if _, err := activities.Enqueue(a.store, 0, "startup"); err != nil {
			slog.Warn("queueing startup scrape", "error", err)
		}
		worker := activities.NewWorker(a.store, a.activities, interval, workerPollInterval)
		go worker.Run(ctx)
		slog.Info("scrape worker started", "interval", interval)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "outing listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runMCP serves the tool registry over stdio. Stdout carries the protocol,
// so logs go to stderr.
func runMCP(userID string) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	mcpSrv, err := api.NewMCPServer(api.MCPDeps{
		Tools:       a.tools,
		Preferences: a.prefs,
		UserID:      userID,
	})
	if err != nil {
		return fmt.Errorf("building MCP server: %w", err)
	}

	slog.Info("MCP server started (stdio transport)", "user_id", userID)
	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.LoadClient()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("outing is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop outing (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to outing (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.LoadClient()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	ctx := context.Background()

	running := false
	resp, err := client.get(ctx, "/health")
	switch {
	case err != nil:
		printStatus("Server", "stopped")
	case resp.StatusCode == http.StatusOK:
		resp.Body.Close()
		running = true
		printStatus("Server", "running on port %d", cfg.Server.Port)
	default:
		resp.Body.Close()
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	}

	printStatus("Model", "%s", cfg.Proxy.DefaultModel)
	printStatus("Storage", "%s (%s)", cfg.Storage.Backend, cfg.Storage.DataDir)
	printStatus("Google Maps", "%s", integrationLabel(cfg.Integrations.EnableGoogleMaps, cfg.Integrations.GoogleMapsAPIKey != ""))
	printStatus("OpenWeather", "%s", configuredLabel(cfg.Integrations.OpenWeatherAPIKey != ""))
	printStatus("Google Sheets", "%s", configuredLabel(cfg.Integrations.SheetsCredentialsFile != ""))
	if cfg.Tools.Disabled != "" {
		printStatus("Disabled tools", "%s", cfg.Tools.Disabled)
	}

	if !running {
		return nil
	}
	if stats, err := fetchScrapeStats(ctx, client); err == nil {
		printStatus("Activity cache", "%s", cacheLabel(stats))
	}
	var users struct {
		Users []string `json:"users"`
	}
	if resp, err := client.get(ctx, "/api/users"); err == nil && decodeJSON(resp, &users) == nil {
		printStatus("Users", "%d", len(users.Users))
	}
	return nil
}

func fetchScrapeStats(ctx context.Context, client *apiClient) (activities.Stats, error) {
	var stats activities.Stats
	resp, err := client.get(ctx, "/api/scrape/status")
	if err != nil {
		return stats, err
	}
	err = decodeJSON(resp, &stats)
	return stats, err
}

func cacheLabel(s activities.Stats) string {
	if s.LastUpdated == nil {
		return "empty"
	}
	return fmt.Sprintf("%d activities, updated %s", s.TotalActivities, s.LastUpdated.Local().Format(time.DateTime))
}

func configuredLabel(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func integrationLabel(enabled, hasKey bool) string {
	switch {
	case !enabled:
		return "disabled (mock results)"
	case hasKey:
		return "configured"
	default:
		return "enabled, no API key"
	}
}

// printStats writes cache stats as a by-source breakdown.
func printStats(s activities.Stats) {
	printStatus("Activity cache", "%s", cacheLabel(s))
	b, err := json.Marshal(s.BySource)
	if err == nil && len(s.BySource) > 0 {
		printStatus("By source", "%s", b)
	}
}
