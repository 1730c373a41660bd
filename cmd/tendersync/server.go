package main

import (
	"context"
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
	"golang.org/x/sync/errgroup"

	"github.com/procurely/tendersync/internal/api"
	"github.com/procurely/tendersync/internal/config"
	"github.com/procurely/tendersync/internal/fetch"
	"github.com/procurely/tendersync/internal/pipeline"
	"github.com/procurely/tendersync/internal/sink"
	"github.com/procurely/tendersync/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tendersync server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running tendersync server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tendersync system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "tendersync.pid")
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
	fmt.Fprintf(os.Stderr, "tendersync version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("tendersync is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("tendersync is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	runner, err := buildRunner(cfg, store)
	if err != nil {
		return err
	}
	controller := pipeline.NewController()

	handler := api.NewHandler(api.Deps{
		Runner:     runner,
		Controller: controller,
		Store:      store,
		Token:      cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Runner:     runner,
		Controller: controller,
		Store:      store,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "tendersync listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})
	slog.Info("MCP server started (stdio transport)")

	if cfg.Schedule.Enabled {
		interval, err := time.ParseDuration(cfg.Schedule.Interval)
		if err != nil {
			return fmt.Errorf("parsing schedule interval: %w", err)
		}
		g.Go(func() error {
			return runScheduler(gctx, runner, controller, interval)
		})
		slog.Info("scheduler enabled", "interval", interval)
	}

	return g.Wait()
}

// runScheduler triggers an ingestion run every interval, skipping ticks that
// land while a run is still in flight.
func runScheduler(ctx context.Context, runner *pipeline.Runner, controller *pipeline.Controller, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !controller.TryStart() {
				slog.Warn("scheduled run skipped, previous run still in flight")
				continue
			}
			if _, err := runner.Run(ctx); err != nil {
				slog.Error("scheduled run failed", "error", err)
			}
			controller.Finish()
		}
	}
}

func buildRunner(cfg config.Config, store *storage.Store) (*pipeline.Runner, error) {
	pageDelay, err := time.ParseDuration(cfg.API.PageDelay)
	if err != nil {
		return nil, fmt.Errorf("parsing api.page_delay: %w", err)
	}
	timeout, err := time.ParseDuration(cfg.API.Timeout)
	if err != nil {
		return nil, fmt.Errorf("parsing api.timeout: %w", err)
	}
	defaultFrom, err := time.Parse(time.RFC3339, cfg.Fetch.DefaultFrom)
	if err != nil {
		return nil, fmt.Errorf("parsing fetch.default_from: %w", err)
	}
	var toOverride time.Time
	if cfg.Fetch.ToOverride != "" {
		toOverride, err = time.Parse(time.RFC3339, cfg.Fetch.ToOverride)
		if err != nil {
			return nil, fmt.Errorf("parsing fetch.to_override: %w", err)
		}
	}

	client := fetch.NewClient(cfg.API.OrganisationID, fetch.Options{
		BaseURL:   cfg.API.BaseURL,
		PageLimit: cfg.API.PageLimit,
		PageDelay: pageDelay,
		Timeout:   timeout,
	})

	workbookPath := cfg.Sink.WorkbookPath
	openSink := func() (pipeline.NoticeSink, error) {
		if err := os.MkdirAll(filepath.Dir(workbookPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating workbook directory: %w", err)
		}
		return sink.OpenWorkbook(workbookPath)
	}

	return pipeline.NewRunner(client, store, openSink, pipeline.Options{
		DefaultFrom:  defaultFrom,
		ToOverride:   toOverride,
		ValueEpsilon: cfg.Fetch.ValueEpsilon,
	}), nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("tendersync is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop tendersync (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to tendersync (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Organisation", "%s", cfg.API.OrganisationID)
	printStatus("Feed", "%s", cfg.API.BaseURL)
	printStatus("Workbook", "%s", cfg.Sink.WorkbookPath)
	if cfg.Schedule.Enabled {
		printStatus("Schedule", "every %s", cfg.Schedule.Interval)
	} else {
		printStatus("Schedule", "disabled")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
