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

	"github.com/kalambet/doccheck/internal/api"
	"github.com/kalambet/doccheck/internal/config"
	"github.com/kalambet/doccheck/internal/extract"
	"github.com/kalambet/doccheck/internal/llm"
	"github.com/kalambet/doccheck/internal/metrics"
	"github.com/kalambet/doccheck/internal/pipeline"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the doccheck server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running doccheck server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show doccheck server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "doccheck.pid")
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

// newGateway builds the model backend selected by cfg.LLM.Protocol.
func newGateway(cfg config.Config) (llm.Gateway, error) {
	switch cfg.LLM.Protocol {
	case config.ProtocolChat:
		return llm.NewChatClient(llm.ChatConfig{
			BaseURL:     cfg.Chat.BaseURL,
			Provider:    cfg.Chat.Provider,
			APIKey:      cfg.Chat.APIKey,
			Model:       cfg.Chat.Model,
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
			TopP:        cfg.Chat.TopP,
		}), nil
	case config.ProtocolAssistant:
		return llm.NewAssistantClient(llm.AssistantConfig{
			BaseURL:         cfg.Assistant.BaseURL,
			APIKey:          cfg.Assistant.APIKey,
			AssistantID:     cfg.Assistant.ID,
			PollInterval:    cfg.Assistant.PollInterval,
			MaxPollAttempts: cfg.Assistant.PollAttempts,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm protocol %q", cfg.LLM.Protocol)
	}
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "doccheck version %s\n", version)

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
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg.Server) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("doccheck is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("doccheck is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, err := newGateway(cfg)
	if err != nil {
		return err
	}
	slog.Info("model backend configured", "protocol", cfg.LLM.Protocol)

	extractor := extract.New(extract.Config{
		Timeout:      cfg.Fetch.Timeout,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		UserAgent:    cfg.Fetch.UserAgent,
	})
	recorder := metrics.New()
	checker := pipeline.NewChecker(extractor, gateway, recorder)

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewHandler(api.Deps{
			Checker:      checker,
			Gateway:      gateway,
			Metrics:      recorder,
			MaxBodyBytes: int64(cfg.Server.MaxBodyBytes),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(checker, version))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "doccheck listening on %s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
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
		printError("doccheck is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop doccheck (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to doccheck (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    serverURL(cfg.Server),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	printStatus("Protocol", "%s", cfg.LLM.Protocol)
	reportStatus(context.Background(), client, cfg.Server.Port)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

type assistantStatus struct {
	Success   bool            `json:"success"`
	Assistant llm.BackendInfo `json:"assistant"`
	Error     string          `json:"error"`
}

// reportStatus prints server health and, when the server is up, the model
// backend it is configured with. It reports whether the server is running.
func reportStatus(ctx context.Context, client *apiClient, port int) bool {
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return false
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return false
	}
	printStatus("Server", "running on port %d", port)

	resp, err = client.get(ctx, "/api/assistant/status")
	if err != nil {
		printStatus("Model", "unknown (%v)", err)
		return true
	}
	defer resp.Body.Close()

	var st assistantStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		printStatus("Model", "unknown (%v)", err)
		return true
	}
	if !st.Success {
		printStatus("Model", "%s", colorize(colorRed, st.Error))
		return true
	}

	info := st.Assistant
	switch {
	case info.Name != "" && info.Model != "":
		printStatus("Model", "%s %s (%s, %s)", info.Protocol, info.ID, info.Name, info.Model)
	case info.Model != "":
		printStatus("Model", "%s %s", info.Protocol, info.Model)
	default:
		printStatus("Model", "%s %s", info.Protocol, info.ID)
	}
	return true
}
