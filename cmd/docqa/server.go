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

	"github.com/vkruglov/docqa/internal/api"
	"github.com/vkruglov/docqa/internal/chunkstore"
	"github.com/vkruglov/docqa/internal/composer"
	"github.com/vkruglov/docqa/internal/config"
	"github.com/vkruglov/docqa/internal/extract"
	"github.com/vkruglov/docqa/internal/filestore"
	"github.com/vkruglov/docqa/internal/generator"
	"github.com/vkruglov/docqa/internal/index"
	"github.com/vkruglov/docqa/internal/ingest"
	"github.com/vkruglov/docqa/internal/pipeline"
	"github.com/vkruglov/docqa/internal/planner"
	"github.com/vkruglov/docqa/internal/retrieval"
	"github.com/vkruglov/docqa/internal/status"
	"github.com/vkruglov/docqa/internal/transcribe"
	"github.com/vkruglov/docqa/internal/websearch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the docqa server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running docqa server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [query-id]",
	Short: "Show docqa system status, or the progress of a query",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return showQueryStatus(cmd.Context(), args[0])
		}
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "docqa.pid")
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
	fmt.Fprintf(os.Stderr, "docqa version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	// Refuse to start a second instance.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("docqa is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("docqa is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the index.
	embedder := index.NewHTTPEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.Model)
	idx, err := index.Open(cfg.Storage.DataDir, embedder)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing index: %v\n", err)
		}
	}()

	files, err := filestore.Open(cfg.Storage.UploadDir)
	if err != nil {
		return fmt.Errorf("opening file storage: %w", err)
	}

	// Assemble the pipeline.
	chunks := chunkstore.New(idx)
	var transcriber extract.Transcriber
	if cfg.Transcribe.BaseURL != "" {
		transcriber = transcribe.New(cfg.Transcribe.BaseURL, cfg.Transcribe.Timeout)
	}
	extractor := extract.New(transcriber)
	ingestor := ingest.NewPipeline(chunks, extractor, files, log)

	searcher := websearch.New(cfg.Search.BaseURL, cfg.Search.Timeout, log)
	orchestrator := retrieval.NewOrchestrator(chunks, searcher, cfg.Retrieval.TopK, cfg.Search.MaxResults, log)

	gemini := generator.NewGemini(cfg.Generator.BaseURL, cfg.Generator.APIKey, cfg.Generator.Model, cfg.Generator.Timeout)
	responder := generator.NewResponder(gemini, log)
	plans := planner.New(responder, cfg.Planner.EnableCodeExecution)

	tracker := status.NewTracker(0)
	svc := pipeline.NewService(chunks, orchestrator, composer.Compose, responder, ingestor, plans, tracker, log)

	// Drop finished status entries periodically.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := tracker.Prune(time.Hour); n > 0 {
					log.Debug("pruned query statuses", "removed", n)
				}
			}
		}
	}()

	tempDir := filepath.Join(cfg.Storage.DataDir, "tmp")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}

	handler := api.NewAppHandler(api.AppDeps{
		Service: svc,
		Token:   cfg.Server.APIToken,
		TempDir: tempDir,
		Log:     log,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio.
	mcpSrv := api.NewMCPServer(api.MCPDeps{Service: svc, TempDir: tempDir})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("MCP stdio server error", "error", err)
		}
	}()
	log.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "docqa listening on %s\n", addr)
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
		printError("docqa is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop docqa (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to docqa (PID %d)", pid)
	return nil
}

func showQueryStatus(ctx context.Context, id string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.get(ctx, "/api/status/"+id)
	if err != nil {
		return err
	}

	var result struct {
		Phase    string `json:"phase"`
		Progress int    `json:"progress"`
		Message  string `json:"message"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	printStatus("Phase", "%s", result.Phase)
	printStatus("Progress", "%d%%", result.Progress)
	if result.Message != "" {
		printStatus("Message", "%s", result.Message)
	}
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
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Generator", "%s", cfg.Generator.Model)
	printStatus("Embedding", "%s at %s", cfg.Embedding.Model, cfg.Embedding.BaseURL)
	if cfg.Transcribe.BaseURL != "" {
		printStatus("Transcribe", "%s", cfg.Transcribe.BaseURL)
	} else {
		printStatus("Transcribe", "not configured")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
