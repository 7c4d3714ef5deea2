// Senti is a personal assistant agent with persistent per-user memory.
//
// It exposes an HTTP and websocket API for conversation, remembers
// facts about each user across sessions, and can act on a configured
// email account and CalDAV calendar. Configuration is loaded from a
// single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	senti serve              Start the API server
//	senti ask <message>      Process a single message (for testing)
//	senti version            Print version and build information
//	senti -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sentellent/senti/internal/agent"
	"github.com/sentellent/senti/internal/api"
	"github.com/sentellent/senti/internal/buildinfo"
	"github.com/sentellent/senti/internal/calendar"
	"github.com/sentellent/senti/internal/config"
	"github.com/sentellent/senti/internal/email"
	"github.com/sentellent/senti/internal/embeddings"
	"github.com/sentellent/senti/internal/ingest"
	"github.com/sentellent/senti/internal/llm"
	"github.com/sentellent/senti/internal/memory"
	"github.com/sentellent/senti/internal/session"
	"github.com/sentellent/senti/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the senti command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the server and background goroutines.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:] — the command-line arguments after the
//     program name. We parse these manually rather than using the flag
//     package to avoid global state that interferes with parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any failure.
// The caller (main) is responsible for printing the error and exiting.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: senti ask <message>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// senti is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Senti - Personal Assistant Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: senti [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  ask          Process a single message (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/senti/config.yaml, /etc/senti/config.yaml")
	return nil
}

// noopRetriever and noopExtractor disable the memory subsystem for
// one-shot CLI runs, where nothing needs to persist.
type noopRetriever struct{}

func (noopRetriever) Search(ctx context.Context, userID, query string, k int) ([]memory.Record, error) {
	return nil, nil
}

type noopExtractor struct{}

func (noopExtractor) Process(ctx context.Context, userID, role, content string) {}

// runAsk handles the "senti ask <message>" subcommand. It boots a
// minimal agent (in-memory session store, no memory, no tools beyond
// what is configured) and processes one message, printing the reply to
// stdout. Useful for smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stderr, slog.LevelWarn, "text")

	message := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	client, err := llm.NewFromProvider(cfg.LLM.Provider, cfg.LLM.BaseURL, cfg.LLM.APIKey, logger)
	if err != nil {
		return err
	}

	gateway := agent.NewGateway(client, cfg.LLM.Model, logger)
	registry := newToolRegistry(cfg, logger)

	persona, err := loadPersona(cfg.PersonaFile)
	if err != nil {
		return err
	}

	loop := agent.NewLoop(session.NewMemoryStore(), noopRetriever{}, noopExtractor{}, gateway, registry, agent.Config{
		Persona:       persona,
		MaxToolCycles: cfg.Agent.MaxToolCycles,
		MemoryResults: cfg.Agent.MemoryResults,
	}, logger)

	turn, err := ingest.Normalize(message, nil)
	if err != nil {
		return err
	}

	reply, err := loop.Run(ctx, "cli", turn, nil)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, reply)
	return nil
}

// runServe handles the "senti serve" subcommand. It is the primary
// operating mode: loads config, opens the session and memory
// databases, wires the agent loop with the configured tools, starts
// the API server, and blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Senti", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level and format are
	// known. Everything before this point logs at Info in text.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			level, err = config.ParseLogLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
	)

	// All persistent state (session and memory databases) lives under
	// the data directory.
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	sessionPath := filepath.Join(cfg.DataDir, "sessions.db")
	sessions, err := session.NewSQLiteStore(sessionPath)
	if err != nil {
		return fmt.Errorf("open session database %s: %w", sessionPath, err)
	}
	defer sessions.Close()
	logger.Info("session database opened", "path", sessionPath)

	client, err := llm.NewFromProvider(cfg.LLM.Provider, cfg.LLM.BaseURL, cfg.LLM.APIKey, logger)
	if err != nil {
		return err
	}

	// Embeddings default to the reasoning backend's endpoint.
	embBaseURL := cfg.Embeddings.BaseURL
	if embBaseURL == "" {
		embBaseURL = cfg.LLM.BaseURL
	}
	embAPIKey := cfg.Embeddings.APIKey
	if embAPIKey == "" {
		embAPIKey = cfg.LLM.APIKey
	}
	embedder := embeddings.New(embeddings.Config{
		BaseURL: embBaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  embAPIKey,
	})

	memoryPath := filepath.Join(cfg.DataDir, "memory.db")
	memStore, err := memory.NewStore(memoryPath, embedder, logger)
	if err != nil {
		return fmt.Errorf("open memory database %s: %w", memoryPath, err)
	}
	defer memStore.Close()
	logger.Info("memory database opened", "path", memoryPath)

	extractor := memory.NewExtractor(client, cfg.LLM.Model, memStore, logger)
	gateway := agent.NewGateway(client, cfg.LLM.Model, logger)
	registry := newToolRegistry(cfg, logger)

	persona, err := loadPersona(cfg.PersonaFile)
	if err != nil {
		return err
	}

	loop := agent.NewLoop(sessions, memStore, extractor, gateway, registry, agent.Config{
		Persona:       persona,
		MaxToolCycles: cfg.Agent.MaxToolCycles,
		MemoryResults: cfg.Agent.MemoryResults,
	}, logger)

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, loop, memStore, logger)
	server.SetSessionLister(sessions)

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Senti stopped")
	return nil
}

// newToolRegistry builds the tool registry from whatever integrations
// the config enables. Unconfigured integrations stay nil; their tools
// report as unavailable rather than failing the conversation.
func newToolRegistry(cfg *config.Config, logger *slog.Logger) *tools.Registry {
	var mailbox tools.Mailbox
	var sender tools.MailSender
	var cal tools.Calendar

	if cfg.Email.IMAP.Host != "" {
		mailbox = email.NewClient(cfg.Email.IMAP, logger)
		logger.Info("email reading enabled", "host", cfg.Email.IMAP.Host)
	}
	if cfg.Email.SMTP.Host != "" {
		sender = email.NewSender(cfg.Email.SMTP, cfg.Email.From, logger)
		logger.Info("email sending enabled", "host", cfg.Email.SMTP.Host)
	}
	if cfg.Calendar.URL != "" {
		c, err := calendar.NewClient(cfg.Calendar, logger)
		if err != nil {
			logger.Error("calendar client unavailable", "error", err)
		} else {
			cal = c
			logger.Info("calendar enabled")
		}
	}

	return tools.NewRegistry(mailbox, sender, cal)
}

// loadPersona reads the persona file if one is configured. An empty
// path means the built-in persona.
func loadPersona(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read persona file %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// loadConfig locates and loads the config file. An empty explicit path
// walks the default search order.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
