package servecmder

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/solo/pkg/config"
	"github.com/papercomputeco/solo/pkg/engine/ollama"
	"github.com/papercomputeco/solo/pkg/gate"
	"github.com/papercomputeco/solo/pkg/ledger"
	"github.com/papercomputeco/solo/pkg/logger"
	"github.com/papercomputeco/solo/pkg/prompt"
	"github.com/papercomputeco/solo/pkg/session"
	"github.com/papercomputeco/solo/server"
)

const serveLongDesc string = `Serve the completion API in front of an Ollama model.

The server starts answering immediately; completion requests are rejected
with "model not loaded" until the model has been confirmed on the Ollama
server. Generation defaults in the config file are reloaded when it changes.

Examples:
  solo serve
  solo serve --config solo.toml
  solo serve --listen :9000 --model qwen2.5 --sqlite ~/.solo/ledger.db`

const serveShortDesc string = "Run the completion server"

type serveCommander struct {
	configPath string
	listen     string
	ollamaURL  string
	model      string
	sqlitePath string
	debug      bool
	jsonLogs   bool

	// listener replaces net.Listen when set.
	listener net.Listener
	logger   *zap.Logger
}

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmder.loadConfig(cmd)
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a TOML or YAML config file")
	cmd.Flags().StringVar(&cmder.listen, "listen", "", "Address to listen on (default :8000)")
	cmd.Flags().StringVar(&cmder.ollamaURL, "ollama-url", "", "Ollama server URL (default http://localhost:11434)")
	cmd.Flags().StringVar(&cmder.model, "model", "", "Ollama model to serve")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to the SQLite session ledger (default: in-memory)")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Log as JSON")

	return cmd
}

// loadConfig reads the config file, if any, and applies flags on top.
func (c *serveCommander) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		cfg, err = config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Server.Listen = c.listen
	}
	if flags.Changed("ollama-url") {
		cfg.Engine.OllamaURL = c.ollamaURL
	}
	if flags.Changed("model") {
		cfg.Engine.Model = c.model
	}
	if flags.Changed("sqlite") {
		cfg.Ledger.SQLitePath = c.sqlitePath
	}
	if flags.Changed("debug") {
		cfg.Log.Debug = c.debug
	}
	if flags.Changed("json-logs") {
		cfg.Log.JSON = c.jsonLogs
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *serveCommander) run(ctx context.Context, cfg *config.Config) error {
	log := c.logger
	if log == nil {
		log = logger.NewLogger(cfg.Log.Debug, cfg.Log.JSON)
		defer log.Sync()
	}

	log.Info("solo starting",
		zap.String("listen", cfg.Server.Listen),
		zap.String("ollama", cfg.Engine.OllamaURL),
		zap.String("model", cfg.Engine.Model),
		zap.Bool("debug", cfg.Log.Debug),
	)

	var recorder ledger.Recorder
	if cfg.Ledger.SQLitePath != "" {
		sqliteRecorder, err := ledger.NewSQLiteRecorder(cfg.Ledger.SQLitePath)
		if err != nil {
			return fmt.Errorf("could not open ledger %s: %w", cfg.Ledger.SQLitePath, err)
		}
		recorder = sqliteRecorder
		log.Info("using SQLite ledger", zap.String("path", cfg.Ledger.SQLitePath))
	} else {
		recorder = ledger.NewMemoryRecorder()
		log.Info("using in-memory ledger")
	}

	runner := session.NewRunner(session.Config{
		Builder:  prompt.New(cfg.Prompt.UserLabel, cfg.Prompt.AssistantLabel, cfg.Prompt.Delimiter),
		Defaults: cfg.Generation,
		Recorder: recorder,
	}, gate.New(), log)

	srv := server.New(server.Config{
		ListenAddr: cfg.Server.Listen,
		ModelID:    cfg.Server.ModelID,
	}, runner, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go loadEngine(ctx, cfg, runner, log)

	if c.configPath != "" {
		err := config.Watch(ctx, c.configPath, log, func(next *config.Config) {
			runner.SetDefaults(next.Generation)
		})
		if err != nil {
			log.Warn("config reload disabled", zap.Error(err))
		}
	}

	ln := c.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.Server.Listen)
		if err != nil {
			srv.Close()
			return fmt.Errorf("could not listen on %s: %w", cfg.Server.Listen, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		srv.Close()
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		if err := srv.Close(); err != nil {
			log.Warn("shutdown incomplete", zap.Error(err))
		}
		return <-errCh
	}
}

// loadEngine confirms the model on the Ollama server and installs it.
func loadEngine(ctx context.Context, cfg *config.Config, runner *session.Runner, log *zap.Logger) {
	eng := ollama.New(ollama.Config{
		BaseURL: cfg.Engine.OllamaURL,
		Model:   cfg.Engine.Model,
		Timeout: cfg.Engine.Timeout,
	}, log)

	if cfg.Engine.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Engine.LoadTimeout)
		defer cancel()
	}

	if err := eng.Load(ctx); err != nil {
		runner.MarkEngineFailed(err)
		return
	}
	if err := runner.SetEngine(eng); err != nil {
		log.Error("could not install engine", zap.Error(err))
	}
}
