package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/mhismail3/tron-sub010/external"
	"github.com/mhismail3/tron-sub010/internal/config"
	"github.com/mhismail3/tron-sub010/internal/contextmgr"
	"github.com/mhismail3/tron-sub010/internal/models"
	"github.com/mhismail3/tron-sub010/internal/monitoring"
	"github.com/mhismail3/tron-sub010/internal/normalize"
	"github.com/mhismail3/tron-sub010/internal/store"
	"github.com/mhismail3/tron-sub010/internal/summarizer"
	"github.com/mhismail3/tron-sub010/internal/tokens"
)

// app is what one command invocation runs against.
type app struct {
	cfg       *config.Config
	source    string
	logger    zerolog.Logger
	sessionID string

	registry  *models.Registry
	estimator tokens.Estimator
	metrics   *monitoring.Metrics
	events    *monitoring.EventLog
	store     store.Store
}

// newApp resolves the config and sets up logging and recorders. sessionID may
// be empty, in which case a new one is generated.
func newApp(cmd *cobra.Command, sessionID string) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	data, source, err := resolveConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Monitoring.LogLevel = zerolog.DebugLevel.String()
	}

	logger := monitoring.Global(monitoring.LoggerConfig{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: cfg.Monitoring.LogOutput,
	})
	logger.Debug().
		Str("version", Version).
		Str("config", source).
		Str("model", cfg.Context.Model).
		Msg("configuration loaded")

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	a := &app{
		cfg:       cfg,
		source:    source,
		logger:    logger,
		sessionID: sessionID,
		registry:  models.NewRegistry(logger),
		estimator: buildEstimator(cfg.Tokens, logger),
	}
	if cfg.Monitoring.MetricsEnabled {
		a.metrics = monitoring.NewMetrics()
	}
	if path := cfg.Monitoring.EventLogPath; path != "" {
		if a.events, err = monitoring.OpenEventLog(path, sessionID); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// recorders returns the enabled recorders; empty when none are.
func (a *app) recorders() monitoring.Recorders {
	var rs monitoring.Recorders
	if a.metrics != nil {
		rs = append(rs, a.metrics)
	}
	if a.events != nil {
		rs = append(rs, a.events)
	}
	return rs
}

// newManager builds a context manager for model (config model when empty).
func (a *app) newManager(ctx context.Context, model string) (*contextmgr.Manager, error) {
	opts, err := a.managerOptions(ctx)
	if err != nil {
		return nil, err
	}
	cfg := a.cfg.Context
	if model != "" {
		cfg.Model = model
	}
	return contextmgr.New(cfg, opts...)
}

// resumeManager rebuilds the manager for a stored session.
func (a *app) resumeManager(ctx context.Context, st store.Store) (*contextmgr.Manager, error) {
	state, err := st.Load(ctx, a.sessionID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", a.sessionID, err)
	}
	opts, err := a.managerOptions(ctx)
	if err != nil {
		return nil, err
	}
	return contextmgr.NewFromState(state, a.cfg.Context, opts...)
}

func (a *app) managerOptions(ctx context.Context) ([]contextmgr.Option, error) {
	s, err := buildSummarizer(ctx, a.cfg.Summarizer, a.logger)
	if err != nil {
		return nil, err
	}
	return []contextmgr.Option{
		contextmgr.WithLogger(a.logger),
		contextmgr.WithSessionID(a.sessionID),
		contextmgr.WithRegistry(a.registry),
		contextmgr.WithEstimator(a.estimator),
		contextmgr.WithSummarizer(s),
		contextmgr.WithMetrics(a.recorders()),
	}, nil
}

// openStore opens the configured session store. It returns nil when
// persistence is disabled.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	switch a.cfg.Store.Type {
	case config.StoreMemory:
		a.store = store.NewMemoryStore(a.cfg.Store.TTL, store.DefaultCleanupInterval)
	case config.StoreSQLite:
		db, err := store.OpenSQLite(ctx, a.cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		a.store = db
	}
	return a.store, nil
}

// close flushes metrics to w and releases the event log and store.
func (a *app) close(w io.Writer) error {
	var errs []error
	if a.metrics != nil {
		errs = append(errs, a.metrics.WriteText(w))
	}
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func buildEstimator(cfg config.TokensConfig, logger zerolog.Logger) tokens.Estimator {
	if cfg.Estimator == config.EstimatorTiktoken {
		return tokens.NewTiktokenEstimator(cfg.Encoding, logger)
	}
	return tokens.NewCharEstimator()
}

// buildSummarizer returns the configured summarizer. Bedrock needs AWS
// credentials at build time; the other providers only at call time.
func buildSummarizer(ctx context.Context, cfg config.SummarizerConfig, logger zerolog.Logger) (summarizer.Summarizer, error) {
	keyword := summarizer.NewKeywordSummarizer()
	if cfg.Type != config.SummarizerLLM {
		return keyword, nil
	}

	opts := []summarizer.LLMOption{summarizer.WithLogger(logger)}
	if cfg.LLM.Provider == external.ProviderBedrock {
		client, err := external.NewBedrockClient(ctx, cfg.Region)
		if err != nil {
			if !cfg.Fallback {
				return nil, err
			}
			logger.Warn().Err(err).Msg("bedrock unavailable, using keyword summarizer")
			return keyword, nil
		}
		opts = append(opts, summarizer.WithHTTPClient(client))
	}

	llm := summarizer.NewLLMSummarizer(cfg.LLM, opts...)
	if !cfg.Fallback {
		return llm, nil
	}
	fb := summarizer.WithFallback(llm, keyword)
	fb.Logger = logger
	return fb, nil
}

// readConversation reads path ("-" for stdin). The file is either a message
// array or a provider request body with "messages".
func readConversation(cmd *cobra.Command, path string) (normalize.Request, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return normalize.Request{}, err
	}
	if !gjson.ValidBytes(data) {
		return normalize.Request{}, fmt.Errorf("%s: invalid JSON", path)
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() && !root.Get("messages").IsArray() {
		return normalize.Request{}, fmt.Errorf("%s: expected a message array or an object with messages", path)
	}
	return normalize.ParseRequest(data), nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// loadConversation puts conv into mgr. Messages replace the buffer unless
// appending, in which case they are added one by one.
func loadConversation(mgr *contextmgr.Manager, conv normalize.Request, appending bool) {
	if conv.System != "" {
		mgr.SetSystemPrompt(conv.System)
	}
	if len(conv.Tools) > 0 {
		mgr.SetTools(conv.Tools)
	}
	if !appending {
		mgr.SetMessages(conv.Messages)
		return
	}
	for _, m := range conv.Messages {
		mgr.AddMessage(m)
	}
}
