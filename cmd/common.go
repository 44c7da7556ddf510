package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spigell/property-matcher/internal/ai"
	"github.com/spigell/property-matcher/internal/ai/gemini"
	"github.com/spigell/property-matcher/internal/estate"
	"github.com/spigell/property-matcher/internal/logger"
	"github.com/spigell/property-matcher/internal/matching"
	"github.com/spigell/property-matcher/internal/metrics"
	"github.com/spigell/property-matcher/internal/secrets"
	"github.com/spigell/property-matcher/internal/snapshot"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	outputText = "text"
	outputJSON = "json"
)

var errExit = errors.New("exit requested")

// session carries everything one command invocation shares.
type session struct {
	ctx      context.Context
	runID    string
	config   *Config
	logger   *zap.Logger
	snapshot *snapshot.Snapshot
	engine   *matching.Engine
	recorder *metrics.Recorder
}

// newSession builds the logger, loads config and the snapshot. Failures are fatal.
func newSession(cmd *cobra.Command) *session {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	zlog, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		zlog.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		zlog.Fatal("config is required")
	}
	if config.Matching == nil {
		policy := matching.DefaultPolicy()
		config.Matching = &policy
	}
	if err := config.Matching.Validate(); err != nil {
		zlog.Fatal("invalid matching policy", zap.Error(err))
	}

	runID := uuid.NewString()
	zlog = logger.WithFields(zlog, zap.String(logger.FieldRunID, runID))

	zlog.Info("starting the property-matcher", zap.String("version", version), zap.String("command", cmd.Name()))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	zlog.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	snap, err := loadSnapshot(ctx, config.Source)
	if err != nil {
		zlog.Fatal("loading the snapshot", zap.Error(err))
	}
	zlog.Info("snapshot loaded",
		zap.Int("listings", len(snap.Listings)),
		zap.Int("profiles", len(snap.Profiles)),
		zap.Int("feedback", len(snap.Feedback)),
	)

	s := &session{
		ctx:      ctx,
		runID:    runID,
		config:   config,
		snapshot: snap,
		recorder: metrics.NewRecorder(),
	}
	// Fatal exits skip deferred calls, so metrics are written from the hook instead.
	s.logger = zlog.WithOptions(zap.WithFatalHook(s.fatalHook(zapcore.WriteThenFatal)))
	s.engine = matching.NewEngine(*config.Matching, s.logger)
	s.engine.SetObserver(s.recorder)

	return s
}

// flushHook runs flush before handing the entry to next.
type flushHook struct {
	flush func()
	next  zapcore.CheckWriteHook
}

func (h flushHook) OnWrite(ce *zapcore.CheckedEntry, fields []zapcore.Field) {
	h.flush()
	h.next.OnWrite(ce, fields)
}

func (s *session) fatalHook(next zapcore.CheckWriteHook) zapcore.CheckWriteHook {
	return flushHook{flush: s.close, next: next}
}

// close flushes metrics to the configured textfile.
func (s *session) close() {
	if s.config.MetricsFile == "" {
		return
	}
	if err := s.recorder.WriteTextfile(s.config.MetricsFile); err != nil {
		s.logger.Warn("writing metrics", zap.Error(err))
		return
	}
	s.logger.Debug("metrics written", zap.String("filename", s.config.MetricsFile))
}

func redacted(config *Config) Config {
	out := *config
	if out.AI != nil && out.AI.Gemini != nil && out.AI.Gemini.APIKey != "" {
		aiCfg := *out.AI
		gem := *aiCfg.Gemini
		gem.APIKey = "***"
		aiCfg.Gemini = &gem
		out.AI = &aiCfg
	}
	return out
}

func loadSnapshot(ctx context.Context, cfg *SourceConfig) (*snapshot.Snapshot, error) {
	if cfg == nil {
		cfg = &SourceConfig{File: "snapshot.json"}
	}

	if cfg.SQLite != "" {
		src, err := snapshot.OpenSQLite(cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %q: %w", cfg.SQLite, err)
		}
		defer src.Close()

		if err := src.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return src.Load(ctx)
	}

	if cfg.File == "" {
		return nil, errors.New("no snapshot source configured (set source.file or source.sqlite)")
	}
	return snapshot.NewFileSource(cfg.File).Load(ctx)
}

// chooseProfile returns id or asks the user to pick a profile.
func chooseProfile(id string, profiles []estate.RequirementProfile) (string, error) {
	if id != "" {
		return id, nil
	}
	if len(profiles) == 0 {
		return "", errors.New("snapshot has no requirement profiles")
	}

	items := make([]string, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, fmt.Sprintf("%s %s / %s", p.ID, orDash(p.Name), p.ListingType))
	}

	return selectID("Choose a requirement profile and press ENTER", items)
}

// chooseListing returns id or asks the user to pick a listing.
func chooseListing(id string, listings []estate.Listing) (string, error) {
	if id != "" {
		return id, nil
	}
	if len(listings) == 0 {
		return "", errors.New("snapshot has no listings")
	}

	items := make([]string, 0, len(listings))
	for _, l := range listings {
		items = append(items, fmt.Sprintf("%s %s / %s / %.0f", l.ID, orDash(l.Title), orDash(l.Location()), l.Price))
	}

	return selectID("Choose a listing and press ENTER", items)
}

func selectID(label string, items []string) (string, error) {
	prompt := promptui.Select{
		Label: label,
		Items: items,
		Size:  10,
	}

	_, selected, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return strings.Split(selected, " ")[0], nil
}

// newAugmenter wires the configured provider. It never fails the command: callers
// turn the error into an unavailable augmentation.
func newAugmenter(ctx context.Context, cfg *AIConfig, zlog *zap.Logger) (ai.Augmenter, error) {
	if cfg == nil {
		return nil, errors.New("ai section is not configured")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	gem := cfg.Gemini
	if gem == nil {
		gem = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  gem.APIKeyFile,
		Value: gem.APIKey,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or PROPERTY_MATCHER_GEMINI_API_KEY_FILE)", err)
	}

	genLogger := zlog.With(zap.Int("ai_retry_attempts", gem.MaxRetries))

	generator, err := gemini.NewGenerator(ctx, apiKey, gem.Model, gem.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	augmenter, err := gemini.NewAugmenter(generator, gem.MaxLogLength, zlog)
	if err != nil {
		return nil, err
	}
	return augmenter, nil
}

func validateOutput(format string) error {
	switch format {
	case outputText, outputJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (use %s or %s)", format, outputText, outputJSON)
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
