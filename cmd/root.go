package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spigell/property-matcher/internal/ai"
	"github.com/spigell/property-matcher/internal/matching"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "property-matcher"
)

type Config struct {
	Source        *SourceConfig    `mapstructure:"source"`
	Matching      *matching.Policy `mapstructure:"matching"`
	DismissedFile string           `mapstructure:"dismissed-file"`
	MetricsFile   string           `mapstructure:"metrics-file"`
	// StrictListingType drops listings of the wrong type before scoring.
	StrictListingType bool      `mapstructure:"strict-listing-type"`
	AI                *AIConfig `mapstructure:"ai"`
}

type SourceConfig struct {
	File   string `mapstructure:"file"`
	SQLite string `mapstructure:"sqlite"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	APIKey       string `mapstructure:"api-key"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "property-matcher ranks real-estate listings against buyer and renter requirement profiles",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "PROPERTY_MATCHER_GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding PROPERTY_MATCHER_GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is property-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	policy := matching.DefaultPolicy()

	viper.SetDefault("source.file", "snapshot.json")
	viper.SetDefault("matching.top-n", policy.TopN)
	viper.SetDefault("matching.reverse-threshold", policy.ReverseThreshold)
	viper.SetDefault("matching.tie-break", string(policy.TieBreak))
	viper.SetDefault("matching.workers", policy.Workers)
	viper.SetDefault("matching.feedback-bonus", policy.FeedbackBonus)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.timeout", ai.DefaultTimeout)
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 200)
}

func initConfig() {
	// version does not need a config.
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// Defaults are enough to run against ./snapshot.json.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
