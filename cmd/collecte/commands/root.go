// Package commands implements the CLI commands for collecte.
package commands

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"info-collecte/internal/cache"
	"info-collecte/internal/config"
	"info-collecte/internal/logger"
	"info-collecte/internal/scraper"
)

var rootCmd = &cobra.Command{
	Use:   "collecte",
	Short: "Ville de Québec waste and recycling collection schedule",
	Long: `Collecte reads the Info-Collecte calendar of an address on the
Ville de Québec website and publishes the next collection dates as
Home Assistant MQTT sensors and, optionally, an iCalendar file.

Every flag can also be set in $HOME/.collecte.yaml or ./.collecte.yaml,
or through COLLECTE_ environment variables (COLLECTE_MQTT_HOST, ...).

Examples:
  # One run, publishing to the Mosquitto add-on
  collecte run --address "1000 rue Principale" --mqtt-host core-mosquitto

  # Save the rendered page, then inspect what the parser sees
  collecte fetch --address "1000 rue Principale" > page.html
  collecte parse --file page.html --format yaml`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.collecte.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "only log errors")
	flags.Bool("json-logs", false, "log as JSON")
	flags.String("rules", "", "YAML file of category rules (keyword, name, label)")

	// Fetch settings shared by run and fetch
	flags.StringP("address", "a", "", "street address to look up")
	flags.String("site-url", scraper.DefaultSiteURL, "Info-Collecte search page")
	flags.String("fetch-mode", string(scraper.ModeChrome), "fetch mode: chrome, static")
	flags.Duration("timeout", 25*time.Second, "page fetch timeout")
	flags.String("chrome-path", "", "Chrome/Chromium executable (or CHROME_PATH)")
	flags.String("cache-dir", "", "directory caching rendered pages")
	flags.Duration("cache-ttl", 0, "reuse cached pages younger than this (0 disables)")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("json_logs", flags.Lookup("json-logs"))
	_ = viper.BindPFlag("rules", flags.Lookup("rules"))
	_ = viper.BindPFlag("address", flags.Lookup("address"))
	_ = viper.BindPFlag("site_url", flags.Lookup("site-url"))
	_ = viper.BindPFlag("fetch_mode", flags.Lookup("fetch-mode"))
	_ = viper.BindPFlag("fetch_timeout", flags.Lookup("timeout"))
	_ = viper.BindPFlag("chrome_path", flags.Lookup("chrome-path"))
	_ = viper.BindPFlag("cache_dir", flags.Lookup("cache-dir"))
	_ = viper.BindPFlag("cache_ttl", flags.Lookup("cache-ttl"))
}

func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".collecte")
		v.SetConfigType("yaml")
	}

	// Read config file (ignore error if not found)
	_ = v.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() *zap.SugaredLogger {
	return logger.New(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
		JSON:  viper.GetBool("json_logs"),
	})
}

// loadConfig returns the validated configuration, with category rules
// replaced by the --rules file when one is given.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, err
	}
	if path := viper.GetString("rules"); path != "" {
		rules, err := readRules(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Categories = rules
	}
	return cfg, nil
}

// loadRules returns the category rules without requiring a full
// configuration.
func loadRules() ([]scraper.Rule, error) {
	if path := viper.GetString("rules"); path != "" {
		return readRules(path)
	}
	var rules []scraper.Rule
	if err := viper.UnmarshalKey("categories", &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func readRules(path string) ([]scraper.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return config.ParseRules(data)
}

// newSource builds the configured markup source, wrapped in the page cache
// when enabled.
func newSource(cfg config.Config, log *zap.SugaredLogger) (scraper.Source, error) {
	src, err := scraper.NewSource(scraper.Mode(cfg.FetchMode), scraper.Options{
		SiteURL:    cfg.SiteURL,
		Timeout:    cfg.FetchTimeout,
		ChromePath: cfg.ChromePath,
	}, log)
	if err != nil {
		return nil, err
	}
	if cfg.CacheDir == "" || cfg.CacheTTL <= 0 {
		return src, nil
	}

	c, err := cache.New(cfg.CacheDir, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	return cache.NewSource(src, c, log), nil
}
