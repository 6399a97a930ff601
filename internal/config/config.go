// Package config loads settings from a yaml file, environment
// variables and command-line flags, later sources overriding earlier
// ones.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	flag "github.com/spf13/pflag"
)

const envPrefix = "RECALL_"

type Config struct {
	DBPath    string   `koanf:"db_path" validate:"required"`
	Sources   []string `koanf:"sources"`
	ReposDir  string   `koanf:"repos_dir" validate:"required"`
	RenderDir string   `koanf:"render_dir" validate:"required"`

	DesiredRetention float64 `koanf:"desired_retention" validate:"gt=0,lt=1"`
	MaximumInterval  int     `koanf:"maximum_interval" validate:"gte=1"`
	EnableFuzz       bool    `koanf:"enable_fuzz"`
	LeechThreshold   int     `koanf:"leech_threshold" validate:"gte=1"`
	// EasyDays are weekdays to steer reviews away from. Parsed and
	// validated; the scheduler hook is not wired up yet.
	EasyDays []string `koanf:"easy_days" validate:"dive,oneof=monday tuesday wednesday thursday friday saturday sunday"`

	ListenAddr string `koanf:"listen_addr" validate:"required"`
}

// Default is the baseline configuration before any source is applied.
func Default() Config {
	return Config{
		DBPath:           "recall.db",
		ReposDir:         "repos",
		RenderDir:        "rendered",
		DesiredRetention: 0.9,
		MaximumInterval:  36500,
		EnableFuzz:       true,
		LeechThreshold:   4,
		ListenAddr:       ":8080",
	}
}

// Flags builds the flag set shared by every subcommand. Flag names
// match config keys so posflag can merge them directly.
func Flags() *flag.FlagSet {
	fs := flag.NewFlagSet("recall", flag.ContinueOnError)
	def := Default()
	fs.String("config", "", "path to a yaml config file")
	fs.String("db_path", def.DBPath, "path to the sqlite database")
	fs.StringSlice("sources", nil, "note sources: local directories or git URLs")
	fs.String("repos_dir", def.ReposDir, "checkout directory for git sources")
	fs.String("render_dir", def.RenderDir, "output directory for rendered files")
	fs.Float64("desired_retention", def.DesiredRetention, "target recall probability at review time")
	fs.Int("maximum_interval", def.MaximumInterval, "interval cap in days")
	fs.Bool("enable_fuzz", def.EnableFuzz, "randomize review intervals slightly")
	fs.Int("leech_threshold", def.LeechThreshold, "lapses before a card counts as a leech")
	fs.StringSlice("easy_days", nil, "weekdays to keep light, e.g. saturday,sunday")
	fs.String("listen_addr", def.ListenAddr, "address the review server listens on")
	fs.Int("count", 0, "number of cards for advance and postpone")
	return fs
}

// Load merges defaults, the optional config file, RECALL_* environment
// variables and parsed flags, then validates the result.
func Load(flags *flag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path, _ := flags.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	} else if _, err := os.Stat("recall.yaml"); err == nil {
		if err := k.Load(file.Provider("recall.yaml"), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load recall.yaml: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("load flags: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
