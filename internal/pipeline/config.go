package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/qgen/internal/annoy"
)

var ErrMissingKey = errors.New("pipeline: missing required config key")

// Required experiment keys. Everything else has a default.
var requiredKeys = []string{
	"src_corpus",
	"tgt_corpus",
	"min_update_rate",
	"bootstrap_corpus-sentence_encoder",
	"bootstrap_corpus-similarity_threshold",
	"translate-n_best",
	"train-train_steps",
}

const DefaultPretrainedConfig = "config/pretrained/encoder.yml"

// Config is one experiment. Tool arguments stay in Args under their flat
// "<tool>-<arg>" keys and are turned into command lines per step.
type Config struct {
	// Name is the config file name without extension; it names the data
	// and model directories.
	Name string
	Path string

	RootDir             string
	SrcCorpus           string
	TgtCorpus           string
	MinUpdateRate       float64
	Encoder             string
	SimilarityThreshold float64
	Workers             int
	MaxIterations       int
	StepTimeout         time.Duration
	PretrainedConfig    string
	Index               annoy.Options

	// Commands maps a step name to the argv prefix of its external tool.
	Commands map[string][]string
	Args     map[string]any
}

// LoadConfig reads an experiment YAML file. All required keys must be
// present, including a command for every step in ExternalSteps; nothing is
// started when one is missing.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("root_dir", ".")
	v.SetDefault("workers", 5)
	v.SetDefault("max_iterations", 0)
	v.SetDefault("step_timeout", "0s")
	v.SetDefault("pretrained_config", DefaultPretrainedConfig)
	v.SetDefault("index_trees", annoy.DefaultTrees)
	v.SetDefault("index_leaf_size", annoy.DefaultLeafSize)
	v.SetDefault("index_search_k", 0)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var missing []string
	for _, key := range requiredKeys {
		if !v.IsSet(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, strings.Join(missing, ", "))
	}

	cfg := &Config{
		Name:                strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:                path,
		RootDir:             v.GetString("root_dir"),
		SrcCorpus:           v.GetString("src_corpus"),
		TgtCorpus:           v.GetString("tgt_corpus"),
		MinUpdateRate:       v.GetFloat64("min_update_rate"),
		Encoder:             v.GetString("bootstrap_corpus-sentence_encoder"),
		SimilarityThreshold: v.GetFloat64("bootstrap_corpus-similarity_threshold"),
		Workers:             v.GetInt("workers"),
		MaxIterations:       v.GetInt("max_iterations"),
		StepTimeout:         v.GetDuration("step_timeout"),
		PretrainedConfig:    v.GetString("pretrained_config"),
		Index: annoy.Options{
			Trees:    v.GetInt("index_trees"),
			LeafSize: v.GetInt("index_leaf_size"),
			SearchK:  v.GetInt("index_search_k"),
		},
		Commands: make(map[string][]string),
		Args:     make(map[string]any),
	}

	for _, key := range v.AllKeys() {
		switch {
		case strings.HasPrefix(key, "commands."):
			cfg.Commands[strings.TrimPrefix(key, "commands.")] = v.GetStringSlice(key)
		case strings.Contains(key, "-"):
			cfg.Args[key] = v.Get(key)
		}
	}

	for _, step := range ExternalSteps {
		if len(cfg.Commands[step]) == 0 {
			missing = append(missing, "commands."+step)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, strings.Join(missing, ", "))
	}

	cfg.SrcCorpus = cfg.resolve(cfg.SrcCorpus)
	cfg.TgtCorpus = cfg.resolve(cfg.TgtCorpus)
	cfg.PretrainedConfig = cfg.resolve(cfg.PretrainedConfig)
	return cfg, nil
}

// resolve makes a config-relative path absolute against RootDir.
func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.RootDir, p)
}

// Layout returns the directory layout for this experiment.
func (c *Config) Layout() Layout {
	return Layout{Root: c.RootDir, Experiment: c.Name}
}
