package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/agenthands/slp/cmd/slp/cli"
	"github.com/agenthands/slp/pkg/catalog"
	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/store"
	"github.com/agenthands/slp/pkg/transport"
)

const (
	ConfigFileName = ".slp"
	EnvPrefix      = "SLP"
)

type GlobalConfig struct {
	Debug          bool
	ConfigFilePath string
	Filer          string
	Llama          string
	CatalogDir     string
}

var Global = &GlobalConfig{}

func init() {
	RootCmd.PersistentFlags().StringVarP(
		&Global.ConfigFilePath,
		"config",
		"c",
		"",
		"The config file to use (default .slp.yml in the working or home directory).")

	RootCmd.PersistentFlags().BoolVarP(
		&Global.Debug,
		"debug",
		"d",
		false,
		"Enable verbose debug output.")

	RootCmd.PersistentFlags().StringVar(
		&Global.Filer,
		"filer",
		"",
		"Base URL of the filer, overrides store.base_url.")

	RootCmd.PersistentFlags().StringVar(
		&Global.Llama,
		"llama",
		"",
		"Base URL of the inference server, overrides inference.url.")

	RootCmd.PersistentFlags().StringVar(
		&Global.CatalogDir,
		"catalog",
		"",
		"Directory of the local upload catalog, overrides catalog.dir.")
}

// Execute runs the root command and exits the process.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := RootCmd.ExecuteContext(ctx)
	stop()
	cli.Exit(err)
}

var RootCmd = &cobra.Command{
	Use:   "slp",
	Short: "Content-addressed storage and inference tooling for LLM artifacts",
	Long: `slp uploads models, prompts and results to a path-addressed filer under their
SHA-256 digest, verifies every download, and benchmarks storage and inference latency.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// loadConfig merges defaults, the config file, SLP_* environment variables and
// the global flags, in increasing order of precedence.
func loadConfig() (core.Config, error) {
	cfg := core.DefaultConfig()
	v := viper.New()

	v.SetDefault("store.base_url", cfg.Store.BaseURL)
	v.SetDefault("transport.get_timeout", cfg.Transport.GetTimeout)
	v.SetDefault("transport.put_timeout", cfg.Transport.PutTimeout)
	v.SetDefault("inference.url", cfg.Inference.URL)
	v.SetDefault("inference.timeout", cfg.Inference.Timeout)
	v.SetDefault("inference.retry_max", cfg.Inference.RetryMax)
	v.SetDefault("catalog.dir", cfg.Catalog.Dir)
	v.SetDefault("batch.concurrency", cfg.Batch.Concurrency)
	v.SetDefault("batch.rate_limit", cfg.Batch.RateLimit)
	v.SetDefault("batch.max_tokens", cfg.Batch.MaxTokens)
	v.SetDefault("batch.compress", cfg.Batch.Compress)
	v.SetDefault("batch.zstd_level", cfg.Batch.ZstdLevel)

	if Global.ConfigFilePath != "" {
		v.SetConfigFile(Global.ConfigFilePath)
	} else {
		v.SetConfigName(ConfigFileName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("error loading config file (%s): %w", v.ConfigFileUsed(), err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("error decoding config: %w", err)
	}

	if Global.Filer != "" {
		cfg.Store.BaseURL = Global.Filer
	}
	if Global.Llama != "" {
		cfg.Inference.URL = Global.Llama
	}
	if Global.CatalogDir != "" {
		cfg.Catalog.Dir = Global.CatalogDir
	}
	return cfg, nil
}

func newLogger() (*zap.Logger, error) {
	if Global.Debug {
		return zap.NewDevelopment()
	}
	lc := zap.NewProductionConfig()
	lc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return lc.Build()
}

// env holds what a command needs to talk to the filer.
type env struct {
	cfg core.Config
	lg  *zap.Logger
	tr  *transport.HTTPClient
	st  store.Store
	cat catalog.Catalog
}

func openEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	lg, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("error creating logger: %w", err)
	}

	tr := transport.NewFromConfig(cfg.Transport, lg)
	e := &env{
		cfg: cfg,
		lg:  lg,
		tr:  tr,
		st:  store.New(cfg.Store.BaseURL, tr, store.WithLogger(lg)),
	}
	if cfg.Catalog.Dir != "" {
		if e.cat, err = catalog.Open(cfg.Catalog.Dir); err != nil {
			tr.Close()
			return nil, fmt.Errorf("error opening catalog %q: %w", cfg.Catalog.Dir, err)
		}
	}
	lg.Debug("configuration loaded",
		zap.String("filer", cfg.Store.BaseURL),
		zap.String("llama", cfg.Inference.URL),
		zap.String("catalog", cfg.Catalog.Dir))
	return e, nil
}

func (e *env) Close() {
	if e.cat != nil {
		if err := e.cat.Close(); err != nil {
			e.lg.Warn("closing catalog", zap.Error(err))
		}
	}
	e.tr.Close()
	_ = e.lg.Sync()
}
