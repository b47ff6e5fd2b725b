// Package cmd wires the darwinxref command line: configuration, logging,
// the database and the command registry.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/darwinbuild/darwinxref/internal/build"
	_ "github.com/darwinbuild/darwinxref/internal/commands/all"
	"github.com/darwinbuild/darwinxref/internal/config"
	"github.com/darwinbuild/darwinxref/internal/infrastructure/sqlite"
	"github.com/darwinbuild/darwinxref/internal/log"
	"github.com/darwinbuild/darwinxref/internal/registry"
	"github.com/darwinbuild/darwinxref/internal/tracing"
)

const progname = "darwinxref"

var version = "dev"

// options holds the state of one root command.
type options struct {
	v         *viper.Viper
	cfgFile   string
	debugFlag bool
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	o := &options{v: viper.New()}
	defaults := config.Defaults()

	cmd := &cobra.Command{
		Use:   progname + " [-f db] [-b build] <command> [args...]",
		Short: "Cross-reference the files and libraries of Darwin projects",
		Long: `darwinxref records, per OS build and per project, which files a project
installs and which dynamic libraries its binaries link against.`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          o.run,
	}

	flags := cmd.Flags()
	flags.SetInterspersed(false)
	flags.StringVarP(&o.cfgFile, "config", "c", "",
		"config file (default: ~/.config/darwinxref/config.yaml)")
	flags.StringP("db", "f", defaults.DB, "path to the darwinxref database")
	flags.StringP("build", "b", "", "build to operate on (default: $"+defaults.BuildEnv+" or the running system)")
	flags.String("plugins", defaults.Plugins, "directory of command plugins")
	flags.BoolVar(&o.debugFlag, "debug", false, "write debug logs to $DARWINXREF_LOG (default darwinxref.log)")

	_ = o.v.BindPFlag("db", flags.Lookup("db"))
	_ = o.v.BindPFlag("build", flags.Lookup("build"))
	_ = o.v.BindPFlag("plugins", flags.Lookup("plugins"))

	return cmd
}

func (o *options) initConfig() (config.Config, error) {
	v := o.v
	defaults := config.Defaults()
	v.SetDefault("db", defaults.DB)
	v.SetDefault("build", defaults.Build)
	v.SetDefault("build_env", defaults.BuildEnv)
	v.SetDefault("plugins", defaults.Plugins)
	v.SetDefault("prebinding.helper", defaults.Prebinding.Helper)
	v.SetDefault("prebinding.args", defaults.Prebinding.Args)
	v.SetDefault("prebinding.probe_target", defaults.Prebinding.ProbeTarget)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	v.SetEnvPrefix("DARWINXREF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config lookup order:
	// 1. --config
	// 2. .darwinxref/config.yaml (current directory)
	// 3. ~/.config/darwinxref/config.yaml (user config)
	if o.cfgFile != "" {
		v.SetConfigFile(o.cfgFile)
	} else if _, err := os.Stat(".darwinxref/config.yaml"); err == nil {
		v.SetConfigFile(".darwinxref/config.yaml")
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".config", "darwinxref"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config.Config{}, fmt.Errorf("reading config: %w", err)
		}
	} else {
		log.Debug(log.CatConfig, "loaded config", "path", v.ConfigFileUsed())
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return config.Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (o *options) initLogging() (func(), error) {
	if os.Getenv("DARWINXREF_DEBUG") == "" && !o.debugFlag {
		return func() {}, nil
	}
	logPath := os.Getenv("DARWINXREF_LOG")
	if logPath == "" {
		logPath = "darwinxref.log"
	}
	cleanup, err := log.Init(logPath)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	log.Info(log.CatConfig, "darwinxref starting", "version", version, "logPath", logPath)
	return cleanup, nil
}

func (o *options) run(cmd *cobra.Command, args []string) error {
	stderr := cmd.ErrOrStderr()

	cleanup, err := o.initLogging()
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, err := o.initConfig()
	if err != nil {
		return err
	}

	reg := registry.New()
	if err := reg.Load(registry.Builtins()...); err != nil {
		return fmt.Errorf("loading commands: %w", err)
	}
	if err := reg.LoadCommands(cfg.Plugins); err != nil {
		log.Warn(log.CatRegistry, "plugin directory unreadable", "dir", cfg.Plugins, "error", err)
	}

	if len(args) == 0 {
		reg.PrintUsage(stderr, progname, "")
		return &ExitError{Code: 1}
	}
	name := args[0]
	if _, ok := reg.Lookup(name); !ok {
		reg.PrintUsage(stderr, progname, "")
		return &ExitError{Code: 1}
	}

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	db, err := sqlite.NewDB(cfg.DB)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.DB, err)
	}
	defer func() { _ = db.Close() }()

	ctx := &registry.Context{
		Ctx:        cmd.Context(),
		Builds:     build.NewResolver(cfg.Build, cfg.BuildEnv),
		Repository: db.InventoryRepository(),
		Config:     cfg,
		Tracer:     provider.Tracer(),
		Stdin:      cmd.InOrStdin(),
		Stdout:     cmd.OutOrStdout(),
		Stderr:     stderr,
	}

	status, err := reg.Dispatch(ctx, name, args[1:])
	if errors.Is(err, registry.ErrNotFound) {
		reg.PrintUsage(stderr, progname, "")
		return &ExitError{Code: 1}
	}
	if err != nil {
		return err
	}
	switch {
	case status == -1:
		reg.PrintUsage(stderr, progname, name)
		return &ExitError{Code: 1}
	case status != 0:
		return &ExitError{Code: status}
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
