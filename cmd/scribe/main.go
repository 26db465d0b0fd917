package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/CZERTAINLY/Scribe/internal/log"
	"github.com/CZERTAINLY/Scribe/internal/model"
)

var (
	userConfigPath string // /default/config/path/scribe on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config
	logCloser      io.Closer

	flagConfigFilePath string // value of --config flag

	// flags and SCRIBE_* environment variables
	settings = viper.New()
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "scribe")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is scribe.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	serveCmd.Flags().String("listen", "", "address to listen on, overrides service.listen")
	renderCmd.Flags().Int("line", -1, "source line used to select the preview slide")
	renderCmd.Flags().String("encoding", "UTF-8", "encoding of the source document")

	settings.SetEnvPrefix("SCRIBE")
	settings.AutomaticEnv()
	if err := settings.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		panic(err)
	}
	if err := settings.BindPFlag("listen", serveCmd.Flags().Lookup("listen")); err != nil {
		panic(err)
	}

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initScribe
	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		var exitErr exitCodeError
		if !errors.As(err, &exitErr) {
			slog.Error("scribe failed", "err", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "scribe",
	Short:        "Renders R Markdown documents and serves the previews",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve starts the render control API and the preview server",
	RunE:  doServe,
}

var renderCmd = &cobra.Command{
	Use:   "render FILE",
	Short: "render renders a single document and prints the render events as JSON lines",
	Args:  cobra.ExactArgs(1),
	RunE:  doRender,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a scribe",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("scribe: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("scribe: %s\n", info.Main.Version)
		fmt.Printf("go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func initScribe(cmd *cobra.Command, _ []string) error {
	var err error
	configPath, config, err = loadConfig()
	if err != nil {
		return err
	}

	// flags and environment have a precedence over config file
	if settings.GetBool("verbose") {
		config.Service.Verbose = true
	}
	if listen := settings.GetString("listen"); listen != "" {
		config.Service.Listen = listen
	}

	logger, closer, err := log.New(config.Service.Verbose, config.Service.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logCloser = closer

	slog.Debug("scribe run", "configPath", configPath)
	slog.Debug("scribe run", "config", config)
	return nil
}

// loadConfig reads the configuration from SCRIBECONFIG, --config or
// scribe.yaml. When none exists, the default configuration is stored in the
// user config directory.
func loadConfig() (string, model.Config, error) {
	var path string
	if envConfig, ok := os.LookupEnv("SCRIBECONFIG"); ok {
		path = envConfig
	} else if flagConfigFilePath != "" {
		path = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			p := filepath.Join(d, "scribe.yaml")
			if exists(p) {
				path = p
				break
			}
		}
	}

	if path == "" {
		cfg := model.DefaultConfig()
		path = filepath.Join(userConfigPath, "scribe.yaml")
		if err := storeConfig(path, cfg); err != nil {
			return "", model.Config{}, err
		}
		return path, cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", model.Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.ConfigErrDetails(err) {
			slog.Error(d.String(), "path", d.Path, "code", d.Code)
		}
		return "", model.Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return path, cfg, nil
}

func storeConfig(path string, cfg model.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	if err := yaml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
