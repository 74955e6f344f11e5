package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modeld/internal/common/fsutil"
	"modeld/internal/config"
	"modeld/internal/detect"
	"modeld/internal/httpapi"
	"modeld/internal/inspector"
	"modeld/internal/llamaproc"
	"modeld/internal/registry"
	"modeld/internal/releasefetch"
	"modeld/pkg/types"
)

var cfgPath string

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "modeld",
		Short:         "Local llama-server lifecycle manager and capability detector",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML/JSON/TOML config file")
	root.AddCommand(buildServeCmd(), buildDetectCmd(), buildProbeCmd(), buildInstallCmd())
	return root
}

func loadConfig() (config.Config, error) {
	if cfgPath == "" {
		return config.Config{Addr: ":8080", InstallRoot: "~/llama.cpp", LogLevel: "info"}, nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return cfg, err
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.InstallRoot == "" {
		cfg.InstallRoot = "~/llama.cpp"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

func buildInstallation(cfg config.Config) (*llamaproc.Installation, error) {
	root, err := fsutil.ExpandHome(cfg.InstallRoot)
	if err != nil {
		return nil, err
	}
	install, err := llamaproc.DetectInstallation(root)
	if err != nil {
		return nil, fmt.Errorf("scan install root %s: %w", root, err)
	}
	if install == nil {
		return nil, fmt.Errorf("no llama-server/llama-cli pair found under %s", root)
	}
	return install, nil
}

// resolveModelPath leaves an absolute path untouched and otherwise joins a
// relative one against cfg.ModelsDir (if configured), the way buildInstallation
// resolves cfg.InstallRoot.
func resolveModelPath(cfg config.Config, path string) (string, error) {
	if filepath.IsAbs(path) || cfg.ModelsDir == "" {
		return path, nil
	}
	modelsDir, err := fsutil.ExpandHome(cfg.ModelsDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(modelsDir, path), nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

// splitCSV splits a comma-separated flag value into trimmed, non-empty tokens.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func buildServeCmd() *cobra.Command {
	var addr string
	var corsOrigins string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if origins := splitCSV(corsOrigins); len(origins) > 0 {
				cfg.CORSOrigins = origins
			}
			install, err := buildInstallation(cfg)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)
			httpapi.SetLogger(logger)
			if len(cfg.CORSOrigins) > 0 {
				httpapi.SetCORSOptions(true, cfg.CORSOrigins, []string{"GET", "POST", "OPTIONS"}, []string{"Content-Type"})
			}

			reg := registry.New()
			svc := newService(install, reg, cfg)

			ctx, cancel := context.WithCancel(context.Background())
			httpapi.SetBaseContext(ctx)
			defer cancel()

			mux := httpapi.NewMux(svc)
			srv := &http.Server{Addr: cfg.Addr, Handler: mux}

			go func() {
				logger.Info().Str("addr", cfg.Addr).Str("installRoot", install.RootPath()).Msg("modeld listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server error")
				}
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			cancel()
			svc.sw.Stop()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("graceful shutdown error")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, overrides config (e.g. :8080)")
	cmd.Flags().StringVar(&corsOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins, overrides config")
	return cmd
}

func buildDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <model.gguf>",
		Short: "Run configuration-space detection against a model file and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			install, err := buildInstallation(cfg)
			if err != nil {
				return err
			}
			modelPath, err := resolveModelPath(cfg, args[0])
			if err != nil {
				return err
			}
			fileInfo, err := inspector.Inspect(inspector.NewParser(), modelPath)
			if err != nil {
				return err
			}
			result, err := detect.Run(context.Background(), install, modelPath, fileInfo, cfg.ContextLadder)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if cfg.DataDir != "" {
				return persistDetectionResult(cfg.DataDir, modelPath, result)
			}
			return nil
		},
	}
	return cmd
}

// persistDetectionResult writes result as the §6.4 JSON format to
// dataDir/<model-basename>.json, the on-disk persistence SPEC_FULL.md
// assigns to the CLI caller rather than the core detection engine.
func persistDetectionResult(dataDir, modelPath string, result types.DetectionResult) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("persist detection result: mkdir %s: %w", dataDir, err)
	}
	name := strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath)) + ".json"
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("persist detection result: marshal: %w", err)
	}
	return os.WriteFile(filepath.Join(dataDir, name), b, 0o644)
}

func buildInstallCmd() *cobra.Command {
	var urlTemplate string
	cmd := &cobra.Command{
		Use:   "install <version>",
		Short: "Download and extract a llama.cpp release into the configured install root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			root, err := fsutil.ExpandHome(cfg.InstallRoot)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)
			fetcher := releasefetch.New(urlTemplate, root, func(format string, a ...any) {
				logger.Info().Msgf(format, a...)
			})
			installedPath, err := fetcher.Fetch(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(installedPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&urlTemplate, "url-template", "https://github.com/ggml-org/llama.cpp/releases/download/{version}/llama-{version}-bin-linux-x64.zip", "release archive URL, with {version} substituted")
	return cmd
}

func buildProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Print the detected llama-server installation's capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			install, err := buildInstallation(cfg)
			if err != nil {
				return err
			}
			version, err := install.Version(context.Background())
			if err != nil {
				return err
			}
			hasCUDA, err := install.HasCUDA()
			if err != nil {
				return err
			}
			flashEnum, err := install.FlashAttentionIsEnum()
			if err != nil {
				return err
			}
			fmt.Printf("root: %s\nversion: %d\ncuda: %v\nflashAttentionEnum: %v\n", install.RootPath(), version, hasCUDA, flashEnum)
			return nil
		},
	}
	return cmd
}
