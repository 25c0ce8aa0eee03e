package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bblohar/MyBook-project/internal/cli"
	"github.com/bblohar/MyBook-project/internal/config"
	"github.com/bblohar/MyBook-project/internal/models"
	"github.com/bblohar/MyBook-project/internal/scheduler"
	"github.com/bblohar/MyBook-project/internal/server"
	"github.com/bblohar/MyBook-project/internal/watcher"
	"github.com/bblohar/MyBook-project/pkg/utils"
)

const defaultServerURL = "http://localhost:8000"

func serverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			if debug {
				cfg.Debug = true
			}
			logger, err := utils.NewLogger(cfg.Debug)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			logger.Info("configuration loaded", zap.String("path", path))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			components, err := initializeComponents(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer components.Close()

			if cfg.Sync.WatchIndexOrDefault() {
				w := watcher.NewWatcher(cfg.Storage.IndexPath, func() {
					if err := components.Sync.Reload(context.Background()); err != nil {
						logger.Warn("index reload failed", zap.Error(err))
					}
				}, watcher.WithLogger(logger))
				if err := w.Start(ctx); err != nil {
					logger.Warn("index watcher disabled", zap.Error(err))
				} else {
					defer w.Stop()
				}
			}

			if cfg.Sync.RebuildSchedule != "" {
				sched, err := scheduler.New(cfg.Sync.RebuildSchedule, components.Sync.RebuildAsync, logger)
				if err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
				logger.Info("rebuild schedule active",
					zap.String("schedule", cfg.Sync.RebuildSchedule),
					zap.Time("next", sched.Next()))
			}

			srv := server.NewServer(components.Search, components.Catalog, components.Sync, components.Storage, cfg, logger)

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case sig := <-sigCh:
				logger.Info("shutting down", zap.String("signal", sig.String()))
			case err, ok := <-errCh:
				if ok {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

func rebuildCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the vector index from every book with a description",
		Long: `Rebuild embeds every book that has a description and atomically replaces
the index file. A running server picks up the new file through its watcher.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			logger, err := utils.NewCLILogger(debug || cfg.Debug)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			components, err := initializeComponents(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer components.Close()

			if err := components.Provider.Err(); err != nil {
				return fmt.Errorf("embedding provider unavailable: %w", err)
			}
			res, err := components.Sync.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			return cli.WriteRebuildResult(cmd.OutOrStdout(), res, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", string(cli.OutputText), "output format: text or json")
	return cmd
}

func searchCmd() *cobra.Command {
	var (
		k         int
		serverURL string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search books by meaning",
		Long: `Search sends the query to a running server. With --server="" the index is
searched in-process instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			query := models.SearchQuery{Query: joinQuery(args), K: k}

			var resp *models.SearchResponse
			if serverURL != "" {
				resp, err = searchViaHTTP(cmd.Context(), serverURL, &query)
			} else {
				resp, err = searchDirect(cmd.Context(), &query)
			}
			if err != nil {
				return err
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), resp, format)
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of results (0 uses the configured default)")
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "server URL; empty searches locally")
	cmd.Flags().StringVarP(&output, "output", "o", string(cli.OutputText), "output format: text or json")
	return cmd
}

func statusCmd() *cobra.Command {
	var (
		serverURL string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and catalog status from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			status, err := statusViaHTTP(cmd.Context(), serverURL)
			if err != nil {
				return err
			}
			return cli.WriteStatus(cmd.OutOrStdout(), status, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "server URL")
	cmd.Flags().StringVarP(&output, "output", "o", string(cli.OutputText), "output format: text or json")
	return cmd
}

func joinQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func searchDirect(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	cfg, _, err := loadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := utils.NewCLILogger(debug || cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return components.Search.Search(ctx, query)
}

var httpClient = &http.Client{Timeout: 60 * time.Second}

func searchViaHTTP(ctx context.Context, serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	url := strings.TrimSuffix(serverURL, "/") + "/api/v1/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out models.SearchResponse
	if err := doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func statusViaHTTP(ctx context.Context, serverURL string) (*models.Status, error) {
	if serverURL == "" {
		return nil, errors.New("--server is required for status")
	}
	url := strings.TrimSuffix(serverURL, "/") + "/api/v1/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var out models.Status
	if err := doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func doJSON(req *http.Request, out interface{}) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file to the --config path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeDefaultConfig(cfgFile, force, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func writeDefaultConfig(path string, force bool, out io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", path)
	return nil
}
