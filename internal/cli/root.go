// Package cli implements the facegate command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ayusman/facegate/internal/app"
	"github.com/ayusman/facegate/internal/config"
	"github.com/ayusman/facegate/internal/detector/dnn"
	"github.com/ayusman/facegate/internal/gateway"
	"github.com/ayusman/facegate/internal/hook"
	"github.com/ayusman/facegate/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// globals holds state shared by every subcommand.
type globals struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

// NewRootCommand builds the facegate command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "facegate",
		Short: "Face-presence gated login and registration kiosk",
		Long: `FaceGate watches a camera, decides whether exactly one clearly visible
face is in view and only then captures stills for login or registration
against a remote authentication service.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env file is optional, don't fail if not found
			_ = godotenv.Load()

			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			g.cfg = cfg
			g.logger = newLogger(cfg.Logging, cmd.ErrOrStderr())
			slog.SetDefault(g.logger)
			return nil
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default: $FACEGATE_CONFIG)")

	root.AddCommand(
		newKioskCmd(g),
		newLoginCmd(g),
		newRegisterCmd(g),
		newAuthSvcCmd(g),
		newAttemptsCmd(g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command with a context cancelled on SIGINT or
// SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStore opens a SQLite database, creating its directory.
func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return store.New(path)
}

// newKiosk wires the camera pipeline from the loaded configuration. The
// returned release func waits for running hooks and must be called after
// the App is stopped.
func (g *globals) newKiosk(st *store.Store) (*app.App, func(), error) {
	gw, err := gateway.New(gateway.Config{
		BaseURL: g.cfg.Server.URL,
		Timeout: g.cfg.Server.Timeout,
		Logger:  g.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	release := func() {}
	var hooks app.Notifier
	if dir := g.cfg.Hooks.Dir; dir != "" {
		m := hook.NewManager(dir, g.logger)
		if err := m.Discover(); err != nil {
			return nil, nil, err
		}
		dispatcher := hook.NewDispatcher(m, hook.NewExecutor(g.cfg.Hooks.Timeout), g.logger)
		hooks = dispatcher
		release = func() {
			dispatcher.Wait()
			dispatcher.Close()
		}
	}

	d := g.cfg.Detector
	k, err := app.New(app.Config{
		CameraID: g.cfg.Camera.Device,
		Width:    g.cfg.Camera.Width,
		Height:   g.cfg.Camera.Height,
		DNN: dnn.Config{
			ModelPath:     d.ModelPath,
			ConfigPath:    d.ConfigPath,
			ModelURL:      d.ModelURL,
			ConfigURL:     d.ConfigURL,
			CacheDir:      d.CacheDir,
			MinConfidence: d.MinConfidence,
			FetchTimeout:  d.FetchTimeout,
		},
		Gateway:       gw,
		Store:         st,
		Hooks:         hooks,
		DisplayWidth:  g.cfg.Display.Width,
		DisplayHeight: g.cfg.Display.Height,
		Interval:      d.Interval,
		Logger:        g.logger,
	})
	if err != nil {
		release()
		return nil, nil, err
	}
	return k, release, nil
}
