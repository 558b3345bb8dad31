package cli

import (
	"context"
	"net/http"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ayusman/facegate/internal/app"
	"github.com/ayusman/facegate/internal/policy"
	"github.com/ayusman/facegate/internal/server"
	"github.com/ayusman/facegate/internal/tray"
	"github.com/spf13/cobra"
)

func newKioskCmd(g *globals) *cobra.Command {
	var (
		listen    string
		staticDir string
		withTray  bool
	)

	cmd := &cobra.Command{
		Use:   "kiosk",
		Short: "Run the camera pipeline and serve the kiosk UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("listen") {
				listen = g.cfg.Kiosk.Listen
			}
			if !cmd.Flags().Changed("static") {
				staticDir = g.cfg.Kiosk.StaticDir
			}
			if !cmd.Flags().Changed("tray") {
				withTray = g.cfg.Kiosk.Tray
			}

			st, err := openStore(g.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			k, release, err := g.newKiosk(st)
			if err != nil {
				return err
			}
			defer release()
			if err := k.Start(); err != nil {
				return err
			}
			defer k.Stop()

			srv := &http.Server{
				Addr: listen,
				Handler: server.New(server.Config{
					StaticDir: staticDir,
					Kiosk:     k,
					Logger:    g.logger,
				}),
			}
			g.logger.Info("kiosk UI listening", "addr", listen, "static", staticDir)

			if !withTray {
				return serve(cmd.Context(), srv)
			}
			return runWithTray(cmd.Context(), k, srv, kioskURL(listen))
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default: kiosk.listen)")
	cmd.Flags().StringVar(&staticDir, "static", "", "directory with the kiosk web UI")
	cmd.Flags().BoolVar(&withTray, "tray", false, "show a system tray menu")
	return cmd
}

// runWithTray serves srv while the tray owns the calling goroutine, which
// must be the main one on macOS.
func runWithTray(ctx context.Context, k *app.App, srv *http.Server, url string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(ctx, srv)
		cancel()
	}()

	t := tray.New()
	t.OnToggle(k.SetEnabled)
	t.OnOpen(func() { openBrowser(url) })
	t.OnQuit(cancel)

	go syncTray(k, t)
	go func() {
		<-ctx.Done()
		t.Quit()
	}()

	t.Run()
	cancel()
	return <-errCh
}

// syncTray mirrors detection and toggle events into the tray menu until
// the event stream closes.
func syncTray(k *app.App, t *tray.Tray) {
	events, unsubscribe := k.Events(16)
	defer unsubscribe()

	for e := range events {
		switch data := e.Data.(type) {
		case app.Detection:
			t.SetVerdict(policy.Verdict{Ready: data.Ready, Reason: data.Reason})
		case bool:
			if e.Type == app.EventEnabled {
				t.SetEnabled(data)
			}
		}
	}
}

func kioskURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "http://localhost" + listen
	}
	return "http://" + listen
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}
