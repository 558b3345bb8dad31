package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ayusman/facegate/internal/authsvc"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newAuthSvcCmd(g *globals) *cobra.Command {
	var listen, dbPath string

	cmd := &cobra.Command{
		Use:   "authsvc",
		Short: "Run the reference authentication service",
		Long: `Runs a local authentication service implementing /login, /register,
/logout and /admin/data. Faces are matched with a perceptual hash, which is
good enough for development and testing but is not a biometric matcher.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = g.cfg.AuthSvc.Listen
			}
			if dbPath == "" {
				dbPath = g.cfg.AuthSvc.DBPath
			}

			st, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := authsvc.New(authsvc.Config{
				Store:         st,
				MatchDistance: g.cfg.AuthSvc.MatchDistance,
				Logger:        g.logger,
			})
			if err != nil {
				return err
			}

			g.logger.Info("authentication service listening", "addr", listen, "db", dbPath)
			return serve(cmd.Context(), &http.Server{Addr: listen, Handler: svc})
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default: authsvc.listen)")
	cmd.Flags().StringVar(&dbPath, "db", "", "user database (default: authsvc.db_path)")
	return cmd
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
