package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/facegate/internal/app"
	"github.com/ayusman/facegate/internal/gateway"
	"github.com/spf13/cobra"
)

func newLoginCmd(g *globals) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Run one gated login attempt from the camera",
		Long: `Opens the camera, waits up to --wait for a single clear face and submits
one still for login. The attempt is refused without a capture when the face
is not ready when the wait ends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			ctx := cmd.Context()
			waitReady(ctx, k, wait)

			res, err := k.Login(ctx)
			if err != nil {
				return userError("login", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Welcome, %s (%s)\n", res.Name, res.UserID)
			if res.LoginCount > 0 {
				fmt.Fprintf(out, "  Logins:     %d\n", res.LoginCount)
			}
			if res.LastLogin != "" {
				fmt.Fprintf(out, "  Last login: %s\n", res.LastLogin)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for a ready face")
	return cmd
}

// waitReady polls the verdict until it is ready, the timeout elapses or
// ctx is done. The caller's gated operation reports a verdict that is
// still not ready.
func waitReady(ctx context.Context, k *app.App, timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for !k.Verdict().Ready {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}

// userError keeps the user-facing part of a gateway failure.
func userError(op string, err error) error {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return fmt.Errorf("%s failed: %s", op, gateway.UserMessage(err))
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
