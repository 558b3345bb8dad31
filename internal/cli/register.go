package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ayusman/facegate/internal/gateway"
	"github.com/ayusman/facegate/internal/session"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newRegisterCmd(g *globals) *cobra.Command {
	var (
		p    gateway.Profile
		wait time.Duration
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Capture and submit a registration from the camera",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := p.Validate(); err != nil {
				return err
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

			ctx := cmd.Context()
			waitReady(ctx, k, wait)

			reg := k.Registration()
			if err := reg.Start(ctx, p); err != nil {
				return userError("registration", err)
			}

			snap := reg.Snapshot()
			bar := progressbar.NewOptions(snap.Required,
				progressbar.OptionSetDescription("Capturing"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)

			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			var seen uint64

		capture:
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}

				snap = reg.Snapshot()
				if snap.Version == seen {
					continue
				}
				seen = snap.Version

				switch snap.State {
				case session.StateReview:
					bar.Set(len(snap.Samples))
					bar.Finish()
					break capture
				case session.StateSetup:
					bar.Exit()
					return errors.New(snap.Message)
				}
				if snap.Countdown > 0 {
					bar.Describe(fmt.Sprintf("Photo %d/%d in %d", len(snap.Samples)+1, snap.Required, snap.Countdown))
				}
				bar.Set(len(snap.Samples))
			}
			fmt.Fprintln(cmd.ErrOrStderr())

			res, err := reg.Submit(ctx)
			if err != nil {
				return userError("registration", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Registered %s (%s)\n", res.Name, res.UserID)
			fmt.Fprintf(out, "  Photos:  %d of %d valid\n", res.ValidPhotos, res.TrainingPhotos)
			fmt.Fprintf(out, "  Quality: %.2f\n", res.TrainingQuality)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&p.Name, "name", "", "full name (required)")
	f.StringVar(&p.Email, "email", "", "email address (required)")
	f.StringVar(&p.Phone, "phone", "", "phone number")
	f.StringVar(&p.DateOfBirth, "dob", "", "date of birth")
	f.StringVar(&p.Gender, "gender", "", "gender")
	f.StringVar(&p.Address, "address", "", "address")
	f.StringVar(&p.Department, "department", "", "department")
	f.StringVar(&p.Position, "position", "", "position")
	f.StringVar(&p.EmergencyContact, "emergency-contact", "", "emergency contact name")
	f.StringVar(&p.EmergencyPhone, "emergency-phone", "", "emergency contact phone")
	f.DurationVar(&wait, "wait", 10*time.Second, "how long to wait for a ready face")
	return cmd
}
