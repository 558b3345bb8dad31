package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newAttemptsCmd(g *globals) *cobra.Command {
	var (
		limit  int
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Print the kiosk's attempt audit log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = g.cfg.Store.Path
			}
			st, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			attempts, err := st.Attempts().List(limit)
			if err != nil {
				return err
			}
			if len(attempts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No attempts recorded.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tKIND\tOUTCOME\tREASON\tUSER\tSAMPLES\tMESSAGE")
			for _, a := range attempts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					a.CreatedAt.Local().Format(time.DateTime), a.Kind, a.Outcome,
					dash(a.Reason), dash(a.UserName), a.Samples, a.Message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of attempts to print")
	cmd.Flags().StringVar(&dbPath, "db", "", "audit database (default: store.path)")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
