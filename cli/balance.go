package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/edufeq03/app-ponto-sub000/ledger"
	"github.com/edufeq03/app-ponto-sub000/tracker"
)

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringP("user", "u", "", "User id")
	balanceCmd.MarkFlagRequired("user")
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print a user's time bank",
	RunE:  runBalance,
}

func runBalance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	userID, _ := cmd.Flags().GetString("user")

	gw, closeGateway, err := openGateway(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeGateway()

	monitor := tracker.NewMonitor(gw, ledger.Engine{Location: loc})
	defer monitor.Close()
	snap, err := monitor.Recompute(cmd.Context(), ledger.UserID(userID))
	if err != nil {
		return err
	}

	report := snap.Report
	b := report.Balance
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:        %s\n", userID)
	fmt.Fprintf(out, "Since:       %s (%s)\n", report.Settings.SettlementDate.Format(time.DateOnly), report.Settings.SettlementPolicy)
	fmt.Fprintf(out, "Balance:     %d min (%s h)\n", b.TotalMinutes, tracker.MinutesToHours(b.TotalMinutes))
	fmt.Fprintf(out, "Workdays:    %d counted, %d skipped\n", b.CountedWorkdays, b.SkippedWorkdays)
	fmt.Fprintf(out, "Withdrawals: %d min\n", b.WithdrawalMinutes)

	if incomplete := report.Incomplete(); len(incomplete) > 0 {
		fmt.Fprintln(out, "\nIncomplete workdays:")
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, s := range incomplete {
			var iw *ledger.IncompleteWorkdayError
			if errors.As(s.Err(), &iw) {
				fmt.Fprintf(tw, "  %s\t%d punches\n", iw.Key, iw.Punches)
			}
		}
		tw.Flush()
	}
	return nil
}
