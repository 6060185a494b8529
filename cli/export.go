package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/edufeq03/app-ponto-sub000/ledger"
	"github.com/edufeq03/app-ponto-sub000/tracker"
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("user", "u", "", "User id")
	exportCmd.Flags().String("from", "", "First workday, YYYY-MM-DD")
	exportCmd.Flags().String("to", "", "Last workday, YYYY-MM-DD")
	exportCmd.Flags().StringP("format", "f", "text", "Output format: text or json")
	exportCmd.MarkFlagRequired("user")
	exportCmd.MarkFlagRequired("from")
	exportCmd.MarkFlagRequired("to")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export daily summaries and the total for a date range",
	RunE:  runExport,
}

// exportRow is one workday in the JSON output.
type exportRow struct {
	Key           string `json:"key"`
	WorkedMinutes int    `json:"worked_minutes"`
	BreakMinutes  int    `json:"break_minutes"`
	BreakStatus   string `json:"break_status"`
	IsComplete    bool   `json:"is_complete"`
	DailyBalance  *int   `json:"daily_balance"`
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	userID, _ := cmd.Flags().GetString("user")
	format, _ := cmd.Flags().GetString("format")
	rawFrom, _ := cmd.Flags().GetString("from")
	rawTo, _ := cmd.Flags().GetString("to")
	from, err := time.ParseInLocation(time.DateOnly, rawFrom, loc)
	if err != nil {
		return fmt.Errorf("%w: from %q", ledger.ErrInvalidRange, rawFrom)
	}
	to, err := time.ParseInLocation(time.DateOnly, rawTo, loc)
	if err != nil {
		return fmt.Errorf("%w: to %q", ledger.ErrInvalidRange, rawTo)
	}

	gw, closeGateway, err := openGateway(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeGateway()

	x := &tracker.Exporter{Source: gw, Engine: ledger.Engine{Location: loc}}
	result, err := x.Export(cmd.Context(), ledger.UserID(userID), from, to)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		rows := make([]exportRow, len(result.DailySummaries))
		for i, s := range result.DailySummaries {
			rows[i] = exportRow{
				Key:           string(s.Key),
				WorkedMinutes: s.WorkedMinutes,
				BreakMinutes:  s.BreakMinutes,
				BreakStatus:   string(s.BreakStatus),
				IsComplete:    s.IsComplete,
				DailyBalance:  s.DailyBalance,
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"user_id":         userID,
			"from":            result.From,
			"to":              result.To,
			"daily_summaries": rows,
			"total_minutes":   result.TotalMinutes,
			"total_hours":     result.TotalHours(),
		})
	case "text":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WORKDAY\tWORKED\tBREAK\tSTATUS\tBALANCE")
		for _, s := range result.DailySummaries {
			balance := "-"
			if s.DailyBalance != nil {
				balance = fmt.Sprintf("%+d", *s.DailyBalance)
			}
			status := string(s.BreakStatus)
			if !s.IsComplete {
				status = "incomplete"
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", s.Key, s.WorkedMinutes, s.BreakMinutes, status, balance)
		}
		tw.Flush()
		for _, w := range result.Withdrawals {
			fmt.Fprintf(out, "Withdrawal %s: %d min\n", w.Date.Format(time.DateOnly), w.Minutes)
		}
		fmt.Fprintf(out, "Total: %d min (%s h)\n", result.TotalMinutes, result.TotalHours())
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
