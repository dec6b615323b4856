package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/araddon/dateparse"
	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/triaxial/triaxial/client"
	"github.com/triaxial/triaxial/internal/stats"
	"github.com/triaxial/triaxial/shared"
)

var (
	statsStart     *string
	statsEnd       *string
	statsWindow    *string
	statsOmitEmpty *bool
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Summarize stored readings",
	GroupID: GROUP_ID_STATS,
}

var statsDeviceCmd = &cobra.Command{
	Use:   "device <device_id>",
	Short: "Min, max, count, sum and median per axis for one device",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tr, err := statsTimeRange()
		checkFatalError(err)
		summary, err := newClient().DeviceStats(cmd.Context(), args[0], tr)
		if client.IsNotFound(err) {
			fmt.Printf("No readings for device %s in the requested range\n", args[0])
			return
		}
		checkFatalError(err)
		printAxesSummary(os.Stdout, summary)
	},
}

var statsUserCmd = &cobra.Command{
	Use:   "user <username>",
	Short: "Statistics across all of a user's devices, and per device",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tr, err := statsTimeRange()
		checkFatalError(err)
		userStats, err := newClient().UserStats(cmd.Context(), args[0], tr, *statsOmitEmpty)
		checkFatalError(err)
		printUserStats(os.Stdout, userStats)
	},
}

func statsTimeRange() (client.TimeRange, error) {
	tr := client.TimeRange{Window: *statsWindow}
	parse := func(name, raw string) (*time.Time, error) {
		if raw == "" {
			return nil, nil
		}
		t, err := dateparse.ParseIn(raw, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid --%s=%#v: %w", name, raw, err)
		}
		return &t, nil
	}
	var err error
	if tr.Start, err = parse("start", *statsStart); err != nil {
		return tr, err
	}
	if tr.End, err = parse("end", *statsEnd); err != nil {
		return tr, err
	}
	return tr, nil
}

func newSummaryTable(w io.Writer, firstColumn string) table.Table {
	headerFmt := color.New(color.FgGreen, color.Underline).SprintfFunc()
	tbl := table.New(firstColumn, "Axis", "Count", "Min", "Max", "Sum", "Median", "Mean")
	tbl.WithHeaderFormatter(headerFmt)
	tbl.WithWriter(w)
	return tbl
}

func addSummaryRows(tbl table.Table, label string, summary stats.AxesSummary) {
	for _, axis := range []struct {
		name string
		s    stats.Summary
	}{{"x", summary.X}, {"y", summary.Y}, {"z", summary.Z}} {
		tbl.AddRow(label, axis.name, axis.s.Count, axis.s.Min, axis.s.Max, axis.s.Sum, axis.s.Median, fmt.Sprintf("%.4g", axis.s.Mean()))
	}
}

func printAxesSummary(w io.Writer, summary stats.AxesSummary) {
	tbl := newSummaryTable(w, "Scope")
	addSummaryRows(tbl, "device", summary)
	tbl.Print()
}

func printUserStats(w io.Writer, userStats shared.UserStats) {
	tbl := newSummaryTable(w, "Device")
	addSummaryRows(tbl, "(all)", userStats.Aggregated)
	for _, device := range userStats.PerDevice {
		addSummaryRows(tbl, device.DeviceId, device.Stats)
	}
	tbl.Print()
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.AddCommand(statsDeviceCmd)
	statsCmd.AddCommand(statsUserCmd)
	statsStart = statsCmd.PersistentFlags().String("start", "", "Only include readings at or after this time")
	statsEnd = statsCmd.PersistentFlags().String("end", "", "Only include readings at or before this time")
	statsWindow = statsCmd.PersistentFlags().String("window", "", "ISO-8601 duration ending now, e.g. PT1H (ignored when --start is set)")
	statsOmitEmpty = statsUserCmd.Flags().Bool("omit-empty", false, "Skip devices without readings instead of failing")
}
