package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/triaxial/triaxial/shared"
)

var (
	ingestTimestamp *string
	ingestFile      *string
)

var ingestCmd = &cobra.Command{
	Use:     "ingest [<device_id> <x> <y> <z>]",
	Short:   "Submit a reading, or a JSON array of readings with --file",
	GroupID: GROUP_ID_DATA,
	Args: func(cmd *cobra.Command, args []string) error {
		if *ingestFile != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(4)(cmd, args)
	},
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		if *ingestFile != "" {
			readings, err := loadReadingsFile(*ingestFile)
			checkFatalError(err)
			n, err := c.SubmitReadings(cmd.Context(), readings)
			checkFatalError(err)
			fmt.Printf("Stored %d readings\n", n)
			return
		}
		reading, err := parseReadingArgs(args, *ingestTimestamp)
		checkFatalError(err)
		checkFatalError(c.SubmitReading(cmd.Context(), reading))
		fmt.Println("Stored 1 reading")
	},
}

func parseReadingArgs(args []string, timestamp string) (shared.ReadingInput, error) {
	var axes [3]float64
	for i, name := range []string{"x", "y", "z"} {
		v, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return shared.ReadingInput{}, fmt.Errorf("invalid %s=%#v: %w", name, args[i+1], err)
		}
		axes[i] = v
	}

	var ts *time.Time
	if timestamp != "" {
		t, err := dateparse.ParseIn(timestamp, time.UTC)
		if err != nil {
			return shared.ReadingInput{}, fmt.Errorf("invalid timestamp=%#v: %w", timestamp, err)
		}
		ts = &t
	}

	reading := shared.NewReadingInput(args[0], axes[0], axes[1], axes[2], ts)
	if err := reading.Validate(); err != nil {
		return shared.ReadingInput{}, err
	}
	return reading, nil
}

func loadReadingsFile(path string) ([]shared.ReadingInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var readings []shared.ReadingInput
	if err := json.Unmarshal(data, &readings); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for i, reading := range readings {
		if err := reading.Validate(); err != nil {
			return nil, fmt.Errorf("%s: reading %d: %w", path, i, err)
		}
	}
	return readings, nil
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestTimestamp = ingestCmd.Flags().String("timestamp", "", "When the reading was taken (defaults to the server's current time)")
	ingestFile = ingestCmd.Flags().String("file", "", "Path to a JSON array of readings to submit in one batch")
}
