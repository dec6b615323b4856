package cmd

import (
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/triaxial/triaxial/client"
)

const (
	GROUP_ID_SERVER = "group_id_server"
	GROUP_ID_DATA   = "group_id_data"
	GROUP_ID_STATS  = "group_id_stats"
)

// Version is overridden at build time with -ldflags "-X github.com/triaxial/triaxial/cmd.Version=..."
var Version = "dev"

var serverURL *string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "triaxial",
	Short: "triaxial: ingestion and statistics for 3-axis sensor readings",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: GROUP_ID_SERVER, Title: "Server"})
	rootCmd.AddGroup(&cobra.Group{ID: GROUP_ID_DATA, Title: "Users, Devices and Readings"})
	rootCmd.AddGroup(&cobra.Group{ID: GROUP_ID_STATS, Title: "Statistics"})
	rootCmd.Version = Version

	defaultServer := os.Getenv("TRIAXIAL_SERVER")
	if defaultServer == "" {
		defaultServer = client.DefaultServerURL
	}
	serverURL = rootCmd.PersistentFlags().String("server", defaultServer, "Base URL of the triaxial API (env: TRIAXIAL_SERVER)")
}

func newClient() *client.Client {
	return client.New(
		client.WithServerURL(*serverURL),
		client.WithVersion(Version),
	)
}

func checkFatalError(err error) {
	if err != nil {
		_, filename, line, _ := runtime.Caller(1)
		logrus.Fatalf("triaxial %s fatal error at %s:%d: %v", Version, filename, line, err)
	}
}
