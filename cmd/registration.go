package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:     "user",
	Short:   "Manage users",
	GroupID: GROUP_ID_DATA,
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Register a new user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		userId, err := newClient().CreateUser(cmd.Context(), args[0])
		checkFatalError(err)
		fmt.Printf("Registered user %s (id=%d)\n", args[0], userId)
	},
}

var deviceCmd = &cobra.Command{
	Use:     "device",
	Short:   "Manage devices",
	GroupID: GROUP_ID_DATA,
}

var deviceRegisterCmd = &cobra.Command{
	Use:   "register <username> <device_id>",
	Short: "Register a device for an existing user",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		checkFatalError(newClient().RegisterDevice(cmd.Context(), args[0], args[1]))
		fmt.Printf("Registered device %s for %s\n", args[1], args[0])
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceRegisterCmd)
}
