package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpterm/mcpterm/internal/identity"
)

var machineCmd = &cobra.Command{
	Use:   "machine",
	Short: "Inspect this machine's identity",
}

var machineInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the machine fingerprint and registration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		fp, err := identity.Load(a.dir)
		if err != nil {
			return err
		}
		hostname, _ := os.Hostname()

		fmt.Printf("Machine ID:   %s\n", fp.ID)
		fmt.Printf("Derived from: %s\n", fp.Source)
		fmt.Printf("Hostname:     %s\n", hostname)
		fmt.Printf("OS:           %s\n", identity.OSInfo())
		fmt.Printf("Local IP:     %s\n", identity.LocalIP())

		if a.remote == nil {
			fmt.Println("Remote:       not connected")
			return nil
		}
		m, err := a.remote.GetMachine(cmd.Context(), fp.ID)
		if err != nil {
			fmt.Println("Remote:       connected (machine not registered yet)")
			return nil
		}
		fmt.Printf("Remote:       registered, first seen %s, %d questions\n",
			m.FirstSeen.Format(time.DateOnly), m.TotalCommands)
		return nil
	},
}

func init() {
	machineCmd.AddCommand(machineInfoCmd)
	rootCmd.AddCommand(machineCmd)
}
