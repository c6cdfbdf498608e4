package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mcpterm/mcpterm/internal/types"
)

var (
	userCreateName  string
	userCreateEmail string
	userDeleteYes   bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage shared-history users (admin)",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		rem, err := a.requireRemote()
		if err != nil {
			return err
		}
		u, err := rem.CreateUser(cmd.Context(), args[0], userCreateName, userCreateEmail)
		if err != nil {
			return err
		}
		fmt.Printf("Created user %s (id %d)\n", u.Username, u.ID)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		rem, err := a.requireRemote()
		if err != nil {
			return err
		}
		users, err := rem.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tEMAIL\tACTIVE")
		for _, u := range users {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\n", u.ID, u.Username, u.Name, u.Email, u.Active)
		}
		return w.Flush()
	},
}

var userStatsCmd = &cobra.Command{
	Use:   "stats <username>",
	Short: "Show a user's history statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		rem, err := a.requireRemote()
		if err != nil {
			return err
		}
		st, err := rem.GetUserStats(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("User:       %s\n", st.Username)
		fmt.Printf("Questions:  %d\n", st.TotalCommands)
		fmt.Printf("Completed:  %d\n", st.Completed)
		fmt.Printf("Cancelled:  %d\n", st.Cancelled)
		fmt.Printf("Errors:     %d\n", st.Errors)
		if st.LastActivity > 0 {
			fmt.Printf("Last seen:  %s\n", time.Unix(st.LastActivity, 0).Format(time.RFC3339))
		}
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Deactivate a user (history is kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		rem, err := a.requireRemote()
		if err != nil {
			return err
		}

		if !userDeleteYes {
			var confirmed bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Deactivate user %q?", args[0])).
					Description("Their history stays; they just can't be attributed new questions.").
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := rem.DeactivateUser(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, types.ErrUserNotFound) {
				return fmt.Errorf("no such user %q", args[0])
			}
			return err
		}
		fmt.Printf("Deactivated %s\n", args[0])
		return nil
	},
}

var userReactivateCmd = &cobra.Command{
	Use:   "reactivate <username>",
	Short: "Reactivate a deactivated user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		rem, err := a.requireRemote()
		if err != nil {
			return err
		}
		if err := rem.ReactivateUser(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Reactivated %s\n", args[0])
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&userCreateName, "name", "", "display name")
	userCreateCmd.Flags().StringVar(&userCreateEmail, "email", "", "email address")
	userDeleteCmd.Flags().BoolVarP(&userDeleteYes, "yes", "y", false, "skip confirmation")
	userCmd.AddCommand(userCreateCmd, userListCmd, userStatsCmd, userDeleteCmd, userReactivateCmd)
	rootCmd.AddCommand(userCmd)
}
