package main

import (
	"github.com/spf13/cobra"

	"github.com/aisleco/aisle-open/cmd/cli/internal/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  `Commands for managing the login session against the booking cluster.`,
}

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to the cluster",
	Long: `Login to the booking cluster. Username and password are prompted for
when not given as flags. A development cluster ships with the users
user1/password1, user2/password2 and admin/admin123 unless reconfigured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		return auth.Login(username, password)
	},
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Logout from the cluster",
	Long:  `Revoke the session token on the cluster and clear stored credentials.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return auth.Logout()
	},
}

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  `Display the current authentication status and token expiry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return auth.Status()
	},
}

func init() {
	loginCmd.Flags().String("username", "", "Username (prompted when omitted)")
	loginCmd.Flags().String("password", "", "Password (prompted when omitted)")

	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(authStatusCmd)
}
