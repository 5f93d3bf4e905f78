package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	nextcloud "github.com/custodia-labs/nextcloud-go"
	"github.com/custodia-labs/nextcloud-go/ocs"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage server accounts",
}

var userListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List account ids",
	RunE:  runUserList,
}

var userGetCmd = &cobra.Command{
	Use:   "get [userid]",
	Short: "Show one account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runUserGet,
}

var (
	userSearch string
	userLimit  int
)

func init() {
	userListCmd.Flags().StringVar(&userSearch, "search", "", "Server-side filter")
	userListCmd.Flags().IntVar(&userLimit, "limit", nextcloud.DefaultPageSize, "Page size")
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userGetCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserList(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	req := &nextcloud.ListRequest{Search: userSearch, Limit: userLimit}
	page, err := ocs.ListUsers(cmd.Context(), client, req)
	if err != nil {
		return err
	}
	for id, err := range page.All(cmd.Context(), client) {
		if err != nil {
			return err
		}
		fmt.Println(id)
	}
	return nil
}

func runUserGet(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	var userID string
	if len(args) > 0 {
		userID = args[0]
	}
	user, err := ocs.GetUser(cmd.Context(), client, userID)
	if err != nil {
		return err
	}
	fmt.Printf("id:        %s\n", user.ID)
	fmt.Printf("name:      %s\n", user.DisplayName)
	fmt.Printf("email:     %s\n", user.Email)
	fmt.Printf("enabled:   %v\n", user.Enabled)
	fmt.Printf("groups:    %v\n", user.Groups)
	if !user.LastLogin.IsZero() {
		fmt.Printf("last seen: %s\n", user.LastLogin.Format("2006-01-02 15:04"))
	}
	return nil
}
