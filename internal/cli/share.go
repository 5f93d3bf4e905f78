package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/nextcloud-go/ocs"
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Manage shares",
}

var shareListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List shares visible to the logged-in account",
	RunE:  runShareList,
}

func init() {
	shareCmd.AddCommand(shareListCmd)
	rootCmd.AddCommand(shareCmd)
}

func runShareList(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	shares, err := ocs.ListShares(cmd.Context(), client)
	if err != nil {
		return err
	}
	for _, s := range shares {
		target := s.ShareWith
		if s.ShareType == ocs.ShareTypeLink {
			target = s.URL
		}
		fmt.Printf("%-6s %-40s -> %s\n", s.ID, s.Path, target)
	}
	return nil
}
