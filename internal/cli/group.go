package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/nextcloud-go/ocs"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage groups",
}

var groupListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List group ids",
	RunE:  runGroupList,
}

var groupMembersCmd = &cobra.Command{
	Use:   "members [groupid]",
	Short: "List the accounts in a group",
	Args:  cobra.ExactArgs(1),
	RunE:  runGroupMembers,
}

func init() {
	groupCmd.AddCommand(groupListCmd)
	groupCmd.AddCommand(groupMembersCmd)
	rootCmd.AddCommand(groupCmd)
}

func runGroupList(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	page, err := ocs.ListGroups(cmd.Context(), client, nil)
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

func runGroupMembers(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	page, err := ocs.GroupMembers(cmd.Context(), client, args[0], nil)
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
