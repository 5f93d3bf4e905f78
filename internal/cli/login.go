package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	nextcloud "github.com/custodia-labs/nextcloud-go"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize ncloud against the server",
	Long: `Authorize ncloud against the server.

The default flow opens a browser for OAuth2 authorization and listens on the
configured redirect URI for the code. With --basic the command prompts for a
username and app password instead and stores them.`,
	RunE: runLogin,
}

var (
	loginServer string
	loginBasic  bool
)

func init() {
	loginCmd.Flags().StringVar(
		&loginServer, "server", "", "Server base URI (stored in the settings file)")
	loginCmd.Flags().BoolVar(
		&loginBasic, "basic", false, "Use username/password instead of OAuth2")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if loginServer != "" {
		settings.ServerURI = loginServer
	}
	if settings.ServerURI == "" {
		return fmt.Errorf("no server configured; pass --server or edit %s", settings.Path())
	}

	if loginBasic {
		if err := promptBasicAuth(settings); err != nil {
			return err
		}
		if err := settings.Save(); err != nil {
			return err
		}
		fmt.Println("Credentials stored.")
		return nil
	}

	client, err := nextcloud.New(settings, nextcloud.WithLogger(newLogger()))
	if err != nil {
		return err
	}
	if err := client.Login(cmd.Context()); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s.\n", settings.User)
	return nil
}

func promptBasicAuth(settings *nextcloud.Settings) error {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	fmt.Print("App password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}
	settings.Username = strings.TrimSpace(username)
	settings.Password = string(password)
	return nil
}
