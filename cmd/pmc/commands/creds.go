package commands

import (
	"fmt"
	"pmcautomation/cmd/pmc/globals"
	"pmcautomation/cmd/pmc/utils"
	"pmcautomation/internal/datasource"
	"pmcautomation/internal/keychain"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	credsUsername *string
	credsPassword *string
)

func init() {
	credsUsername = credsSetCmd.Flags().String("username", "", "The webservice username, prompted for when empty.")
	credsPassword = credsSetCmd.Flags().String("password", "", "The webservice password, prompted for when empty.")

	credsCmd.AddCommand(credsSetCmd, credsListCmd, credsDeleteCmd, credsImportCmd)
	rootCmd.AddCommand(credsCmd)
}

var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Manages the reference keys kept in the keychain database.",
}

func withKeychain(cmd *cobra.Command, run func(store keychain.Store) error) error {
	value := globals.Get(cmd.Context())
	store, closeKeychain, ok, err := openKeychain(value)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no keychain configured, set keychain.file or keychain.url in the config")
	}
	defer closeKeychain()
	return run(store)
}

var credsSetCmd = &cobra.Command{
	Use:   "set <reference>",
	Short: "Stores the webservice credentials of a reference key.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeychain(cmd, func(store keychain.Store) error {
			auth := datasource.BasicAuth{Username: *credsUsername, Password: *credsPassword}
			if auth.Username == "" || auth.Password == "" {
				in, out := stdio(cmd)
				prompted, err := utils.PromptBasicAuth(in, out, fmt.Sprintf("Enter the webservice credentials of '%s'.", args[0]))
				if err != nil {
					return err
				}
				auth = prompted
			}
			return store.Set(cmd.Context(), args[0], auth)
		})
	},
}

var credsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the stored reference keys and their usernames.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeychain(cmd, func(store keychain.Store) error {
			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			t := utils.NewTable()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Reference", "Username", "Updated"})
			for _, e := range entries {
				t.AppendRow(table.Row{e.Reference, e.Username, e.UpdatedAt.Format(time.DateTime)})
			}
			t.Render()
			return nil
		})
	},
}

var credsDeleteCmd = &cobra.Command{
	Use:   "delete <reference>...",
	Short: "Removes reference keys from the keychain.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeychain(cmd, func(store keychain.Store) error {
			for _, ref := range args {
				removed, err := store.Delete(cmd.Context(), ref)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.ErrOrStderr(), "'%s' was not in the keychain\n", ref)
				}
			}
			return nil
		})
	},
}

var credsImportCmd = &cobra.Command{
	Use:   "import [credential file]",
	Short: "Copies every reference key of a credential file into the keychain.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := globals.Get(cmd.Context()).Config.CredentialFile
		if len(args) == 1 {
			path = args[0]
		}
		return withKeychain(cmd, func(store keychain.Store) error {
			count, err := store.ImportFile(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d reference keys from %s\n", count, path)
			return nil
		})
	},
}
