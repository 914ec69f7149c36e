package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"chorus/internal/app"
)

var (
	home       string
	passphrase string
	serverURL  string
	actor      string
	username   string
	debug      bool

	wire *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:   "chorus",
		Short: "End-to-end encrypted messaging for federated social networks",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".chorus")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}
			if actor == "" {
				actor = username
			}

			var err error
			wire, err = app.NewWire(app.Config{
				Home:      home,
				ServerURL: serverURL,
				Actor:     actor,
				Username:  username,
				Debug:     debug,
			})
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.chorus)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "vault passphrase")
	root.PersistentFlags().StringVar(&serverURL, "server", "", "instance base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVar(&actor, "actor", "", "federated actor handle (default --username)")
	root.PersistentFlags().StringVarP(&username, "username", "u", "", "local account name")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "verbose logging")

	root.AddCommand(
		initCmd(), fingerprintCmd(), statusCmd(), publishKeysCmd(), replenishCmd(),
		keyExchangeCmd(), sendCmd(),
		groupCreateCmd(), groupInviteCmd(),
		reconcileCmd(),
	)
	return root.Execute()
}

// unlock opens the vault for commands that need key material.
func unlock(cmd *cobra.Command) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase required (-p)")
	}
	return wire.Identity.Unlock(cmd.Context(), passphrase)
}

func requireServer() error {
	if serverURL == "" {
		return fmt.Errorf("no server configured. use --server")
	}
	return nil
}
