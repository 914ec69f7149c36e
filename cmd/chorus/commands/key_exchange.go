package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"chorus/internal/domain"
)

// key-exchange <peer>: establish a pairwise session with <peer>.
func keyExchangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key-exchange <peer>",
		Short: "Establish an encrypted session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(); err != nil {
				return err
			}
			if err := unlock(cmd); err != nil {
				return err
			}
			peer := domain.ActorID(args[0])
			if err := wire.Sessions.SendKeyExchange(cmd.Context(), peer); err != nil {
				return err
			}
			fmt.Printf("Session established with %s\n", peer)
			return nil
		},
	}
}
