package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"chorus/internal/domain"
)

// status: non-blocking snapshot of the unlocked account. Safe to run
// while a background reconciliation is publishing.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show account and inbox progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := unlock(cmd); err != nil {
				return err
			}
			fp, err := wire.Identity.Fingerprint()
			if err != nil {
				return err
			}
			fmt.Printf("Actor:       %s\n", actor)
			fmt.Printf("Fingerprint: %s\n", fp)

			n, err := wire.Inbox.Settled()
			switch {
			case errors.Is(err, domain.ErrBusy):
				fmt.Println("Inbox:       reconciliation in progress")
			case err != nil:
				return err
			default:
				fmt.Printf("Inbox:       %d items settled\n", n)
			}
			return nil
		},
	}
}
