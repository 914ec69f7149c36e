package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print identity fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := unlock(cmd); err != nil {
				return err
			}
			fp, err := wire.Identity.Fingerprint()
			if err != nil {
				return err
			}
			key, err := wire.Identity.IdentityKey()
			if err != nil {
				return err
			}
			fmt.Printf("Fingerprint:  %s\n", fp)
			fmt.Printf("Identity key: %s\n", key)
			return nil
		},
	}
}
