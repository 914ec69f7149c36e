package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func publishKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish-keys",
		Short: "Publish the identity key and any unpublished one-time keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(); err != nil {
				return err
			}
			if err := unlock(cmd); err != nil {
				return err
			}
			n, err := wire.Identity.PublishKeys(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Published identity key and %d one-time keys\n", n)
			return nil
		},
	}
}

// replenish: top up the published one-time key pool when it runs low.
func replenishCmd() *cobra.Command {
	var threshold int
	cmd := &cobra.Command{
		Use:   "replenish",
		Short: "Top up the published one-time key pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(); err != nil {
				return err
			}
			if err := unlock(cmd); err != nil {
				return err
			}
			published, err := wire.Identity.Replenish(cmd.Context(), threshold)
			if err != nil {
				return err
			}
			if published {
				fmt.Println("Replenished one-time keys")
			} else {
				fmt.Println("Pool is healthy; nothing published")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&threshold, "threshold", 0, "replenish when fewer keys remain (default service low-water mark)")
	return cmd
}
