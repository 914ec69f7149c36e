package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"chorus/internal/services/inbox"
)

// reconcile: fetch one inbox page and decrypt what the local sessions can.
func reconcileCmd() *cobra.Command {
	var view, cursor string
	var background bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Fetch and decrypt the inbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(); err != nil {
				return err
			}
			if err := unlock(cmd); err != nil {
				return err
			}
			mode := inbox.ModeAwait
			if background {
				mode = inbox.ModeBackground
			}
			col, err := wire.Inbox.Reconcile(cmd.Context(), view, cursor, mode)
			if err != nil {
				return err
			}
			for _, item := range col.Items {
				fmt.Printf("[%s] %s\n", item.Actor, item.Object.Content)
			}
			if col.Cursor != "" {
				fmt.Printf("more: --cursor %s\n", col.Cursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&view, "view", "", "server-side inbox view")
	cmd.Flags().StringVar(&cursor, "cursor", "", "resume from a previous page")
	cmd.Flags().BoolVar(&background, "background", false, "do not wait for resealed copies to be stored")
	return cmd
}
