package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"chorus/internal/domain"
)

// send: encrypt and publish a message to a peer or a conversation.
func sendCmd() *cobra.Command {
	var peer, conversation string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Encrypt and send a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(); err != nil {
				return err
			}
			if (peer == "") == (conversation == "") {
				return fmt.Errorf("exactly one of --peer or --conversation required")
			}
			if err := unlock(cmd); err != nil {
				return err
			}
			msg := []byte(args[0])

			if peer != "" {
				if err := wire.Sessions.SendMessage(cmd.Context(), domain.ActorID(peer), msg); err != nil {
					return err
				}
			} else {
				if err := wire.Groups.SendMessage(cmd.Context(), domain.ConversationID(conversation), msg); err != nil {
					return err
				}
			}
			fmt.Println("sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&peer, "peer", "", "recipient actor for a pairwise message")
	cmd.Flags().StringVar(&conversation, "conversation", "", "conversation for a group message")
	return cmd
}
