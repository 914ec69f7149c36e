package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"chorus/internal/domain"
)

func groupCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "group-create <conversation>",
		Short: "Create a group session for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := unlock(cmd); err != nil {
				return err
			}
			gid, err := wire.Groups.Create(cmd.Context(), domain.ConversationID(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("Group %s created for conversation %s\n", gid, args[0])
			return nil
		},
	}
}

// group-invite <conversation> <member>: hand the conversation key to a member.
func groupInviteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "group-invite <conversation> <member>",
		Short: "Invite a member into a group conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(); err != nil {
				return err
			}
			if err := unlock(cmd); err != nil {
				return err
			}
			conv := domain.ConversationID(args[0])
			member := domain.ActorID(args[1])
			if err := wire.Groups.Invite(cmd.Context(), conv, member); err != nil {
				return err
			}
			fmt.Printf("Invited %s to %s\n", member, conv)
			return nil
		},
	}
}
