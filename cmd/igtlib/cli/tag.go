package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func NewTagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage image tags",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <file> <tag>",
		Short: "Add a tag to an image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLibrary()
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := context.Background()
			id, err := env.lib.TrackFile(ctx, args[0])
			if err != nil {
				return err
			}
			return env.lib.AddTag(ctx, id, args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <file> <tag>",
		Short: "Remove a tag from an image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLibrary()
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := context.Background()
			id, err := env.lib.TrackFile(ctx, args[0])
			if err != nil {
				return err
			}
			return env.lib.RemoveTag(ctx, id, args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list <file>",
		Short: "List an image's tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLibrary()
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := context.Background()
			id, err := env.lib.TrackFile(ctx, args[0])
			if err != nil {
				return err
			}
			for _, tag := range env.lib.Tags(ctx, id) {
				fmt.Println(tag)
			}
			return nil
		},
	})

	return cmd
}
