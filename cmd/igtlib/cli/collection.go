package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func NewCollectionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"col"},
		Short:   "Manage collections",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLibrary()
			if err != nil {
				return err
			}
			defer env.Close()
			return env.lib.CreateCollection(context.Background(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a collection and its memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLibrary()
			if err != nil {
				return err
			}
			defer env.Close()
			return env.lib.DeleteCollection(context.Background(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <file>",
		Short: "Add an image to a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLibrary()
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := context.Background()
			id, err := env.lib.TrackFile(ctx, args[1])
			if err != nil {
				return err
			}
			return env.lib.AddToCollection(ctx, args[0], id)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <name> <file>",
		Short: "Remove an image from a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLibrary()
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := context.Background()
			id, err := env.lib.TrackFile(ctx, args[1])
			if err != nil {
				return err
			}
			return env.lib.RemoveFromCollection(ctx, args[0], id)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list [name]",
		Short: "List collections, or a collection's images newest-first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLibrary()
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := context.Background()
			if len(args) == 0 {
				for _, name := range env.lib.Collections(ctx) {
					fmt.Println(name)
				}
				return nil
			}
			for _, path := range env.lib.CollectionImages(ctx, args[0]) {
				fmt.Println(path)
			}
			return nil
		},
	})

	return cmd
}
