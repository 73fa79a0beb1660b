package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func NewPinCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Manage pinned folders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <folder>",
		Short: "Pin a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLibrary()
			if err != nil {
				return err
			}
			defer env.Close()
			return env.lib.PinFolder(context.Background(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <folder>",
		Short: "Unpin a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLibrary()
			if err != nil {
				return err
			}
			defer env.Close()
			return env.lib.UnpinFolder(context.Background(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pinned folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLibrary()
			if err != nil {
				return err
			}
			defer env.Close()

			for _, path := range env.lib.PinnedFolders(context.Background()) {
				fmt.Println(path)
			}
			return nil
		},
	})

	return cmd
}
