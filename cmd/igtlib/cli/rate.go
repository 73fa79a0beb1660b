package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func NewRateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rate <file> [0-5]",
		Short: "Rate an image, or show its rating",
		Args:  cobra.RangeArgs(1, 2),
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

			if len(args) == 1 {
				fmt.Println(env.lib.Rating(ctx, id))
				return nil
			}

			rating, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid rating %q: %w", args[1], err)
			}
			env.lib.SetRating(id, rating)
			// Close flushes the coalesced write before the process exits
			return nil
		},
	}

	return cmd
}
