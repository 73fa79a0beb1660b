package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/erroralex/Image-Generation-Toolbox-sub000/internal/storage"
)

func NewSearchCommand() *cobra.Command {
	var filterArgs []string
	var limit int

	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search the library",
		Long:  "Runs a full-text query over extracted metadata and tags, optionally narrowed by attribute filters. All filters are AND-ed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLibrary()
			if err != nil {
				return err
			}
			defer env.Close()

			filters := make(storage.Filters, len(filterArgs))
			for _, pair := range filterArgs {
				key, value, found := strings.Cut(pair, "=")
				if !found {
					return fmt.Errorf("invalid filter %q, expected key=value", pair)
				}
				filters[key] = value
			}

			text := ""
			if len(args) > 0 {
				text = args[0]
			}

			for _, path := range env.lib.Search(context.Background(), text, filters, limit) {
				fmt.Println(path)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&filterArgs, "filter", "f", nil, "attribute filter key=value; key Rating matches the rating column")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum number of results")

	return cmd
}
