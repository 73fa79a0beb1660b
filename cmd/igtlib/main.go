package main

import (
	"fmt"
	"os"

	"github.com/erroralex/Image-Generation-Toolbox-sub000/cmd/igtlib/cli"
)

var (
	version = "0.1.0-dev"
	commit  = "main"
)

func main() {
	root := cli.NewRootCommand(cli.VersionInfo{
		Version: version,
		Commit:  commit,
	})

	root.AddCommand(cli.NewScanCommand())
	root.AddCommand(cli.NewSearchCommand())
	root.AddCommand(cli.NewTagCommand())
	root.AddCommand(cli.NewRateCommand())
	root.AddCommand(cli.NewCollectionCommand())
	root.AddCommand(cli.NewPinCommand())

	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
