package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("wikimediator")

func main() {
	app := &cli.App{
		Name:  "wikimediator",
		Usage: "Caching, analytics and path finding in front of a MediaWiki site",
		Commands: []*cli.Command{
			serveCmd,
			requestCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
