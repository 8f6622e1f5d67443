package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/votqanh/go-wikimediator/server"
)

var requestCmd = &cli.Command{
	Name:      "request",
	Usage:     "Send one request to a running server and print the response",
	ArgsUsage: "<type>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "Address of the server",
			Value: "127.0.0.1:9012",
		},
		&cli.StringFlag{
			Name:  "id",
			Usage: "Request ID echoed in the response",
			Value: "1",
		},
		&cli.StringFlag{
			Name:  "query",
			Usage: "Search query",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Result limit for search and zeitgeist",
		},
		&cli.StringFlag{
			Name:  "title",
			Usage: "Page title for getPage, start page for shortestPath",
		},
		&cli.StringFlag{
			Name:  "title2",
			Usage: "Target page for shortestPath",
		},
		&cli.IntFlag{
			Name:  "time-limit",
			Usage: "Trending window in seconds",
		},
		&cli.IntFlag{
			Name:  "max-items",
			Usage: "Result limit for trending",
		},
		&cli.IntFlag{
			Name:  "window",
			Usage: "Peak load window in seconds, default window if not set",
		},
		&cli.IntFlag{
			Name:  "timeout",
			Usage: "Request timeout in seconds",
		},
	},
	Action: requestAction,
}

func requestAction(cctx *cli.Context) error {
	if cctx.NArg() != 1 {
		return cli.Exit("request type required", 1)
	}
	req := server.Request{
		ID:                 cctx.String("id"),
		Type:               cctx.Args().First(),
		Query:              cctx.String("query"),
		Limit:              cctx.Int("limit"),
		PageTitle:          cctx.String("title"),
		PageTitle2:         cctx.String("title2"),
		TimeLimitInSeconds: cctx.Int("time-limit"),
		MaxItems:           cctx.Int("max-items"),
		Timeout:            cctx.Int("timeout"),
	}
	if cctx.IsSet("window") {
		w := cctx.Int("window")
		req.TimeWindowInSeconds = &w
	}

	readTimeout := server.DefaultReadTimeout
	if req.Timeout > 0 {
		readTimeout = time.Duration(req.Timeout)*time.Second + 5*time.Second
	}
	c, err := server.Dial(cctx.Context, cctx.String("addr"), readTimeout)
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.Send(context.Background(), req)
	if err != nil {
		return err
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, string(out))
	return nil
}
