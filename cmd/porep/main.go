package main

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

func main() {
	// set default log level if no flags given
	level, err := logging.LevelFromString(os.Getenv("POREP_LOG_LEVEL"))
	if err != nil {
		level = logging.LevelInfo
	}
	logging.SetAllLoggers(level)

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERR: %v\n", err) // nolint: errcheck
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:  "porep",
		Usage: "seal data into stacked DRG replicas and prove their storage",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Value:   "~/.porep",
				Usage:   "directory holding the config, layers and registry",
				EnvVars: []string{"POREP_PATH"},
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve prometheus metrics on this address while the command runs",
			},
			&cli.StringFlag{
				Name:  "tracing-endpoint",
				Usage: "export traces to the jaeger agent at this address",
			},
		},
		Commands: []*cli.Command{
			initCmd,
			sealCmd,
			proveCmd,
			verifyCmd,
			extractCmd,
			showCmd,
		},
	}
	app.Setup()
	return app
}
