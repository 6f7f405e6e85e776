// File: cmd/wlinfo/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"os"

	"github.com/lthibault/log"
	"github.com/urfave/cli/v2"
)

var flags = []cli.Flag{
	&cli.StringFlag{
		Name:    "display",
		Aliases: []string{"d"},
		Usage:   "connect to display `NAME` or socket path",
		EnvVars: []string{"WAYLAND_DISPLAY"},
	},
	&cli.BoolFlag{
		Name:    "debug",
		Usage:   "trace every request and event",
		EnvVars: []string{"WLINFO_DEBUG"},
	},
	&cli.BoolFlag{
		Name:    "monitor",
		Aliases: []string{"m"},
		Usage:   "keep running and report globals as they come and go",
	},
	&cli.BoolFlag{
		Name:  "stats",
		Usage: "print connection counters and probes on exit",
	},
	// Logging
	&cli.StringFlag{
		Name:    "logfmt",
		Aliases: []string{"f"},
		Usage:   "`format` logs as text, json or none",
		Value:   "text",
		EnvVars: []string{"WLINFO_LOGFMT"},
	},
	&cli.StringFlag{
		Name:    "loglvl",
		Usage:   "set logging `level` to trace, debug, info, warn, error or fatal",
		Value:   "warn",
		EnvVars: []string{"WLINFO_LOGLVL"},
	},
	&cli.BoolFlag{
		Name:    "prettyprint",
		Aliases: []string{"pp"},
		Usage:   "pretty-print JSON output",
		Hidden:  true,
	},
}

func main() {
	run(&cli.App{
		Name:      "wlinfo",
		Usage:     "list the globals advertised by a compositor",
		UsageText: "wlinfo [options]",
		Flags:     flags,
		Action:    info,
		Metadata:  map[string]interface{}{},
	})
}

func run(app *cli.App) {
	if err := app.Run(os.Args); err != nil {
		log.New().Fatal(err)
	}
}
