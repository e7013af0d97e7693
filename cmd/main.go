// cmd/main.go

package main

import (
	"fmt"
	"os"

	"AveMQ/pkg/utils"
	"AveMQ/pkg/version"

	"github.com/google/gops/agent"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var logger = utils.GetLogger("avemq")

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"debug", "v"},
			Usage:   "enable debug log",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "only warning and errors",
		},
		&cli.BoolFlag{
			Name:  "trace",
			Usage: "enable trace log",
		},
		&cli.StringFlag{
			Name:  "log",
			Usage: "append logs to this file instead of stderr",
		},
		&cli.BoolFlag{
			Name:  "no-agent",
			Usage: "disable gops agent",
		},
	}
}

func setLoggerLevel(c *cli.Context) {
	if c.Bool("trace") {
		utils.SetLogLevel(logrus.TraceLevel)
	} else if c.Bool("verbose") {
		utils.SetLogLevel(logrus.DebugLevel)
	} else if c.Bool("quiet") {
		utils.SetLogLevel(logrus.WarnLevel)
	} else {
		utils.SetLogLevel(logrus.InfoLevel)
	}
}

func setupAgent(c *cli.Context) {
	if c.Bool("no-agent") {
		return
	}
	if err := agent.Listen(agent.Options{ShutdownCleanup: false}); err != nil {
		logger.Debugf("gops agent: %s", err)
	}
}

func main() {
	app := &cli.App{
		Name:                 version.Name,
		Usage:                "segmented append-only log storage",
		Version:              version.Version(),
		EnableBashCompletion: true,
		Flags:                globalFlags(),
		Before: func(c *cli.Context) error {
			setLoggerLevel(c)
			if name := c.String("log"); name != "" {
				if err := utils.SetOutFile(name); err != nil {
					return fmt.Errorf("open log file %s: %s", name, err)
				}
			}
			setupAgent(c)
			logger.Debugf("%s", version.Banner())
			return nil
		},
		Commands: []*cli.Command{
			formatFlags(),
			statusFlags(),
			infoFlags(),
			checkFlags(),
			rmchunkFlags(),
			benchFlags(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
