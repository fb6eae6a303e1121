package main

import (
	"log/slog"
	"os"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"

	"github.com/urfave/cli"
)

func main() {
	app := buildApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("bluetti2mqtt failed", "error", err)
		os.Exit(1)
	}
}

func buildApp() *cli.App {
	app := cli.NewApp()

	app.Name = "bluetti2mqtt"
	app.Usage = "bridge Bluetti power stations to MQTT and Home Assistant"
	app.Version = domain.BridgeVersion()

	app.Commands = []cli.Command{
		mqttCommand(),
		loggerCommand(),
		discoveryCommand(),
		scanCommand(),
	}

	// global options, shared by every command
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   joinFlagNames(configFlag, "c"),
			Usage:  "path to a yaml config file",
			EnvVar: "CONFIG_FILE",
		},
		cli.StringFlag{
			Name:  logLevelFlag,
			Usage: "lowest visible log level: trace|debug|info|warn|error|fatal",
		},
	}

	return app
}
