package main

import (
	"strings"

	"github.com/urfave/cli"
)

const (
	configFlag   = "config"
	logLevelFlag = "log-level"

	brokerFlag    = "broker"
	portFlag      = "port"
	usernameFlag  = "username"
	passwordFlag  = "password"
	haConfigFlag  = "ha-config"
	intervalFlag  = "interval"
	transportFlag = "transport"

	outputFlag = "log"
	startFlag  = "start"
	endFlag    = "end"
	stepFlag   = "step"
)

func joinFlagNames(ids ...string) string { return strings.Join(ids, ", ") }

func transportFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:  transportFlag,
		Usage: "device transport: ble|modbus",
	})
}

func brokerFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.StringFlag{
			Name:  joinFlagNames(brokerFlag, "b"),
			Usage: "MQTT broker host",
		},
		cli.IntFlag{
			Name:  portFlag,
			Usage: "MQTT broker port",
		},
		cli.StringFlag{
			Name:  joinFlagNames(usernameFlag, "u"),
			Usage: "MQTT username",
		},
		cli.StringFlag{
			Name:  joinFlagNames(passwordFlag, "p"),
			Usage: "MQTT password",
		},
		cli.StringFlag{
			Name:  haConfigFlag,
			Usage: "Home Assistant discovery: none|normal|advanced",
		},
	)
}

func intervalFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.IntFlag{
		Name:  joinFlagNames(intervalFlag, "i"),
		Usage: "polling interval in seconds",
	})
}

func outputFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:  joinFlagNames(outputFlag, "o"),
		Usage: "file to append JSON lines to, stdout when empty",
	})
}

func rangeFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.IntFlag{
			Name:  startFlag,
			Usage: "first register to read",
			Value: 0,
		},
		cli.IntFlag{
			Name:  endFlag,
			Usage: "register to stop before",
			Value: 6000,
		},
		cli.IntFlag{
			Name:  stepFlag,
			Usage: "registers per read",
			Value: 10,
		},
	)
}
