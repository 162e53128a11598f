package main

import (
	"os"
	"path"

	"github.com/joho/godotenv"
	"github.com/leasestore/leasestore/pkg/commands"
	"github.com/leasestore/leasestore/pkg/version"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			// log panics forces exit
			if _, ok := r.(*logrus.Entry); ok {
				os.Exit(1)
			}
			panic(r)
		}
	}()

	// A .env file is optional, flags and real env vars win
	_ = godotenv.Load()

	app := cli.NewApp()
	app.Name = path.Base(os.Args[0])
	app.Usage = "DHCP lease bookkeeping"
	app.Version = version.Get().String()

	app.Commands = commands.GetCommands()
	app.CommandNotFound = func(context *cli.Context, command string) {
		logrus.Fatalf("Command %s not found.", command)
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
