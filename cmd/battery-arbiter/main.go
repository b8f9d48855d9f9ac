package main

import (
	"fmt"
	"os"

	batteryd "github.com/TheCacophonyProject/battery-arbiter/internal/battery-arbiter"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

var version = "<not set>"

func runMain() error {
	if len(os.Args) < 2 {
		log.Info("Usage: battery-arbiter <service|lookup|calc> [args]")
		return fmt.Errorf("no subcommand given")
	}
	return batteryd.Run(os.Args[1:], version)
}
