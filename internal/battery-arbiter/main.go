/*
battery-arbiter - Battery source arbitration for Zigbee devices
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package batteryd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/TheCacophonyProject/battery-arbiter/curve"
	"github.com/TheCacophonyProject/battery-arbiter/percent"
	"github.com/TheCacophonyProject/battery-arbiter/profile"
	"github.com/TheCacophonyProject/battery-arbiter/store"
	arg "github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var version = "No version provided"

var log = logrus.New()

type ServiceCmd struct {
	Config string `arg:"-c, --config" help:"Path to the config file"`
}

type LookupCmd struct {
	Manufacturer string `arg:"--manufacturer" help:"Manufacturer name the device reports"`
	Model        string `arg:"--model" help:"Model the device reports"`
}

type CalcCmd struct {
	Raw       float64 `arg:"--raw,required" help:"Raw reading"`
	Algorithm string  `arg:"--algorithm" help:"direct, mult2, div2, linear, cr2032, alkaline or lithium"`
	VMin      float64 `arg:"--vmin" help:"Minimum voltage for linear"`
	VMax      float64 `arg:"--vmax" help:"Maximum voltage for linear"`
}

type Args struct {
	Service  *ServiceCmd `arg:"subcommand:service" help:"Run the battery arbiter daemon"`
	Lookup   *LookupCmd  `arg:"subcommand:lookup" help:"Print the battery profile for a device"`
	Calc     *CalcCmd    `arg:"subcommand:calc" help:"Convert a raw reading to a percentage"`
	LogLevel string      `arg:"-l, --log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

func (Args) Version() string {
	return version
}

func procArgs(input []string) (Args, error) {
	args := Args{}
	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	msg := entry.Message
	if device, ok := entry.Data["device"]; ok {
		msg = fmt.Sprintf("%v: %s", device, msg)
	}
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), msg)), nil
}

func Run(inputArgs []string, ver string) error {
	version = ver
	log.SetFormatter(new(customFormatter))
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	setLogLevel(args.LogLevel)

	switch {
	case args.Lookup != nil:
		return runLookup(args.Lookup)
	case args.Calc != nil:
		return runCalc(args.Calc)
	case args.Service != nil:
		return runService(args.Service)
	}
	return errors.New("no subcommand given, use service, lookup or calc")
}

func runLookup(cmd *LookupCmd) error {
	m, ok := profile.Lookup(profile.Identity{Manufacturer: cmd.Manufacturer, Model: cmd.Model})
	if !ok {
		fmt.Println("No battery profile, the source will be learned")
		return nil
	}
	fmt.Printf("Matched by:      %s (%s)\n", m.MatchedBy, m.Key)
	fmt.Printf("Chemistry:       %s\n", m.Chemistry)
	if m.NoBattery() {
		fmt.Println("No battery to report")
		return nil
	}
	fmt.Printf("Channel:         %s\n", m.Channel)
	fmt.Printf("Algorithm:       %s\n", m.Algorithm)
	if m.HasVoltageBounds() {
		fmt.Printf("Voltage range:   %.2fV - %.2fV\n", m.VoltageMin, m.VoltageMax)
	}
	if m.Datapoint != 0 {
		fmt.Printf("Datapoint:       %d\n", m.Datapoint)
	}
	if m.StateDatapoint != 0 {
		fmt.Printf("State datapoint: %d\n", m.StateDatapoint)
	}
	fmt.Printf("Skip polling:    %t\n", m.SkipSecondaryPolling)
	if m.Notes != "" {
		fmt.Printf("Notes:           %s\n", m.Notes)
	}
	return nil
}

func runCalc(cmd *CalcCmd) error {
	alg, err := curve.ParseAlgorithm(cmd.Algorithm)
	if err != nil {
		return err
	}
	fmt.Println(percent.Calculate(cmd.Raw, alg, cmd.VMin, cmd.VMax))
	return nil
}

func runService(cmd *ServiceCmd) error {
	log.Info("Running version: ", version)
	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}

	path := cmd.Config
	if path == "" {
		path = DefaultConfigFile
	}
	config, err := LoadConfig(path)
	if err != nil {
		return err
	}
	entry := logrus.NewEntry(log)

	s, err := store.Open(config.Store, config.StateDir)
	if err != nil {
		return err
	}
	storage := newAsyncStore(s, entry)
	defer func() {
		if err := storage.Close(); err != nil {
			log.Warnf("Failed to close battery state store: %v", err)
		}
	}()
	restoreKnownDevices(s)

	host := NewHost(config, storage, entry)
	if config.ReadingsFile != "" {
		readings, err := newReadingsLog(config.ReadingsFile, config.ReadingsMaxLines)
		if err != nil {
			log.Warnf("Battery readings will not be logged: %v", err)
		} else {
			host.readings = readings
		}
	}

	bridge := newMQTTBridge(config, host, entry)
	host.AddListener(bridge)
	host.SetPoller(bridge)

	if config.DBus {
		conn, err := startService(host)
		if err != nil {
			return fmt.Errorf("failed to start dbus service: %w", err)
		}
		host.AddListener(&batterySignal{conn: conn, log: entry})
	}
	if config.Events {
		host.AddListener(newEventReporter(config.ReportPercentChange, entry))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hostDone := make(chan struct{})
	go func() {
		host.Run(ctx)
		close(hostDone)
	}()

	err = bridge.run(ctx)
	stop()
	<-hostDone
	return err
}

func restoreKnownDevices(s store.Store) {
	ids, err := s.Devices()
	if err != nil {
		log.Warnf("Failed to list saved battery states: %v", err)
		return
	}
	for _, id := range ids {
		log.Debugf("Saved battery state found for %s", id)
	}
	log.Infof("%d devices have saved battery states", len(ids))
}
