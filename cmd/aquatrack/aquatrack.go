package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/aquatrack/server"
	"github.com/cyclopcam/aquatrack/server/config"
	"github.com/cyclopcam/logs"
)

func main() {
	parser := argparse.NewParser("aquatrack", "Fish tank tracking and monitoring")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file", Default: config.DefaultFilename})
	printConfig := parser.Flag("", "print-config", &argparse.Options{Help: "Print the effective configuration as JSON and exit", Default: false})
	listen := parser.String("", "listen", &argparse.Options{Help: "HTTP listen address. Overrides http.listen in the config file", Default: ""})
	record := parser.String("", "record", &argparse.Options{Help: "Save all tracker output to this file on exit, for later replay", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	if *printConfig {
		// A config file that doesn't exist yet is not an error here. The defaults are a starting point for writing one.
		cfg := config.Default()
		if _, statErr := os.Stat(*configFile); statErr == nil {
			if cfg, err = config.LoadConfig(*configFile); err != nil {
				fmt.Printf("%v\n", err)
				os.Exit(1)
			}
		}
		j, _ := json.MarshalIndent(cfg, "", "\t")
		fmt.Printf("%v\n", string(j))
		return
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.HTTP.Listen = *listen
	}
	if *record != "" {
		cfg.Tracker.RecordFile = *record
	}

	tracker, err := server.NewTrackerFromConfig(logger, cfg.Tracker)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	source, err := server.NewSourceFromConfig(logger, cfg.Source)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(logger, cfg, source, tracker)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()
	if err := srv.StartAll(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	// Tell systemd that we're alive.
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := srv.ListenHTTP(cfg.HTTP.Listen); err != nil {
		logger.Errorf("ListenHTTP returned: %v", err)
		srv.Shutdown()
	}
	<-srv.ShutdownComplete
	logger.Close()
}
