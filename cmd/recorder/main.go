package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"rollcall/internal/capture"
	"rollcall/internal/config"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stderr, "RECORDER : ", log.LstdFlags)

	global := flag.NewFlagSet("recorder", flag.ExitOnError)
	configPath := global.String("config", "recorder.yaml", "path to the recorder config file")
	_ = global.Parse(os.Args[1:])

	cfg, err := config.LoadRecorder(*configPath)
	errAndDie(err)

	backlog, err := capture.OpenSQLiteBacklog(cfg.BacklogPath)
	errAndDie(err)

	cli := newCommandLine(cfg, backlog, os.Stdout)
	err = cli.run(append([]string{os.Args[0]}, global.Args()...))
	_ = backlog.Close()
	if err != nil {
		if !errors.Is(err, errHelp) {
			logger.Printf("error: %s", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
