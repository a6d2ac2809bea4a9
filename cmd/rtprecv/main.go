/*
NAME
  main.go

DESCRIPTION
  rtprecv receives an RTP stream carrying H.264 or AAC and writes the
  depacketized media to files.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Alan Noble <alan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// rtprecv is a command line client for the receiver.
//
// Receiver variables are read from a YAML file of variable names and values,
// for example:
//
//	Input: udp
//	RTPAddress: 0.0.0.0:5004
//	InputCodec: h264
//	Outputs: File
//	OutputPath: /var/media/cam0_
//
// The file is watched and the receiver is reconfigured when it changes.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtpav/receiver"
	"github.com/ausocean/rtpav/receiver/config"
)

// Current software version.
const version = "v1.0.0"

// Logging configuration.
const (
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

// Misc constants.
const (
	defaultLogPath  = "/var/log/rtprecv/rtprecv.log"
	profilePath     = "rtprecv.prof"
	pkg             = "rtprecv: "
	bitrateInterval = 30 * time.Second
)

// This is set to true if the 'profile' build tag is provided on build.
var canProfile = false

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version")
		cfgPath     = flag.String("config", "", "path of YAML file holding receiver variables")
		logPath     = flag.String("log", defaultLogPath, "path of log file")
		vars        = flag.Bool("vars", false, "list receiver variables and their types")
	)
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}
	if *vars {
		for _, v := range config.Variables {
			fmt.Printf("%s\t%s\n", v.Name, v.Type)
		}
		os.Exit(0)
	}

	// Create lumberjack logger to handle logging to file.
	fileLog := &lumberjack.Logger{
		Filename:   *logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	defer fileLog.Close()

	// Create logger that we call methods on to log, which in turn writes to the
	// lumberjack logger and stderr.
	log := logging.New(logVerbosity, io.MultiWriter(fileLog, os.Stderr), logSuppress)

	log.Info("starting rtprecv", "version", version)

	// If rtprecv has been built with the profile tag, then we'll start a CPU profile.
	if canProfile {
		profile(log)
		defer pprof.StopCPUProfile()
		log.Info("profiling started")
	}

	cfg := config.Config{Logger: log, LogLevel: logVerbosity}
	reload := make(chan map[string]string, 1)
	if *cfgPath != "" {
		v, err := readVars(*cfgPath, log)
		if err != nil {
			log.Fatal(pkg+"could not read config", "error", err.Error())
		}
		cfg.Update(v)

		w, err := watch(*cfgPath, log, reload)
		if err != nil {
			log.Fatal(pkg+"could not watch config", "error", err.Error())
		}
		defer w.Close()
	}

	log.Debug("initialising receiver")
	rv, err := receiver.New(cfg)
	if err != nil {
		log.Fatal(pkg+"could not initialise receiver", "error", err.Error())
	}

	err = rv.Start()
	if err != nil {
		log.Fatal(pkg+"could not start receiver", "error", err.Error())
	}

	log.Debug("beginning main loop")
	run(rv, log, reload)
}

// run handles signals, end of input and config changes until it is time to
// stop the receiver.
func run(rv *receiver.Receiver, l logging.Logger, reload <-chan map[string]string) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	tick := time.NewTicker(bitrateInterval)
	defer tick.Stop()

	for {
		select {
		case s := <-sigs:
			l.Info("received signal, stopping", "signal", s.String())
			rv.Stop()
			return

		case <-rv.Done():
			l.Info("input ended, stopping")
			rv.Stop()
			return

		case v := <-reload:
			l.Info("config changed, updating receiver")
			err := rv.Update(v)
			if err != nil {
				l.Error(pkg+"could not update receiver", "error", err.Error())
				return
			}
			l.Info("receiver updated")

		case <-tick.C:
			s := rv.Stats()
			l.Info("receiver status", "bitrate", rv.Bitrate(), "frames", s.Frames, "damaged", s.Damaged, "lost", s.Lost)
		}
	}
}

// profile opens a file to hold CPU profiling metrics and then starts the
// CPU profiler.
func profile(l logging.Logger) {
	f, err := os.Create(profilePath)
	if err != nil {
		l.Fatal(pkg+"could not create CPU profile", "error", err.Error())
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		l.Fatal(pkg+"could not start CPU profile", "error", err.Error())
	}
}
