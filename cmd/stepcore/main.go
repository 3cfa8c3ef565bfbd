/*
 * stepcore - Main process.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/hrcornwell/stepcore/console"
	"github.com/hrcornwell/stepcore/gpio"
	"github.com/hrcornwell/stepcore/planner"
	"github.com/hrcornwell/stepcore/probe"
	"github.com/hrcornwell/stepcore/settings"
	"github.com/hrcornwell/stepcore/spindle"
	"github.com/hrcornwell/stepcore/stepper"
	logger "github.com/hrcornwell/stepcore/util/logger"

	config "github.com/hrcornwell/stepcore/config/configparser"
	settingscfg "github.com/hrcornwell/stepcore/config/settingsconfig"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "stepcore.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Log debug messages to stderr")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if optLogFile != nil && *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, optDebug))
	slog.SetDefault(Logger)

	Logger.Info("stepcore started")

	st := settings.Default()
	settingscfg.Bind(st)

	if optConfig != nil && *optConfig != "" {
		if _, err := os.Stat(*optConfig); err == nil {
			if err := config.LoadConfigFile(*optConfig); err != nil {
				Logger.Error(err.Error())
				os.Exit(1)
			}
		} else {
			Logger.Warn("configuration file not found, using defaults", "path", *optConfig)
		}
	}

	pl := planner.NewStaticPlanner()
	sp := spindle.NewLinearDriver(maxRPMOrDefault(st.SpindleMaxRPM), 1000, 1000)
	pr := probe.NullMonitor{}
	gp := gpio.NewRecorder()

	core := stepper.NewCore(pl, sp, pr, gp, st)
	core.Init()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		console.Reader(core)
		close(done)
	}()

	select {
	case <-sigChan:
		Logger.Info("got quit signal")
	case <-done:
		Logger.Info("console exited")
	}

	Logger.Info("shutting down stepper core")
	core.Shutdown()
}

func maxRPMOrDefault(configured float64) float64 {
	if configured <= 0 {
		return 24000
	}
	return configured
}
