/*
 * stepcore - Operator console command table.
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

// Package console is the interactive operator shell: an abbreviation-matched
// command table dispatched synchronously against a *stepper.Core, and a
// liner-backed reader driving it from stdin. Grounded on
// command/parser+command/reader's abbreviation-match/line-editing split, cut
// down to stepcore's much smaller command surface (no device attach/detach).
package console

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/hrcornwell/stepcore/stepconf"
	"github.com/hrcornwell/stepcore/stepper"
)

type cmd struct {
	name    string
	min     int
	process func(*cmdLine, *stepper.Core) (bool, error)
}

type cmdLine struct {
	line string
	pos  int
}

var cmdList = []cmd{
	{name: "status", min: 2, process: status},
	{name: "hold", min: 2, process: hold},
	{name: "resume", min: 2, process: resume},
	{name: "reset", min: 3, process: reset},
	{name: "jog", min: 3, process: jog},
	{name: "home", min: 2, process: home},
	{name: "quit", min: 1, process: quit},
}

// ProcessCommand parses and dispatches one command line against core. The
// bool result is true when the console should exit.
func ProcessCommand(commandLine string, core *stepper.Core) (bool, error) {
	line := cmdLine{line: commandLine}
	name := line.getWord()

	match := matchList(name)
	if len(match) == 0 {
		return false, errors.New("command not found: " + name)
	}
	if len(match) > 1 {
		return false, errors.New("ambiguous command: " + name)
	}
	return match[0].process(&line, core)
}

// CompleteCmd returns the set of command names that match the partial
// command typed so far, for use as a liner completer.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord()
	if !line.isEOL() {
		return nil
	}
	matches := []string{}
	for _, m := range cmdList {
		if matchCommand(m, name) {
			matches = append(matches, m.name)
		}
	}
	return matches
}

func matchCommand(m cmd, command string) bool {
	if len(command) > len(m.name) {
		return false
	}
	for i := 0; i < len(command); i++ {
		if m.name[i] != command[i] {
			return false
		}
	}
	return len(command) >= m.min
}

func matchList(command string) []cmd {
	if command == "" {
		return nil
	}
	var match []cmd
	for _, m := range cmdList {
		if matchCommand(m, command) {
			match = append(match, m)
		}
	}
	return match
}

func (l *cmdLine) skipSpace() {
	for l.pos < len(l.line) && unicode.IsSpace(rune(l.line[l.pos])) {
		l.pos++
	}
}

func (l *cmdLine) isEOL() bool {
	return l.pos >= len(l.line) || l.line[l.pos] == '#'
}

// getWord returns the next whitespace-delimited, lower-cased token.
func (l *cmdLine) getWord() string {
	l.skipSpace()
	start := l.pos
	for !l.isEOL() && !unicode.IsSpace(rune(l.line[l.pos])) {
		l.pos++
	}
	return strings.ToLower(l.line[start:l.pos])
}

func status(_ *cmdLine, core *stepper.Core) (bool, error) {
	flags := core.ControlFlagsSnapshot()
	pos := core.Position()
	fmt.Printf("pos=%v rate=%.1f mm/min flags=%s\n", pos, core.GetRealtimeRate(), flagString(flags))
	return false, nil
}

func flagString(flags uint32) string {
	names := []struct {
		bit  uint32
		name string
	}{
		{stepper.FlagFeedHold, "FEED_HOLD"},
		{stepper.FlagCycleStop, "CYCLE_STOP"},
		{stepper.FlagHomingLock, "HOMING_LOCK"},
		{stepper.FlagProbeTripped, "PROBE_TRIPPED"},
		{stepper.FlagPlanUpdate, "PLAN_UPDATE"},
		{stepper.FlagParking, "PARKING"},
		{stepper.FlagEndMotion, "END_MOTION"},
	}
	set := []string{}
	for _, n := range names {
		if flags&n.bit != 0 {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return "IDLE"
	}
	return strings.Join(set, "|")
}

// hold requests a feed hold: already-prepared segments keep running, but
// the preparer recomputes the in-progress block's profile to decelerate
// to a stop instead of discarding outright (stepper.Core.PrepareBuffer /
// prep.Preparer.syncHold). The engine itself is left running so the ramp
// can actually execute.
func hold(_ *cmdLine, core *stepper.Core) (bool, error) {
	slog.Info("console: feed hold")
	core.SetControlFlag(stepper.FlagFeedHold)
	core.PrepareBuffer()
	return false, nil
}

func resume(_ *cmdLine, core *stepper.Core) (bool, error) {
	slog.Info("console: resume")
	core.ClearControlFlag(stepper.FlagFeedHold)
	core.ClearControlFlag(stepper.FlagCycleStop)
	core.ClearEndMotion()
	core.WakeUp()
	return false, nil
}

func reset(_ *cmdLine, core *stepper.Core) (bool, error) {
	slog.Info("console: reset")
	core.Reset()
	return false, nil
}

// jog x=<mm> y=<mm> z=<mm> [rate=<mm/min>]
func jog(line *cmdLine, core *stepper.Core) (bool, error) {
	var distance [stepconf.NAxis]float64
	rate := 1000.0
	for {
		line.skipSpace()
		if line.isEOL() {
			break
		}
		tok := line.getWord()
		key, val, ok := strings.Cut(tok, "=")
		if !ok {
			return false, errors.New("jog: expected name=value, got " + tok)
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return false, errors.New("jog: not a number: " + val)
		}
		switch key {
		case "x":
			distance[0] = f
		case "y":
			distance[1] = f
		case "z":
			distance[2] = f
		case "rate":
			rate = f
		default:
			return false, errors.New("jog: unknown axis: " + key)
		}
	}
	slog.Info("console: jog", "rate", rate)
	core.Jog(distance, rate)
	return false, nil
}

// home [rate=<mm/min>]
func home(line *cmdLine, core *stepper.Core) (bool, error) {
	rate, err := homeRate(line)
	if err != nil {
		return false, err
	}
	slog.Info("console: home", "rate", rate)
	core.Home(rate)
	return false, nil
}

func homeRate(line *cmdLine) (float64, error) {
	line.skipSpace()
	if line.isEOL() {
		return 500.0, nil
	}
	tok := line.getWord()
	key, val, ok := strings.Cut(tok, "=")
	if !ok || key != "rate" {
		return 0, errors.New("home: expected rate=value, got " + tok)
	}
	return strconv.ParseFloat(val, 64)
}

func quit(_ *cmdLine, _ *stepper.Core) (bool, error) {
	slog.Info("console: quit")
	return true, nil
}
