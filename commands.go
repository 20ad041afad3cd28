package gosampler

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/GeoffreyPlitt/debuggo"
)

var commandsDebug = debuggo.Debug("gosampler:commands")

// ErrUnknownCommand is returned for lines that are not commands at all.
// Callers ignore it.
var ErrUnknownCommand = errors.New("unknown command")

// CommandKind identifies a control-surface command
type CommandKind int

const (
	CmdPlay CommandKind = iota
	CmdStop
	CmdVolume
	CmdInstrument
	CmdLoad
	CmdStatus
	CmdHelp
	CmdStream
	CmdStreamStop
	CmdStreamVolume
	CmdLimiter
	CmdReverb
	CmdPanic
)

var commandNames = map[CommandKind]string{
	CmdPlay:         "play",
	CmdStop:         "stop",
	CmdVolume:       "volume",
	CmdInstrument:   "instrument",
	CmdLoad:         "load",
	CmdStatus:       "status",
	CmdHelp:         "help",
	CmdStream:       "stream",
	CmdStreamStop:   "stream stop",
	CmdStreamVolume: "streamvol",
	CmdLimiter:      "limiter",
	CmdReverb:       "reverb",
	CmdPanic:        "panic",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// Command is one parsed control line
type Command struct {
	Kind     CommandKind
	Note     int
	Velocity int
	Index    int
	Value    float64
	Name     string
	Loop     bool
	Limiter  LimiterMode
}

// HelpText lists the commands accepted by ParseCommand
const HelpText = `Commands:
  play <note> [velocity]   start a note, by number or name (velocity defaults to 127)
  stop <note>              release a note
  volume <0-2>             set sample volume
  instrument <index>       select an instrument
  load piano|drums|<file>  load a preset or an .sfz file from the media
  stream <file.mp3> [loop] stream an MP3 file from the media
  stream stop              stop streaming
  streamvol <0-1>          set stream volume
  limiter hard|soft        select the output limiter
  reverb <0-1>             set the reverb send
  panic                    release every voice
  status                   show engine state
  help                     show this text
`

// ParseCommand parses one line. Blank lines and unrecognized words return
// ErrUnknownCommand; a known command with bad arguments returns a
// descriptive error.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(line)))
	if len(fields) == 0 {
		return Command{}, ErrUnknownCommand
	}
	verb, args := fields[0], fields[1:]

	switch verb {
	case "play":
		if len(args) < 1 || len(args) > 2 {
			return Command{}, errors.New("usage: play <note> [velocity]")
		}
		note, err := parseNoteArg(args[0])
		if err != nil {
			return Command{}, err
		}
		velocity := 127
		if len(args) == 2 {
			if velocity, err = parseMIDIValue("velocity", args[1]); err != nil {
				return Command{}, err
			}
		}
		return Command{Kind: CmdPlay, Note: note, Velocity: velocity}, nil

	case "stop":
		if len(args) != 1 {
			return Command{}, errors.New("usage: stop <note>")
		}
		note, err := parseNoteArg(args[0])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CmdStop, Note: note}, nil

	case "volume", "streamvol", "reverb":
		if len(args) != 1 {
			return Command{}, fmt.Errorf("usage: %s <level>", verb)
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Command{}, fmt.Errorf("invalid %s %q", verb, args[0])
		}
		kind := map[string]CommandKind{"volume": CmdVolume, "streamvol": CmdStreamVolume, "reverb": CmdReverb}[verb]
		return Command{Kind: kind, Value: v}, nil

	case "instrument":
		if len(args) != 1 {
			return Command{}, errors.New("usage: instrument <index>")
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return Command{}, fmt.Errorf("invalid instrument index %q", args[0])
		}
		return Command{Kind: CmdInstrument, Index: index}, nil

	case "load":
		if len(args) == 0 {
			return Command{}, errors.New("usage: load piano|drums|<file.sfz>")
		}
		return Command{Kind: CmdLoad, Name: rawArg(line, 1)}, nil

	case "stream":
		if len(args) == 0 {
			return Command{}, errors.New("usage: stream <file.mp3> [loop]|stop")
		}
		if len(args) == 1 && args[0] == "stop" {
			return Command{Kind: CmdStreamStop}, nil
		}
		name := rawArg(line, 1)
		loop := len(args) > 1 && args[len(args)-1] == "loop"
		if loop {
			name = strings.TrimSpace(name[:len(name)-len("loop")])
		}
		return Command{Kind: CmdStream, Name: name, Loop: loop}, nil

	case "limiter":
		if len(args) != 1 {
			return Command{}, errors.New("usage: limiter hard|soft")
		}
		mode, err := ParseLimiterMode(args[0])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CmdLimiter, Limiter: mode}, nil

	case "status", "help", "panic":
		kind := map[string]CommandKind{"status": CmdStatus, "help": CmdHelp, "panic": CmdPanic}[verb]
		return Command{Kind: kind}, nil
	}

	commandsDebug("Ignoring unknown command: %q", line)
	return Command{}, ErrUnknownCommand
}

// rawArg returns the rest of line after skip words, with its case kept
func rawArg(line string, skip int) string {
	rest := strings.TrimSpace(line)
	for i := 0; i < skip; i++ {
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = strings.TrimSpace(rest[idx:])
	}
	return rest
}

// parseNoteArg accepts a MIDI number or a note name such as c4
func parseNoteArg(s string) (int, error) {
	n, err := ParseNote(s)
	if err != nil {
		return 0, fmt.Errorf("invalid note %q (expected 0-127 or a name like c4)", s)
	}
	return n, nil
}

func parseMIDIValue(what, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 127 {
		return 0, fmt.Errorf("invalid %s %q (expected 0-127)", what, s)
	}
	return n, nil
}
