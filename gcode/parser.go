package gcode

import (
	"strconv"
	"strings"
	"time"
)

// Parser converts input lines into Commands. The only state it keeps is
// the unit scale selected by G20/G21, so one Parser must be used per
// input stream.
type Parser struct {
	scale float64 // millimeters per input unit
}

// NewParser returns a Parser in millimeter mode (G21).
func NewParser() *Parser {
	return &Parser{scale: 1}
}

// word is one letter/value pair scanned from a line. Bare words (a letter
// with no value, as in "G28 X") are legal only where the builder accepts
// them.
type word struct {
	letter byte
	value  float64
	frac   bool // the token carried a fractional part
	bare   bool // no numeric value followed the letter
	token  string
}

// intValue returns the word's value as an integer, rejecting fractional
// input for fields that must be whole numbers.
func (w word) intValue() (int, bool) {
	if w.frac {
		return 0, false
	}
	return int(w.value), true
}

// ParseLine parses a single line of G-code. Blank and comment-only lines
// return a NoOp command. Errors are *ParseError and recoverable: the
// caller skips the line and continues.
func (p *Parser) ParseLine(line string) (*Command, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed[0] == ';' || trimmed[0] == '(' {
		return &Command{Kind: KindNoOp}, nil
	}

	// M23 carries a file name, not letter/value words.
	if name, ok := sdSelectName(trimmed); ok {
		if name == "" {
			return nil, &ParseError{Line: line, Token: "M23", Reason: "missing file name"}
		}
		return &Command{Kind: KindSDSelect, Filename: name}, nil
	}

	words, err := scanWords(line, trimmed)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return &Command{Kind: KindNoOp}, nil
	}

	head := words[0]
	if head.bare {
		return nil, &ParseError{Line: line, Token: head.token, Reason: "missing command number"}
	}
	num, ok := head.intValue()
	if !ok {
		return nil, &ParseError{Line: line, Token: head.token, Reason: "fractional command number"}
	}

	// Only home commands take bare axis words.
	if head.letter != 'G' || num != 28 {
		for _, w := range words[1:] {
			if w.bare {
				return nil, &ParseError{Line: line, Token: w.token, Reason: "missing numeric value"}
			}
		}
	}

	switch head.letter {
	case 'G':
		return p.buildG(line, num, words[1:])
	case 'M':
		return p.buildM(line, num, words[1:])
	}
	return nil, &ParseError{Line: line, Token: head.token, Reason: "unknown command letter"}
}

// sdSelectName reports whether the line is an M23 and extracts its file
// name argument.
func sdSelectName(trimmed string) (string, bool) {
	if len(trimmed) < 3 {
		return "", false
	}
	if !strings.EqualFold(trimmed[:3], "M23") {
		return "", false
	}
	if len(trimmed) > 3 && trimmed[3] != ' ' && trimmed[3] != '\t' {
		return "", false
	}
	rest := strings.TrimSpace(trimmed[3:])
	if i := strings.IndexByte(rest, ';'); i >= 0 {
		rest = strings.TrimSpace(rest[:i])
	}
	return rest, true
}

// scanWords splits a line into letter/value words, stopping at a comment.
func scanWords(line, trimmed string) ([]word, error) {
	var words []word
	i := 0
	for i < len(trimmed) {
		c := trimmed[i]
		if c == ' ' || c == '\t' {
			i++
			continue
		}
		if c == ';' || c == '(' {
			break
		}
		if !isLetter(c) {
			return nil, &ParseError{Line: line, Token: string(c), Reason: "unexpected character"}
		}
		letter := toUpper(c)
		i++
		start := i
		if i < len(trimmed) && (trimmed[i] == '+' || trimmed[i] == '-') {
			i++
		}
		for i < len(trimmed) && (isDigit(trimmed[i]) || trimmed[i] == '.') {
			i++
		}
		token := trimmed[start:i]
		if token == "" || token == "+" || token == "-" {
			words = append(words, word{letter: letter, bare: true, token: string(letter) + token})
			continue
		}
		value, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, &ParseError{Line: line, Token: string(letter) + token, Reason: "malformed numeric value"}
		}
		words = append(words, word{
			letter: letter,
			value:  value,
			frac:   strings.IndexByte(token, '.') >= 0,
			token:  string(letter) + token,
		})
	}
	return words, nil
}

func (p *Parser) buildG(line string, num int, params []word) (*Command, error) {
	switch num {
	case 0, 1:
		cmd := &Command{Kind: KindLinearMove}
		p.assignAxes(cmd, params)
		if !cmd.X.Set && !cmd.Y.Set && !cmd.Z.Set && !cmd.E.Set && !cmd.F.Set {
			return nil, &ParseError{Line: line, Reason: "move without axis or feedrate word"}
		}
		return cmd, nil

	case 2, 3:
		cmd := &Command{Kind: KindArcMove, Clockwise: num == 2}
		p.assignAxes(cmd, params)
		for _, w := range params {
			switch w.letter {
			case 'I':
				cmd.I = opt(w.value * p.scale)
			case 'J':
				cmd.J = opt(w.value * p.scale)
			case 'R':
				cmd.R = opt(w.value * p.scale)
			}
		}
		if !cmd.X.Set && !cmd.Y.Set {
			return nil, &ParseError{Line: line, Reason: "arc without endpoint"}
		}
		if !cmd.I.Set && !cmd.J.Set && !cmd.R.Set {
			return nil, &ParseError{Line: line, Reason: "arc without center offset or radius"}
		}
		return cmd, nil

	case 4:
		for _, w := range params {
			switch w.letter {
			case 'P':
				if w.value < 0 {
					return nil, &ParseError{Line: line, Token: w.token, Reason: "negative dwell time"}
				}
				return &Command{Kind: KindDwell, Duration: time.Duration(w.value * float64(time.Millisecond))}, nil
			case 'S':
				if w.value < 0 {
					return nil, &ParseError{Line: line, Token: w.token, Reason: "negative dwell time"}
				}
				return &Command{Kind: KindDwell, Duration: time.Duration(w.value * float64(time.Second))}, nil
			}
		}
		return nil, &ParseError{Line: line, Reason: "dwell without P or S duration"}

	case 10:
		return &Command{Kind: KindRetract}, nil
	case 11:
		return &Command{Kind: KindRecover}, nil

	case 20:
		p.scale = 25.4
		return &Command{Kind: KindSetUnits}, nil
	case 21:
		p.scale = 1
		return &Command{Kind: KindSetUnits}, nil

	case 28:
		cmd := &Command{Kind: KindHome}
		for _, w := range params {
			switch w.letter {
			case 'X':
				cmd.X.Set = true
			case 'Y':
				cmd.Y.Set = true
			case 'Z':
				cmd.Z.Set = true
			}
		}
		return cmd, nil

	case 90, 91:
		return &Command{Kind: KindSetPositioningMode, Absolute: num == 90}, nil

	case 92:
		cmd := &Command{Kind: KindSetPosition}
		p.assignAxes(cmd, params)
		if !cmd.X.Set && !cmd.Y.Set && !cmd.Z.Set && !cmd.E.Set {
			return nil, &ParseError{Line: line, Reason: "set-position without axis word"}
		}
		return cmd, nil
	}
	return nil, &ParseError{Line: line, Token: "G" + strconv.Itoa(num), Reason: "unsupported G command"}
}

func (p *Parser) buildM(line string, num int, params []word) (*Command, error) {
	switch num {
	case 82, 83:
		return &Command{Kind: KindSetExtruderMode, Absolute: num == 82}, nil

	case 104, 140, 109, 190:
		cmd := &Command{Channel: ChannelHotend}
		if num == 140 || num == 190 {
			cmd.Channel = ChannelHeatbed
		}
		cmd.Kind = KindSetTemperature
		if num == 109 || num == 190 {
			cmd.Kind = KindWaitTemperature
		}
		for _, w := range params {
			if w.letter == 'S' {
				cmd.S = opt(w.value)
			}
		}
		if !cmd.S.Set {
			return nil, &ParseError{Line: line, Reason: "temperature command without S target"}
		}
		return cmd, nil

	case 105:
		return &Command{Kind: KindReportTemperatures}, nil

	case 106:
		cmd := &Command{Kind: KindSetFanSpeed, S: opt(255)}
		for _, w := range params {
			switch w.letter {
			case 'S':
				cmd.S = opt(w.value)
			case 'P':
				idx, ok := w.intValue()
				if !ok || idx < 0 {
					return nil, &ParseError{Line: line, Token: w.token, Reason: "fan index must be a non-negative integer"}
				}
				cmd.P = opt(float64(idx))
			}
		}
		return cmd, nil

	case 107:
		return &Command{Kind: KindSetFanSpeed, S: opt(0)}, nil

	case 112:
		return &Command{Kind: KindEmergencyStop}, nil

	case 999:
		return &Command{Kind: KindRearm}, nil

	case 114:
		return &Command{Kind: KindReportPosition}, nil

	case 155:
		for _, w := range params {
			if w.letter == 'S' {
				secs, ok := w.intValue()
				if !ok || secs < 0 {
					return nil, &ParseError{Line: line, Token: w.token, Reason: "auto-report interval must be a non-negative integer"}
				}
				return &Command{Kind: KindAutoReport, S: opt(float64(secs))}, nil
			}
		}
		return nil, &ParseError{Line: line, Reason: "auto-report without S interval"}

	case 207:
		cmd := &Command{Kind: KindSetRetractParams}
		for _, w := range params {
			switch w.letter {
			case 'S':
				cmd.S = opt(w.value * p.scale)
			case 'F':
				cmd.F = opt(w.value * p.scale)
			case 'Z':
				cmd.ZLift = opt(w.value * p.scale)
			}
		}
		return cmd, nil

	case 208:
		cmd := &Command{Kind: KindSetRecoverParams}
		for _, w := range params {
			switch w.letter {
			case 'S':
				cmd.S = opt(w.value * p.scale)
			case 'F':
				cmd.F = opt(w.value * p.scale)
			}
		}
		return cmd, nil

	case 220:
		for _, w := range params {
			if w.letter == 'S' {
				if w.value <= 0 {
					return nil, &ParseError{Line: line, Token: w.token, Reason: "feedrate multiplier must be positive"}
				}
				return &Command{Kind: KindSetFeedrateMultiplier, S: opt(w.value)}, nil
			}
		}
		return nil, &ParseError{Line: line, Reason: "feedrate multiplier without S percent"}

	case 20:
		return &Command{Kind: KindSDList}, nil
	case 21:
		return &Command{Kind: KindSDMount}, nil
	case 22:
		return &Command{Kind: KindSDRelease}, nil
	case 24:
		return &Command{Kind: KindSDStart}, nil
	case 25:
		return &Command{Kind: KindSDPause}, nil
	case 31:
		return &Command{Kind: KindSDPrintTime}, nil
	}
	return nil, &ParseError{Line: line, Token: "M" + strconv.Itoa(num), Reason: "unsupported M command"}
}

// assignAxes fills the coordinate and feedrate words common to motion
// commands, applying the current unit scale.
func (p *Parser) assignAxes(cmd *Command, params []word) {
	for _, w := range params {
		switch w.letter {
		case 'X':
			cmd.X = opt(w.value * p.scale)
		case 'Y':
			cmd.Y = opt(w.value * p.scale)
		case 'Z':
			cmd.Z = opt(w.value * p.scale)
		case 'E':
			cmd.E = opt(w.value * p.scale)
		case 'F':
			cmd.F = opt(w.value * p.scale)
		}
	}
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
