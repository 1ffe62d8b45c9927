package core

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	flagStrict           = "--strict"
	flagExpectReturnCode = "--expect-return-code"
)

// CommandSpec is the parsed form of a directive's payload.
type CommandSpec struct {
	// ExpectedExitCode is nil if any exit status is acceptable.
	ExpectedExitCode *int
	// Command is the literal text handed to the shell.
	Command string
}

// ParseCommand splits the leading cmdrun flag (if any) off of a directive
// payload.
//
// Recognized forms are:
//
//	--strict CMD                    CMD must exit 0
//	--expect-return-code N CMD      CMD must exit N
//	-N CMD                          CMD must exit N
//	CMD                             any exit status is accepted
//
// Failures are returned as *DirectiveError so they can be rendered into the
// document instead of aborting it.
func ParseCommand(payload string) (CommandSpec, error) {
	payload = strings.TrimSpace(payload)
	fields := strings.Fields(payload)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "-") {
		return CommandSpec{Command: payload}, nil
	}

	flag := fields[0]
	if strings.HasPrefix(flag, "--") {
		switch flag {
		case flagStrict:
			return expectCode(0, fields[1:]), nil

		case flagExpectReturnCode:
			if len(fields) < 2 {
				break
			}
			code, err := parseExitCode(fields[1])
			if err != nil {
				break
			}
			return expectCode(code, fields[2:]), nil

		default:
			return CommandSpec{}, &DirectiveError{
				Reason:  fmt.Sprintf("Unrecognized cmdrun flag %s", flag),
				Payload: payload,
			}
		}

		return CommandSpec{}, &DirectiveError{
			Reason:  fmt.Sprintf("No return code after '%s'", flagExpectReturnCode),
			Payload: payload,
		}
	}

	// Short form, the code is everything after the last dash.
	code, err := parseExitCode(flag[strings.LastIndex(flag, "-")+1:])
	if err != nil {
		return CommandSpec{}, &DirectiveError{
			Reason:  fmt.Sprintf("Unable to interpret short-form exit code %s as a number", flag),
			Payload: payload,
		}
	}
	return expectCode(code, fields[1:]), nil
}

// expectCode rejoins the remaining tokens with single spaces; interior
// whitespace runs in the command are intentionally not preserved.
func expectCode(code int, rest []string) CommandSpec {
	return CommandSpec{
		ExpectedExitCode: &code,
		Command:          strings.Join(rest, " "),
	}
}

func parseExitCode(s string) (int, error) {
	code, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return int(code), nil
}
