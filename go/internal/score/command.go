package score

import (
	"errors"
	"fmt"
)

// Command is a single scoring action. The string value is the wire token.
type Command string

const (
	CommandIncA  Command = "PLAYER_1_INC"
	CommandIncB  Command = "PLAYER_2_INC"
	CommandDecA  Command = "PLAYER_1_DEC"
	CommandDecB  Command = "PLAYER_2_DEC"
	CommandReset Command = "RESET_SCORES"
)

// ErrUnknownCommand is returned when a token is not part of the vocabulary
var ErrUnknownCommand = errors.New("unknown command")

// Commands lists the full vocabulary in a stable order
func Commands() []Command {
	return []Command{CommandIncA, CommandIncB, CommandDecA, CommandDecB, CommandReset}
}

// Valid reports whether c belongs to the vocabulary
func (c Command) Valid() bool {
	switch c {
	case CommandIncA, CommandIncB, CommandDecA, CommandDecB, CommandReset:
		return true
	default:
		return false
	}
}

func (c Command) String() string {
	return string(c)
}

// ParseCommand matches a token exactly against the vocabulary.
func ParseCommand(token string) (Command, error) {
	cmd := Command(token)
	if !cmd.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, token)
	}
	return cmd, nil
}
