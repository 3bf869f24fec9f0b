/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/ponyo877/relaychat/server/domain"
)

// render turns a server notification into a line for humans. It reports
// false for notifications that are bookkeeping only.
func render(line string) (string, bool) {
	args := domain.Tokenize(line)
	if len(args) == 0 {
		return "", false
	}
	at := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}
	switch args[0] {
	case domain.KeywordChat:
		return fmt.Sprintf("<%s> %s", at(2), at(3)), true
	case domain.KeywordJoined:
		return fmt.Sprintf("* %s joined", at(2)), true
	case domain.KeywordLeft:
		return fmt.Sprintf("* %s left", at(2)), true
	case domain.KeywordSetName:
		return fmt.Sprintf("* %s is now known as %s", at(2), at(3)), true
	case domain.KeywordMigrated:
		return fmt.Sprintf("* %s is now %s", at(2), at(4)), true
	case domain.KeywordTopic:
		if at(1) == "" {
			return "* the topic was cleared", true
		}
		return fmt.Sprintf("* topic: %s", at(1)), true
	case domain.KeywordRoom:
		if at(1) == "" {
			return "* you are not in a room", true
		}
		return fmt.Sprintf("* you are in %s", at(1)), true
	case domain.KeywordSuccess:
		return at(1), true
	case domain.KeywordWarning:
		return "warning: " + at(1), true
	case domain.KeywordError:
		return "error: " + at(1), true
	case domain.KeywordQR:
		return "qr: " + at(1), true
	case domain.KeywordID, domain.KeywordName, domain.KeywordToken, domain.KeywordPong:
		return "", false
	default:
		return line, true
	}
}

// compose turns what a user typed into a command line. A leading slash
// sends the rest verbatim, anything else is a chat message.
func compose(input string) string {
	if len(input) > 1 && input[0] == '/' {
		return input[1:]
	}
	return domain.Merge("SEND", input)
}
