package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

// MainLoop feeds console lines to exec until input ends.
// Terminal gets interactive prompt with completion, pipe is read line by line.
func MainLoop(tag string, in *os.File, exec func(line string), complete func(d prompt.Document) []prompt.Suggest) error {
	if isatty.IsTerminal(in.Fd()) {
		prompt.New(exec, complete, prompt.OptionPrefix(tag+"> "), prompt.OptionTitle(tag)).Run()
		return nil
	}
	return ScanLines(in, exec)
}

// ScanLines calls exec for every non-empty trimmed line.
func ScanLines(r io.Reader, exec func(line string)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		exec(line)
	}
	return scanner.Err()
}

// Complete suggests commands matching the word before cursor.
func Complete(commands []prompt.Suggest) func(d prompt.Document) []prompt.Suggest {
	return func(d prompt.Document) []prompt.Suggest {
		if strings.Contains(d.TextBeforeCursor(), " ") {
			return nil
		}
		return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
	}
}
