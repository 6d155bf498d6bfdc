package debugger

import (
	"fmt"
	"io"
	"strings"
)

// line discipline controls: CTRL-A moves to the start of the line,
// CTRL-K kills to the end. Together they discard whatever partial
// input is sitting at the prompt before the injected command.
const clearLine = "\x01\x0b"

// Exec injects cmd into the host's prompt by writing it to the
// pseudo-terminal master, as if the user had typed it. The prompt's
// own echo and the command's output then flow back through the relay
// like any other terminal traffic.
func Exec(master io.Writer, cmd string) error {
	if strings.ContainsAny(cmd, "\r\n") {
		return fmt.Errorf("refusing to inject multi-line command %q", cmd)
	}
	_, err := io.WriteString(master, clearLine+cmd+"\n")
	if err != nil {
		return fmt.Errorf("inject command: %w", err)
	}
	return nil
}
