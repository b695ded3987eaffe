package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// RunLineChat reads one question per line from in and writes each reply to
// out. It returns at end of input, on a quit command, or when ctx is done.
func RunLineChat(ctx context.Context, in io.Reader, out io.Writer, ask AskFunc) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if isQuit(question) {
			return nil
		}

		reply, err := ask(ctx, question)
		if err != nil {
			_, _ = fmt.Fprintf(out, "ERROR: %v\n\n", err)
			continue
		}
		_, _ = fmt.Fprintf(out, "%s\n\n", strings.TrimRight(reply, "\n"))
	}
}
