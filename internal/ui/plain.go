package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// drainWait is how long line mode keeps printing after input ends, so the
// relay's copy of the last message is shown.
const drainWait = 500 * time.Millisecond

// RunPlain runs the chat in line mode: each line read from in is sent as a
// message and every relay message is written to out unstyled. It returns
// shortly after in is exhausted, or when the connection ends or ctx is
// cancelled.
func RunPlain(ctx context.Context, conn Conn, in io.Reader, out io.Writer) error {
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			if err := conn.Send(text); err != nil {
				readErr <- err
				return
			}
		}
		readErr <- scanner.Err()
	}()

	var drained <-chan time.Time
	for {
		select {
		case msg, ok := <-conn.Messages():
			if !ok {
				return conn.Err()
			}
			if _, err := fmt.Fprintln(out, msg); err != nil {
				return err
			}
		case err := <-readErr:
			if err != nil {
				return err
			}
			readErr = nil
			drained = time.After(drainWait)
		case <-drained:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
