// Package ui provides the terminal interface for the wsrelay CLI.
//
// It uses Bubble Tea, Bubbles and Lipgloss. Two chat front ends share one
// Conn interface:
//
//   - ChatModel: an interactive screen with a scrolling message log and a
//     prompt. Enter sends, PgUp/PgDn scroll, Esc or Ctrl+C quits.
//   - RunPlain: line mode for pipes and scripts. Each input line is sent and
//     each relay message is printed unstyled.
//
// The Printer renders the boxes used by the discover and config commands.
//
// Example:
//
//	c, err := client.Dial(ctx, url)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	if ui.IsTerminal(os.Stdin) {
//	    return ui.RunChat(c, url)
//	}
//	return ui.RunPlain(ctx, c, os.Stdin, os.Stdout)
//
// # Logging Integration
//
// This package expects logging to be controlled via the WSRELAY_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent so it
// does not draw over the chat screen.
package ui
