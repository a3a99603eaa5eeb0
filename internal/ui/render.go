package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/wsrelay/internal/relay"
)

// Param is one key/value line in a header or result box.
type Param struct {
	Key   string
	Value string
}

// RenderHeader renders a banner box with a title and parameters
func RenderHeader(title string, params []Param, width int) string {
	width = clampWidth(width)

	titleLine := HeaderTitleStyle.Render(strings.ToUpper(title))
	if len(params) == 0 {
		return HeaderBorderStyle(width).Render(titleLine)
	}

	var paramLines []string
	for _, p := range params {
		keyStyled := HeaderParamKeyStyle.Render(p.Key + ":")
		valueStyled := HeaderParamValueStyle.Render(p.Value)
		paramLines = append(paramLines, keyStyled+" "+valueStyled)
	}

	dividerWidth := width - 6 // Account for border and padding
	if dividerWidth < 10 {
		dividerWidth = 10
	}
	divider := RenderHorizontalDivider(dividerWidth, "─")

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, divider, strings.Join(paramLines, "\n"))
	return HeaderBorderStyle(width).Render(content)
}

// RenderMessageLine styles one relay broadcast line, showing the time of day
// as the relay wrote it. Lines that are not in the relay format are shown
// as-is.
func RenderMessageLine(line string) string {
	msg, err := relay.ParseMessage(line)
	if err != nil {
		return RawLineStyle.Render(line)
	}
	return TimestampStyle.Render(msg.Time.Format("15:04:05")) + " " +
		SenderStyle(msg.Sender).Render(shortID(msg.Sender)) + " " +
		MessageTextStyle.Render(msg.Text)
}

// shortID trims a UUID connection ID to its first group
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// RenderSuccessBox renders a success result box
func RenderSuccessBox(title string, details []Param, width int) string {
	width = clampWidth(width)

	lines := []string{
		"",
		SuccessTitleStyle.Render("   " + SuccessMarker + "  " + title),
		"",
	}
	for _, d := range details {
		lines = append(lines, ResultKeyStyle.Render("   "+d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	lines = append(lines, "")

	return SuccessBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RenderErrorBox renders an error result box
func RenderErrorBox(title string, err error, width int) string {
	width = clampWidth(width)

	lines := []string{
		"",
		ErrorTitleStyle.Render("   " + FailureMarker + "  " + title),
		"",
	}
	if err != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+err.Error()), "")
	}

	return ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// Printer writes rendered components to a writer.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintHeader prints a banner box
func (p *Printer) PrintHeader(title string, params []Param) {
	p.Println(RenderHeader(title, params, p.width))
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details []Param) {
	p.Println(RenderSuccessBox(title, details, p.width))
}

// PrintError prints an error result box
func (p *Printer) PrintError(title string, err error) {
	p.Println(RenderErrorBox(title, err, p.width))
}
