// Package printer renders user-facing CLI output. Log output goes through
// zerolog; anything a person is meant to read goes through here.
package printer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

const (
	iconPass = "✔"
	iconWarn = "●"
	iconFail = "✘"
	iconInfo = "•"
)

// Printer writes styled lines to a single output stream.
type Printer struct {
	w io.Writer
}

// New creates a Printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

type ctxKey struct{}

// WithCtx stores the printer on the context.
func WithCtx(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx returns the printer stored on the context, or a stdout printer
// when none was attached.
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok && p != nil {
		return p
	}
	return New(os.Stdout)
}

// Printf writes a plain line.
func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Infof writes an informational line.
func (p *Printer) Infof(format string, args ...any) {
	p.line(infoStyle.Render(iconInfo), fmt.Sprintf(format, args...))
}

// Successf writes a success line.
func (p *Printer) Successf(format string, args ...any) {
	p.line(successStyle.Render(iconPass), fmt.Sprintf(format, args...))
}

// Success writes a success line followed by indented muted detail lines.
func (p *Printer) Success(title string, details ...string) {
	p.line(successStyle.Render(iconPass), title)
	for _, detail := range details {
		fmt.Fprintf(p.w, "  %s\n", mutedStyle.Render(detail))
	}
}

// Warnf writes a warning line.
func (p *Printer) Warnf(format string, args ...any) {
	p.line(warningStyle.Render(iconWarn), fmt.Sprintf(format, args...))
}

// Errorf writes an error line.
func (p *Printer) Errorf(format string, args ...any) {
	p.line(errorStyle.Render(iconFail), fmt.Sprintf(format, args...))
}

// Section writes a bold section header with a divider.
func (p *Printer) Section(name string) {
	fmt.Fprintln(p.w, boldStyle.Render(name))
	fmt.Fprintln(p.w, mutedStyle.Render(strings.Repeat("─", 40)))
}

// Header writes a bold line without a divider.
func (p *Printer) Header(name string) {
	fmt.Fprintln(p.w, boldStyle.Render(name))
}

// CheckItem writes an indented passing check line.
func (p *Printer) CheckItem(label, detail string) {
	p.item(successStyle.Render(iconPass), label, detail)
}

// WarnItem writes an indented warning check line.
func (p *Printer) WarnItem(label, detail string) {
	p.item(warningStyle.Render(iconWarn), label, detail)
}

// FailItem writes an indented failing check line.
func (p *Printer) FailItem(label, detail string) {
	p.item(errorStyle.Render(iconFail), label, detail)
}

// Summary formats pass/warn/fail counts on one styled line.
func (p *Printer) Summary(passed, warned, failed int) {
	fmt.Fprintf(p.w, "%s  %s  %s\n",
		successStyle.Render(fmt.Sprintf("%d passed", passed)),
		warningStyle.Render(fmt.Sprintf("%d warnings", warned)),
		errorStyle.Render(fmt.Sprintf("%d failed", failed)),
	)
}

func (p *Printer) line(icon, msg string) {
	fmt.Fprintf(p.w, "%s %s\n", icon, msg)
}

func (p *Printer) item(icon, label, detail string) {
	if detail != "" {
		detail = " " + mutedStyle.Render(detail)
	}
	fmt.Fprintf(p.w, "  %s %s%s\n", icon, label, detail)
}
