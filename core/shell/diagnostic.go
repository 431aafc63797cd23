package shell

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/source"
	"github.com/josephlewis42/pipeshell/core/span"
)

const (
	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

// Diagnostics renders errors with the source line they point at.
type Diagnostics struct {
	sources *source.Registry

	errColor  *color.Color
	gutter    *color.Color
	underline *color.Color
	helpColor *color.Color
}

// NewDiagnostics creates a renderer. mode is one of ColorAlways, ColorAuto
// or ColorNever; auto follows whether stdout is a terminal.
func NewDiagnostics(sources *source.Registry, mode string) *Diagnostics {
	d := &Diagnostics{
		sources:   sources,
		errColor:  color.New(color.FgRed, color.Bold),
		gutter:    color.New(color.FgBlue, color.Bold),
		underline: color.New(color.FgYellow, color.Bold),
		helpColor: color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{d.errColor, d.gutter, d.underline, d.helpColor} {
		switch mode {
		case ColorAlways:
			c.EnableColor()
		case ColorNever:
			c.DisableColor()
		}
	}
	return d
}

// Format renders err. Errors without a resolvable span print as a single
// line.
//
//	Error: Command `foo` not found
//	  --> repl-1:1:1
//	   |
//	 1 | foo bar
//	   | ^^^ command not found
func (d *Diagnostics) Format(err error) string {
	se := shellerr.From(err)
	if se == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(d.errColor.Sprint("Error:"))
	fmt.Fprintf(&b, " %s\n", headline(se))

	if pos, ok := d.locate(se.Span); ok {
		lineNo := fmt.Sprint(pos.Line)
		pad := strings.Repeat(" ", len(lineNo))

		width := se.Span.Len()
		if rest := len(pos.LineText) - (pos.Column - 1); width > rest {
			width = rest
		}
		if width < 1 {
			width = 1
		}

		fmt.Fprintf(&b, "%s%s %s:%d:%d\n", pad, d.gutter.Sprint("-->"), pos.File.Name, pos.Line, pos.Column)
		fmt.Fprintf(&b, "%s %s\n", pad, d.gutter.Sprint("|"))
		fmt.Fprintf(&b, "%s %s %s\n", d.gutter.Sprint(lineNo), d.gutter.Sprint("|"), pos.LineText)
		fmt.Fprintf(&b, "%s %s %s%s %s\n", pad, d.gutter.Sprint("|"),
			strings.Repeat(" ", pos.Column-1), d.underline.Sprint(strings.Repeat("^", width)), se.Label)
	} else if se.Label != "" {
		fmt.Fprintf(&b, "  %s\n", se.Label)
	}

	if se.Help != "" {
		fmt.Fprintf(&b, "  %s %s\n", d.helpColor.Sprint("= help:"), se.Help)
	}
	return b.String()
}

func headline(se *shellerr.ShellError) string {
	if se.Msg == "" {
		return se.Kind.String()
	}
	return se.Msg
}

func (d *Diagnostics) locate(sp span.Span) (*source.Position, bool) {
	if d.sources == nil || sp.IsUnknown() || !sp.Valid() {
		return nil, false
	}
	pos, err := d.sources.Locate(sp)
	if err != nil {
		return nil, false
	}
	return pos, true
}
