package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/pubsub/internal/errors"
	"github.com/Iron-Ham/pubsub/internal/script"
)

// printer writes run results in the configured format.
type printer struct {
	w      io.Writer
	format string
	p      palette
	width  int
}

func newPrinter(w io.Writer, format, colorMode string) *printer {
	return &printer{
		w:      w,
		format: format,
		p:      newPalette(w, colorEnabled(w, colorMode)),
		width:  terminalWidth(w, 100),
	}
}

func (pr *printer) result(res *script.Result) error {
	if pr.format == "json" {
		enc := json.NewEncoder(pr.w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	p := pr.p
	title := p.header.Render(res.Script)
	if res.Path != "" {
		title += " " + p.dim.Render(res.Path)
	}
	fmt.Fprintln(pr.w, title)

	byStep := make(map[int][]script.Entry)
	for _, e := range res.Transcript {
		byStep[e.Step] = append(byStep[e.Step], e)
	}

	for _, o := range res.Outcomes {
		line := fmt.Sprintf("  %3d  %-11s", o.Step, o.Op)
		if o.Key != "" {
			line += " " + p.key.Render(o.Key)
		}
		if o.Ref != nil {
			line += p.dim.Render(fmt.Sprintf(" ref=%d", *o.Ref))
		}
		if o.Code != "none" {
			style := p.fail
			if errors.IsLookupError(o.Err) {
				style = p.warn
			}
			line += " " + style.Render(o.Code)
		}
		if o.Met {
			line += " " + p.ok.Render("ok")
		} else {
			line += " " + p.fail.Render("FAIL") + " " + o.Reason
		}
		fmt.Fprintln(pr.w, line)

		for _, e := range byStep[o.Step] {
			call := fmt.Sprintf("         -> %s [ref %d]", e.Handler, e.Ref)
			if e.Data != nil {
				call += " " + pr.truncate(formatData(e.Data), pr.width-ansi.StringWidth(call)-1)
			}
			fmt.Fprintln(pr.w, p.dim.Render(call))
		}
	}

	summary := fmt.Sprintf("%d steps, %d invocations, next ref %d", len(res.Outcomes), len(res.Transcript), res.NextRef)
	if failed := res.Failed(); failed > 0 {
		summary += ", " + p.fail.Render(fmt.Sprintf("%d failed", failed))
	} else {
		summary += ", " + p.ok.Render("all expectations met")
	}
	fmt.Fprintln(pr.w, summary)
	fmt.Fprintln(pr.w)
	return nil
}

func (pr *printer) truncate(s string, width int) string {
	if width < 8 {
		width = 8
	}
	return ansi.Truncate(s, width, "...")
}

// formatData renders published data compactly.
func formatData(data any) string {
	if b, err := json.Marshal(data); err == nil {
		return string(b)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", data))
}
