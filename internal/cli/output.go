package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"storefront-sync/internal/model"
)

// ANSI color codes
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
	ansiBold   = "\033[1m"
)

// maxLines truncates pretty-printed bodies unless --verbose is set.
const maxLines = 30

type printer struct {
	w       io.Writer
	json    bool
	quiet   bool
	verbose bool
	color   bool
}

func newPrinter(w io.Writer, opts *RootOptions) *printer {
	return &printer{
		w:       w,
		json:    opts.Format == "json",
		quiet:   opts.Quiet,
		verbose: opts.Verbose,
		color:   !opts.NoColor,
	}
}

func (p *printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + ansiReset
}

// request and response trace the HTTP exchange in verbose text mode.
func (p *printer) request(method, path string, body []byte) {
	if !p.verbose || p.json {
		return
	}
	fmt.Fprintf(p.w, "\n%s %s\n", p.paint(ansiYellow, "▶ REQUEST"), p.paint(ansiBold, method+" "+path))
	if body != nil {
		p.indented(body, "  ")
	}
}

func (p *printer) response(status int, body []byte, duration time.Duration) {
	if !p.verbose || p.json {
		return
	}
	statusColor := ansiGreen
	if status >= 400 {
		statusColor = ansiRed
	}
	fmt.Fprintf(p.w, "\n%s %s (%v)\n", p.paint(ansiCyan, "◀ RESPONSE"), p.paint(statusColor, fmt.Sprint(status)), duration)
	if len(body) > 0 {
		p.indented(body, "  ")
	}
}

func (p *printer) indented(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Fprintf(p.w, "%s%s\n", prefix, string(data))
		return
	}

	output := prefix + pretty.String()
	if !p.verbose {
		lines := strings.Split(output, "\n")
		if len(lines) > maxLines {
			more := fmt.Sprintf("(%d more lines, use -v for full output)", len(lines)-25)
			lines = append(lines[:25], prefix+"  "+p.paint(ansiGray, more))
			output = strings.Join(lines, "\n")
		}
	}
	fmt.Fprintln(p.w, output)
}

// result prints v as JSON in json mode and reports whether it did.
func (p *printer) result(v any) bool {
	if !p.json {
		return false
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
	return true
}

func (p *printer) success(format string, args ...any) {
	if !p.quiet {
		fmt.Fprintln(p.w, p.paint(ansiGreen, "✓ "+fmt.Sprintf(format, args...)))
	}
}

func (p *printer) warning(format string, args ...any) {
	fmt.Fprintln(p.w, p.paint(ansiYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func (p *printer) info(format string, args ...any) {
	if !p.quiet {
		fmt.Fprintln(p.w, p.paint(ansiGray, "→ "+fmt.Sprintf(format, args...)))
	}
}

// line prints unconditionally; quiet mode uses it for the essential value.
func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// snapshot renders a cart or wishlist.
func (p *printer) snapshot(title string, snap model.Snapshot, showTotals bool) {
	if p.result(snap) {
		return
	}
	if p.quiet {
		p.line("%d", snap.ItemCount)
		return
	}
	if !snap.HasItems {
		p.info("%s is empty", title)
		return
	}

	fmt.Fprintln(p.w, p.paint(ansiBold, title))
	for _, item := range snap.Items {
		name := item.ProductID
		if item.Product != nil && item.Product.Name != "" {
			name = item.Product.Name
		}
		variant := ""
		if item.Variant != nil {
			variant = strings.TrimSpace(item.Variant.Size + " " + item.Variant.Color)
		}
		if variant != "" {
			name += " (" + variant + ")"
		}

		if showTotals {
			fmt.Fprintf(p.w, "  %s  %s x%d  %s\n",
				p.paint(ansiGray, item.ID), name, item.Quantity, model.FormatCents(item.UnitPrice()*int64(item.Quantity)))
		} else {
			fmt.Fprintf(p.w, "  %s  %s\n", p.paint(ansiGray, item.ID), name)
		}
	}
	if showTotals {
		fmt.Fprintf(p.w, "  %s %s (%d items)\n", p.paint(ansiBold, "Subtotal:"), model.FormatCents(snap.Subtotal), snap.ItemCount)
	}
}
