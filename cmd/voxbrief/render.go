package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"voxbrief/internal/session"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
	wrapWidth        = 88
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		return statusKindColors(kind).Sprint(base)
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColors(kind statusKind) text.Colors {
	switch kind {
	case statusOK:
		return text.Colors{text.FgGreen}
	case statusWarn:
		return text.Colors{text.FgYellow}
	case statusError:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{}
	}
}

func renderSection(title string, colorize bool) []string {
	rule := strings.Repeat("-", len(title))
	if colorize {
		c := text.Colors{text.FgBlue, text.Bold}
		return []string{c.Sprint(title), c.Sprint(rule)}
	}
	return []string{title, rule}
}

func shouldColorize(writer io.Writer) bool {
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func isInteractive(reader io.Reader) bool {
	file, ok := reader.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func renderTable(headers []string, rows [][]string, wrapColumn int) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		cfg := table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft}
		if i == wrapColumn {
			cfg.WidthMax = wrapWidth - 30
		}
		configs = append(configs, cfg)
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// renderSnapshot prints the outcome of one session.
func renderSnapshot(out io.Writer, snap session.Snapshot, colorize bool) {
	kind := statusInfo
	switch snap.State {
	case session.StateDone:
		kind = statusOK
	case session.StateError:
		kind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Status", kind, snap.Status, colorize))
	if snap.ErrorKind != "" {
		fmt.Fprintln(out, renderStatusLine("Error kind", statusError, snap.ErrorKind, colorize))
	}

	if snap.Transcript != "" {
		fmt.Fprintln(out)
		printLines(out, renderSection("Transcript", colorize))
		fmt.Fprintln(out, text.WrapSoft(snap.Transcript, wrapWidth))
	}

	result := snap.Result
	if result == nil {
		return
	}
	if overview := strings.TrimSpace(string(result.ContextualAnalysis)); overview != "" {
		fmt.Fprintln(out)
		printLines(out, renderSection("Overview", colorize))
		fmt.Fprintln(out, text.WrapSoft(overview, wrapWidth))
	}

	fmt.Fprintln(out)
	printLines(out, renderSection("Companies", colorize))
	if len(result.Companies) == 0 {
		fmt.Fprintln(out, "None mentioned")
	} else {
		rows := make([][]string, 0, len(result.Companies))
		for _, c := range result.Companies {
			rows = append(rows, []string{c.Name, c.Industry})
		}
		fmt.Fprintln(out, renderTable([]string{"Name", "Industry"}, rows, -1))
	}

	fmt.Fprintln(out)
	printLines(out, renderSection("Products", colorize))
	if len(result.Products) == 0 {
		fmt.Fprintln(out, "None mentioned")
	} else {
		rows := make([][]string, 0, len(result.Products))
		for _, p := range result.Products {
			rows = append(rows, []string{p.Name, p.Description})
		}
		fmt.Fprintln(out, renderTable([]string{"Name", "Description"}, rows, 1))
	}

	if insights := strings.TrimSpace(string(result.RelatedInfo)); insights != "" {
		fmt.Fprintln(out)
		printLines(out, renderSection("Insights", colorize))
		fmt.Fprintln(out, text.WrapSoft(insights, wrapWidth))
	}
}

func printLines(out io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}
