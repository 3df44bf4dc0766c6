// Package report renders a dashboard snapshot for the terminal.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"example.com/signups/internal/dashboard"
	"example.com/signups/internal/domain"
)

// barWidth is the length of the longest bar in the daily chart.
const barWidth = 40

type Printer struct {
	out       io.Writer
	useColors bool
}

func NewPrinter(out io.Writer, useColors bool) *Printer {
	return &Printer{out: out, useColors: useColors}
}

// Render writes the summary, any warnings, the daily chart and the most
// recent `limit` signups.
func (p *Printer) Render(snap dashboard.Snapshot, timezone string, limit int) error {
	p.header("Contact signups")
	fmt.Fprintf(p.out, "Window:        %s .. %s (%s)\n",
		snap.Window.Start.Format(domain.DateLayout),
		snap.Window.End.Add(-1).Format(domain.DateLayout),
		timezone)
	fmt.Fprintf(p.out, "Total signups: %s\n", p.bold(strconv.Itoa(snap.Total)))
	fmt.Fprintf(p.out, "Daily average: %s\n", p.bold(strconv.FormatFloat(snap.DailyAverage, 'f', 2, 64)))

	if snap.Partial {
		p.warning("partial result: %s", snap.PartialReason)
	}
	if snap.Stale {
		p.warning("showing data fetched at %s; the latest refresh failed", snap.FetchedAt.Format(domain.TimestampLayout))
	}

	p.header("Signups per day")
	if err := p.table([]string{"Date", "Count", ""}, seriesRows(snap.Series)); err != nil {
		return fmt.Errorf("render series: %w", err)
	}

	rows := snap.Recent(limit)
	p.header(fmt.Sprintf("Recent signups (%d of %d)", len(rows), len(snap.Rows)))
	if len(rows) == 0 {
		fmt.Fprintln(p.out, "No signups in this window.")
		return nil
	}
	if err := p.table([]string{"Created", "Name", "Email"}, activityRows(rows)); err != nil {
		return fmt.Errorf("render rows: %w", err)
	}
	return nil
}

func (p *Printer) table(header []string, rows [][]string) error {
	table := tablewriter.NewTable(p.out,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	table.Header(header)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func (p *Printer) header(title string) {
	if p.useColors {
		color.New(color.FgWhite, color.Bold).Fprintf(p.out, "\n%s\n", title)
		return
	}
	fmt.Fprintf(p.out, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
}

func (p *Printer) warning(format string, args ...any) {
	if p.useColors {
		color.New(color.FgYellow).Fprintf(p.out, "⚠ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.out, "[WARN] "+format+"\n", args...)
}

func (p *Printer) bold(text string) string {
	if p.useColors {
		return color.New(color.Bold).Sprint(text)
	}
	return text
}

func seriesRows(series domain.DailySeries) [][]string {
	peak := 0
	for _, d := range series {
		peak = max(peak, d.Count)
	}
	out := make([][]string, 0, len(series))
	for _, d := range series {
		out = append(out, []string{d.Date, strconv.Itoa(d.Count), Bar(d.Count, peak, barWidth)})
	}
	return out
}

func activityRows(rows []domain.ActivityRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{r.Timestamp, r.Name, r.Email})
	}
	return out
}

// Bar scales count against peak into at most width cells. Non-zero counts
// always get at least one cell.
func Bar(count, peak, width int) string {
	if count <= 0 || peak <= 0 || width <= 0 {
		return ""
	}
	n := count * width / peak
	if n < 1 {
		n = 1
	}
	return strings.Repeat("#", n)
}
