// Package report renders a finished run as a terminal summary.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"forecaster/internal/domain"
	"forecaster/internal/pipeline"
	"forecaster/internal/store"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	sectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	failStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// amountStyle colours a value by its sign.
func amountStyle(v float64) lipgloss.Style {
	switch {
	case v > 0:
		return gainStyle
	case v < 0:
		return lossStyle
	default:
		return lipgloss.NewStyle()
	}
}

func amount(v float64, width int) string {
	return amountStyle(v).Render(fmt.Sprintf("%*s", width, FormatAmount(v)))
}

func section(b *strings.Builder, title string) {
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("  " + title + "  "))
	b.WriteString("\n")
}

// Render writes the run summary, per-partition returns, classification
// quality, signal counts and annual returns of res to w.
func Render(w io.Writer, res *pipeline.Result) error {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf(
		" %s  %s  %s..%s  position %g ",
		res.Ticker,
		res.Classifier,
		res.Start.Format(domain.DateLayout),
		res.End.Format(domain.DateLayout),
		res.PositionSize,
	)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf(
		"  run %s  window %s rows  split at %s  took %s",
		res.RunID, FormatInt(res.DataRangeLen), FormatInt(res.SplitIndex), res.Duration.Round(time.Millisecond),
	)))
	b.WriteString("\n")

	section(&b, "Returns")
	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("  %-11s %7s %11s %10s %10s %10s %10s",
		"Partition", "Rows", "Equity", "Daily", "Weekly", "Monthly", "Quarterly")))
	b.WriteString("\n")
	for _, p := range res.Partitions {
		b.WriteString(fmt.Sprintf("  %-11s %7s ", p.Name, FormatInt(p.Rows())))
		b.WriteString(amount(p.FinalEquity, 11))
		for _, v := range []float64{p.Returns.AverageDaily, p.Returns.AverageWeekly, p.Returns.AverageMonthly, p.Returns.AverageQuarterly} {
			b.WriteString(" ")
			b.WriteString(amount(v, 10))
		}
		b.WriteString("\n")
	}

	section(&b, "Classification")
	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("  %-11s %9s %9s %9s %9s %6s %6s",
		"Partition", "Accuracy", "Precision", "Recall", "F1", "Buy", "Sell")))
	b.WriteString("\n")
	for _, p := range res.Partitions {
		c := p.Classification
		b.WriteString(fmt.Sprintf("  %-11s %9s %9s %9s %9s %6s %6s\n",
			p.Name,
			FormatRatio(c.Accuracy), FormatRatio(c.Precision), FormatRatio(c.Recall), FormatRatio(c.F1),
			FormatInt(p.Signals.Buy), FormatInt(p.Signals.Sell),
		))
	}

	if len(res.Annual) > 0 {
		section(&b, "Annual")
		for _, y := range res.Annual {
			b.WriteString(fmt.Sprintf("  %-6d ", y.Year))
			b.WriteString(amount(y.Return, 11))
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderRuns writes a one-line summary per stored run.
func RenderRuns(w io.Writer, runs []store.Run) error {
	var b strings.Builder
	if len(runs) == 0 {
		b.WriteString(dimStyle.Render("  (no runs)"))
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("  %-36s %-10s %-14s %-10s %-23s %s",
		"Run", "Ticker", "Classifier", "Status", "Window", "Created")))
	b.WriteString("\n")
	for _, r := range runs {
		status := string(r.Status)
		if r.Status == store.RunFailed {
			status = failStyle.Render(fmt.Sprintf("%-10s", status))
		} else {
			status = fmt.Sprintf("%-10s", status)
		}
		b.WriteString(fmt.Sprintf("  %-36s %-10s %-14s %s %-23s %s\n",
			r.ID, r.Ticker, r.Classifier, status,
			window(r), r.CreatedAt.Format("2006-01-02 15:04"),
		))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderRun writes a stored run with its per-partition evaluations.
func RenderRun(w io.Writer, r *store.Run) error {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf(" %s  %s  %s  %s ", r.ID, r.Ticker, r.Classifier, window(*r))))
	b.WriteString("\n")
	if r.Status == store.RunFailed {
		b.WriteString(failStyle.Render("  failed: " + r.Error))
		b.WriteString("\n")
	}

	if len(r.Evaluations) > 0 {
		section(&b, "Evaluations")
		b.WriteString(colHeaderStyle.Render(fmt.Sprintf("  %-11s %7s %11s %10s %10s %10s %10s %9s %9s",
			"Partition", "Rows", "Equity", "Daily", "Weekly", "Monthly", "Quarterly", "Accuracy", "F1")))
		b.WriteString("\n")
		for _, e := range r.Evaluations {
			b.WriteString(fmt.Sprintf("  %-11s %7s ", e.Partition, FormatInt(e.Rows)))
			b.WriteString(amount(e.FinalEquity, 11))
			for _, v := range []float64{e.AverageDaily, e.AverageWeekly, e.AverageMonthly, e.AverageQuarterly} {
				b.WriteString(" ")
				b.WriteString(amount(v, 10))
			}
			b.WriteString(fmt.Sprintf(" %9s %9s\n", FormatRatio(e.Accuracy), FormatRatio(e.F1)))
		}
	}

	if r.Config != "" {
		section(&b, "Config")
		for _, line := range strings.Split(strings.TrimRight(r.Config, "\n"), "\n") {
			b.WriteString(dimStyle.Render("  " + line))
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func window(r store.Run) string {
	if r.Start.IsZero() {
		return "-"
	}
	return r.Start.Format(domain.DateLayout) + ".." + r.End.Format(domain.DateLayout)
}
