// cmd/tdda/render.go

package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"tdda-tools/internal/detect"
	"tdda-tools/internal/persistence"
	"tdda-tools/internal/verify"
)

// Color definitions for the interface
var (
	colorOK     = color.New(color.FgGreen, color.Bold).SprintFunc()
	colorErr    = color.New(color.FgRed, color.Bold).SprintFunc()
	colorPrompt = color.New(color.FgMagenta).SprintFunc()
	colorInfo   = color.New(color.FgBlue).SprintFunc()
)

func outcomeCell(outcome verify.Outcome) string {
	switch outcome {
	case verify.OutcomePass:
		return colorOK("PASS")
	case verify.OutcomeFail:
		return colorErr("FAIL")
	default:
		return colorInfo("N/A")
	}
}

// renderReport prints a verification report as a table, one line per
// (field, constraint) pair.
func renderReport(w io.Writer, report *verify.Report) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Constraint", "Outcome", "Detail"})
	for _, fr := range report.Fields {
		for _, r := range fr.Results {
			detail := r.Message
			if detail == "" && r.Reason != "" {
				detail = r.Reason
			}
			table.Append([]string{fr.Field, string(r.Kind), outcomeCell(r.Outcome), detail})
		}
	}
	for _, gr := range report.Groups {
		table.Append([]string{"-", gr.Name, outcomeCell(gr.Outcome), gr.Message})
	}
	table.Render()

	if report.AllPassed() {
		fmt.Fprintln(w, colorOK(fmt.Sprintf("√ All %d constraints passed.", report.Passes)))
	} else {
		fmt.Fprintln(w, colorErr(fmt.Sprintf("✗ %d of %d constraints failed.",
			report.Failures, report.Passes+report.Failures)))
	}
}

// renderDetection prints up to limit rows of a detection result.
func renderDetection(w io.Writer, result *detect.Result, limit int) {
	fmt.Fprintln(w, colorInfo(fmt.Sprintf("%d of %d records failed at least one constraint.",
		result.NumFailingRecords, result.NumRecords)))
	if len(result.Rows) == 0 {
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(result.Columns)
	shown := 0
	for _, row := range result.Rows {
		if limit > 0 && shown >= limit {
			break
		}
		record := make([]string, len(row.Values))
		for i, v := range row.Values {
			record[i] = persistence.FormatCell(v)
		}
		table.Append(record)
		shown++
	}
	table.Render()
	if limit > 0 && len(result.Rows) > limit {
		fmt.Fprintln(w, colorInfo(fmt.Sprintf("... %d more rows not shown", len(result.Rows)-limit)))
	}
}
