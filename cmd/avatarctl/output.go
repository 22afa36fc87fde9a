package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/cuongbtq/avatar-podcast/internal/api/dto"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(headers ...string) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	return tw
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

// renderJob prints the job summary followed by its turn table.
func renderJob(cmd *cobra.Command, job *dto.JobDTO) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %s  status=%s  host=%s  guest=%s\n", job.JobID, job.Status, job.HostAvatarID, job.GuestAvatarID)

	manual := make(map[int]bool, len(job.ManualCheckTurns))
	for _, i := range job.ManualCheckTurns {
		manual[i] = true
	}

	tw := newTable("#", "Speaker", "Status", "Video", "Text")
	for _, t := range job.Turns {
		status := t.Status
		if t.FailureReason != "" {
			status += " (" + t.FailureReason + ")"
		}
		if manual[t.Index] {
			status += " [check]"
		}
		tw.AppendRow(table.Row{t.Index, t.Speaker, colorStatus(status, t.Status), t.VideoURL, truncate(t.Text, 48)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignRight}})
	fmt.Fprintln(out, tw.Render())

	for _, t := range job.Turns {
		if t.FailureDetail != "" {
			fmt.Fprintf(out, "  turn %d: %s\n", t.Index, truncate(t.FailureDetail, 200))
		}
	}
	if len(job.ManualCheckTurns) > 0 {
		fmt.Fprintln(out, "Turns marked [check] have been rendering for a long time; confirm them in the provider dashboard and use set-video.")
	}
	if s := job.Stitch; s != nil {
		fmt.Fprintf(out, "Stitch %s  status=%s  clips=%d  output=%s\n", s.StitchID, s.Status, s.VideoCount, s.OutputPath)
		if s.Error != "" {
			fmt.Fprintf(out, "  error: %s\n", truncate(s.Error, 200))
		}
	}
}

func colorStatus(label, status string) string {
	switch status {
	case "ready":
		return text.FgGreen.Sprint(label)
	case "failed":
		return text.FgRed.Sprint(label)
	case "processing":
		return text.FgYellow.Sprint(label)
	default:
		return label
	}
}

func renderJobList(cmd *cobra.Command, page *dto.ListJobsResponse) {
	out := cmd.OutOrStdout()
	if len(page.Jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return
	}

	tw := newTable("Job", "Status", "Turns", "Ready", "User", "Created")
	for _, j := range page.Jobs {
		ready := 0
		for _, t := range j.Turns {
			if t.Status == "ready" {
				ready++
			}
		}
		tw.AppendRow(table.Row{j.JobID, colorStatus(j.Status, j.Status), len(j.Turns), strconv.Itoa(ready), j.UserID, j.CreatedAt})
	}
	fmt.Fprintln(out, tw.Render())
	if page.NextCursor != "" {
		fmt.Fprintf(out, "More jobs available: --cursor %s\n", page.NextCursor)
	}
}
