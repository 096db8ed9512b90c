package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/climadw/climadw/internal/lock"
	"github.com/climadw/climadw/internal/state"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	labelStyle  = lipgloss.NewStyle().Width(10)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle = map[state.Status]lipgloss.Style{
		state.StatusComplete: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		state.StatusFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		state.StatusSkipped:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		state.StatusRunning:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		state.StatusPending:  dimStyle,
	}
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the outcome of the last run and export",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := state.Load(stateFile)
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}

		out := cmd.OutOrStdout()
		if pid, running, err := lock.Holder(""); err == nil && running {
			fmt.Fprintf(out, "A run is in progress (PID %d).\n\n", pid)
		}
		renderStatus(out, st)
		return nil
	},
}

func renderStatus(w io.Writer, st *state.State) {
	if st.Run == nil {
		fmt.Fprintln(w, "No pipeline run recorded yet. Run `climadw run` to start one.")
	} else {
		fmt.Fprintln(w, renderRun(st.Run))
	}

	if st.Export != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Last export"))
		fmt.Fprintf(w, "  %s  %s, %d tables, %d routines\n",
			st.Export.ExportedAt.Format(time.DateTime), st.Export.Path, st.Export.Tables, st.Export.Routines)
	}
}

func renderRun(run *state.Run) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Last run " + run.ID))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  started %s", run.StartedAt.Format(time.DateTime))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(&b, ", took %s", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(&b, " — %s\n\n", styledStatus(run.Status))

	for _, stage := range state.Stages {
		ss := run.Stages[stage]
		line := "  " + labelStyle.Render(string(stage)) + styledStatus(ss.Status)
		switch {
		case ss.Error != "":
			line += "  " + ss.Error
		case ss.Detail != "":
			line += "  " + dimStyle.Render(ss.Detail)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func styledStatus(s state.Status) string {
	if s == "" {
		s = state.StatusPending
	}
	style, ok := statusStyle[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
