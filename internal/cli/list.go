package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/vk/assetgrid/internal/app"
	"github.com/vk/assetgrid/internal/config"
)

// listStyles renders the list output. Colors are dropped automatically when
// the writer is not a terminal.
type listStyles struct {
	heading lipgloss.Style
	name    lipgloss.Style
	muted   lipgloss.Style
	accent  lipgloss.Style
}

func newListStyles(w io.Writer) listStyles {
	r := lipgloss.NewRenderer(w)
	return listStyles{
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		name:    r.NewStyle().Foreground(lipgloss.Color("10")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("240")),
		accent:  r.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks, watches and the dev server",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(_ context.Context, a *app.App) error {
				printList(cmd.OutOrStdout(), a)
				return nil
			})
		},
	}
}

func printList(w io.Writer, a *app.App) {
	st := newListStyles(w)
	tasks := a.Tasks()

	width := 0
	for _, t := range tasks {
		width = max(width, len(t.Name))
	}

	fmt.Fprintln(w, st.heading.Render("Tasks"))
	for _, t := range tasks {
		line := "  " + st.name.Render(pad(t.Name, width))
		if t.Name == a.DefaultTask() {
			line += " " + st.accent.Render("(default)")
		}
		if t.Description != "" {
			line += "  " + t.Description
		}
		fmt.Fprintln(w, line)
		if details := taskDetails(t); details != "" {
			fmt.Fprintln(w, "  "+strings.Repeat(" ", width)+"  "+st.muted.Render(details))
		}
	}

	if watches := a.Watches(); len(watches) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.heading.Render("Watches"))
		for _, wt := range watches {
			fmt.Fprintf(w, "  %s  %s -> %s\n", st.name.Render(wt.Name), strings.Join(wt.Paths, ", "), strings.Join(wt.Tasks, ", "))
		}
	}

	if srv := a.Server(); srv != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.heading.Render("Server"))
		source := "proxy " + srv.Proxy
		if srv.Root != "" {
			source = "root " + srv.Root
		}
		fmt.Fprintf(w, "  port %d, %s\n", srv.Port, source)
		if len(srv.Before) > 0 {
			fmt.Fprintf(w, "  %s\n", st.muted.Render("before: "+strings.Join(srv.Before, ", ")))
		}
		if len(srv.ReloadOn) > 0 {
			fmt.Fprintf(w, "  %s\n", st.muted.Render("reload on: "+strings.Join(srv.ReloadOn, ", ")))
		}
	}
}

func taskDetails(t *config.Task) string {
	var parts []string
	if len(t.DependsOn) > 0 {
		parts = append(parts, "depends on: "+strings.Join(t.DependsOn, ", "))
	}
	if len(t.After) > 0 {
		parts = append(parts, "after: "+strings.Join(t.After, ", "))
	}
	if n := len(t.Pipes); n > 0 {
		parts = append(parts, fmt.Sprintf("%d pipe(s)", n))
	}
	return strings.Join(parts, "; ")
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
