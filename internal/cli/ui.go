package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/greenghost107/TradersMind-chartBot/internal/retention"
	"github.com/greenghost107/TradersMind-chartBot/internal/server"
	"github.com/greenghost107/TradersMind-chartBot/internal/store"
	"github.com/greenghost107/TradersMind-chartBot/internal/tracking"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)

	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	convStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	threadStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// writeStructured prints v as json or yaml. Returns false for other formats.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		// Round trip through JSON so yaml keys follow the json tags.
		data, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(generic)
	}
	return false, nil
}

func field(key string, value any) string {
	return fmt.Sprintf("  %s %s", keyStyle.Render(fmt.Sprintf("%-16s", key+":")), valueStyle.Render(fmt.Sprint(value)))
}

func renderStatus(st server.StatusResponse) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("chartbot "+st.Version) + "\n")

	state := successColor.Sprint("running")
	if !st.Running {
		state = warningColor.Sprint("stopped")
	}
	fmt.Fprintln(&b, field("engine", state))
	fmt.Fprintln(&b, field("uptime", (time.Duration(st.Uptime)*time.Second).String()))
	fmt.Fprintln(&b, field("interval", st.Interval))
	fmt.Fprintln(&b, field("retention", st.Retention))
	fmt.Fprintln(&b, field("ticks", st.Ticks))
	fmt.Fprintln(&b, field("threads", st.Threads))
	fmt.Fprintln(&b, field("tracked", st.TotalTracked))

	kinds := make([]string, 0, len(st.ByKind))
	for k := range st.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintln(&b, field("  "+k, st.ByKind[tracking.Kind(k)]))
	}

	if st.LastTick != nil {
		b.WriteString("\n" + titleStyle.Render("last tick") + "\n")
		b.WriteString(renderSummary(*st.LastTick))
	}
	return b.String()
}

func renderSummary(s retention.TickSummary) string {
	var b strings.Builder
	fmt.Fprintln(&b, field("tick", s.TickID))
	fmt.Fprintln(&b, field("started", s.StartedAt.Local().Format(time.DateTime)))
	fmt.Fprintln(&b, field("duration", s.Duration.Round(time.Millisecond)))
	fmt.Fprintln(&b, field("expired", s.Expired))
	fmt.Fprintln(&b, field("deleted", s.Deleted))
	fmt.Fprintln(&b, field("skipped", s.Skipped))
	fmt.Fprintln(&b, field("cache released", fmt.Sprintf("%d/%d", s.CacheReleased, s.ReleaseCalls)))
	fmt.Fprintln(&b, field("tracking swept", s.Swept))
	fmt.Fprintln(&b, field("threads removed", s.Threads))
	if s.OrphanRun {
		fmt.Fprintln(&b, field("orphans removed", s.Orphans))
	}
	errs := fmt.Sprint(s.Errors)
	if s.Errors > 0 {
		errs = errorColor.Sprintf("%d (%d fatal)", s.Errors, s.Fatal)
	}
	fmt.Fprintln(&b, field("errors", errs))
	if s.Panicked {
		fmt.Fprintln(&b, field("panicked", errorColor.Sprint("yes")))
	}
	return b.String()
}

// renderTracked draws artifacts as conversation → thread → chart trees.
func renderTracked(artifacts []tracking.Artifact, now time.Time) string {
	if len(artifacts) == 0 {
		return dimStyle.Render("Nothing tracked")
	}

	type group struct {
		direct  []tracking.Artifact
		threads map[string][]tracking.Artifact
	}
	groups := make(map[string]*group)
	for _, a := range artifacts {
		g, ok := groups[a.Placement.ConversationID]
		if !ok {
			g = &group{threads: make(map[string][]tracking.Artifact)}
			groups[a.Placement.ConversationID] = g
		}
		if a.Kind == tracking.KindChartResponse && a.Placement.ThreadID != "" {
			g.threads[a.Placement.ThreadID] = append(g.threads[a.Placement.ThreadID], a)
		} else {
			g.direct = append(g.direct, a)
		}
	}

	convs := make([]string, 0, len(groups))
	for c := range groups {
		convs = append(convs, c)
	}
	sort.Strings(convs)

	var out []string
	for _, c := range convs {
		g := groups[c]
		root := tree.Root(convStyle.Render("# " + c))
		for _, a := range g.direct {
			root.Child(artifactLabel(a, now))
		}
		ids := make([]string, 0, len(g.threads))
		for id := range g.threads {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			node := tree.Root(threadStyle.Render("thread " + id))
			for _, a := range g.threads[id] {
				node.Child(artifactLabel(a, now))
			}
			root.Child(node)
		}
		out = append(out, root.String())
	}
	out = append(out, dimStyle.Render(fmt.Sprintf("%d tracked", len(artifacts))))
	return strings.Join(out, "\n\n")
}

func artifactLabel(a tracking.Artifact, now time.Time) string {
	age := now.Sub(a.CreatedAt).Round(time.Minute)
	var what string
	switch a.Kind {
	case tracking.KindButtonPrompt:
		what = "prompt " + strings.Join(a.Tickers, ",")
	case tracking.KindThreadSystemNotice:
		what = "notice → " + a.Placement.ThreadID
	case tracking.KindChartResponse:
		what = "chart " + a.Ticker
		if a.Ephemeral {
			what += " (ephemeral)"
		}
	default:
		what = string(a.Kind)
	}
	return fmt.Sprintf("%s %s %s", valueStyle.Render(what), keyStyle.Render(a.ID), dimStyle.Render(age.String()+" old"))
}

func renderRuns(runs []store.Run) string {
	if len(runs) == 0 {
		return dimStyle.Render("No runs recorded")
	}
	var b strings.Builder
	header := fmt.Sprintf("%-26s  %-19s  %8s  %7s  %7s  %6s  %6s  %7s",
		"TICK", "STARTED", "DURATION", "EXPIRED", "DELETED", "ERRORS", "CACHE", "THREADS")
	b.WriteString(titleStyle.Render(header) + "\n")
	for _, r := range runs {
		line := fmt.Sprintf("%-26s  %-19s  %8s  %7d  %7d  %6d  %6d  %7d",
			r.TickID, r.StartedAt.Local().Format(time.DateTime), r.Duration.Round(time.Millisecond),
			r.Expired, r.Deleted, r.Errors, r.CacheReleased, r.ThreadsRemoved+r.OrphansRemoved)
		if r.Errors > 0 {
			line = errorColor.Sprint(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}
