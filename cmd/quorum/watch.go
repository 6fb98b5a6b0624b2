package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mkretch/quorum/pkg/client"
	"github.com/mkretch/quorum/pkg/models"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of tasks and agents",
	Long:  `Poll the quorum server and render a live table of tasks and agent counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newWatchModel(client.New(serverURL), watchInterval)
		_, err := tea.NewProgram(m).Run()
		return err
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "Poll interval")
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// pollMsg carries one snapshot of server state.
type pollMsg struct {
	stats *client.Stats
	tasks []*models.Task
	err   error
}

type watchModel struct {
	client   *client.Client
	interval time.Duration
	spinner  spinner.Model
	table    table.Model
	stats    *client.Stats
	err      error
	quitting bool
}

func newWatchModel(c *client.Client, interval time.Duration) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	tbl := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 12},
			{Title: "State", Width: 12},
			{Title: "Pri", Width: 4},
			{Title: "Agent", Width: 14},
			{Title: "Description", Width: 40},
		}),
		table.WithHeight(12),
	)
	return watchModel{client: c, interval: interval, spinner: sp, table: tbl}
}

func (m watchModel) poll() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	stats, err := m.client.GetStats(ctx)
	if err != nil {
		return pollMsg{err: err}
	}
	tasks, err := m.client.ListTasks(ctx, "", "")
	if err != nil {
		return pollMsg{err: err}
	}
	return pollMsg{stats: stats, tasks: tasks}
}

func (m watchModel) schedulePoll() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return m.poll()
	})
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg { return m.poll() })
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case pollMsg:
		m.err = msg.err
		if msg.err == nil {
			m.stats = msg.stats
			m.table.SetRows(taskRows(msg.tasks))
		}
		return m, m.schedulePoll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	header := titleStyle.Render("quorum") + " " + m.spinner.View()
	if m.err != nil {
		return header + "\n" + errStyle.Render(fmt.Sprintf("error: %v", m.err)) +
			"\n" + dimStyle.Render("retrying; press q to quit") + "\n"
	}
	if m.stats == nil {
		return header + " connecting...\n"
	}

	summary := fmt.Sprintf(
		"agents: %d idle / %d busy    tasks: %d ready / %d in progress / %d done / %d failed / %d blocked",
		m.stats.Agents["idle"], m.stats.Agents["busy"],
		m.stats.Tasks["ready"], m.stats.Tasks["in_progress"],
		m.stats.Tasks["completed"], m.stats.Tasks["failed"], m.stats.Tasks["blocked"],
	)
	return header + "\n" + dimStyle.Render(summary) + "\n\n" +
		m.table.View() + "\n" + dimStyle.Render("q to quit") + "\n"
}

// taskRows orders tasks for display: active work first, then by id.
func taskRows(tasks []*models.Task) []table.Row {
	sort.Slice(tasks, func(i, j int) bool {
		ri, rj := stateRank(tasks[i].State), stateRank(tasks[j].State)
		if ri != rj {
			return ri < rj
		}
		return tasks[i].ID < tasks[j].ID
	})

	rows := make([]table.Row, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, table.Row{
			shorten(t.ID, 12),
			string(t.State),
			fmt.Sprintf("%d", t.Priority),
			t.Assignee,
			t.Description,
		})
	}
	return rows
}

func stateRank(s models.TaskState) int {
	switch s {
	case models.TaskStateInProgress:
		return 0
	case models.TaskStateReady:
		return 1
	case models.TaskStatePending:
		return 2
	case models.TaskStateFailed:
		return 3
	case models.TaskStateBlocked:
		return 4
	default:
		return 5
	}
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
