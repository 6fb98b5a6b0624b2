package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mkretch/quorum/pkg/client"
	"github.com/mkretch/quorum/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show orchestrator state",
	Long: `Display the current state of the quorum server.

Shows:
  - Registered agents and their status
  - Task counts per state
  - In-progress work and its assignees`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	c := client.New(serverURL)
	stats, err := c.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}

	bold := color.New(color.Bold)
	bold.Println("Agents")
	if len(stats.Agents) == 0 {
		fmt.Println("  none registered")
	}
	for _, status := range []string{"idle", "busy", "offline"} {
		if n := stats.Agents[status]; n > 0 {
			fmt.Printf("  %s %d %s\n", statusSymbol(status), n, status)
		}
	}

	fmt.Println()
	bold.Println("Tasks")
	if len(stats.Tasks) == 0 {
		fmt.Println("  none submitted")
	}
	for _, state := range []string{"ready", "pending", "in_progress", "completed", "failed", "blocked"} {
		if n := stats.Tasks[state]; n > 0 {
			fmt.Printf("  %s %d %s\n", stateSymbol(state), n, state)
		}
	}

	if stats.Tasks["in_progress"] > 0 {
		tasks, err := c.ListTasks(ctx, string(models.TaskStateInProgress), "")
		if err != nil {
			return fmt.Errorf("list in-progress tasks: %w", err)
		}
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

		fmt.Println()
		bold.Println("In progress")
		for _, t := range tasks {
			fmt.Printf("  %s  %s (agent %s)\n", t.ID, t.Description, t.Assignee)
		}
	}

	fmt.Println()
	fmt.Printf("Sessions: %d", stats.Sessions)
	if stats.EventsDropped > 0 {
		fmt.Printf("   %s", color.YellowString("events dropped: %d", stats.EventsDropped))
	}
	fmt.Println()
	return nil
}

// statusSymbol colors an agent status marker.
func statusSymbol(status string) string {
	switch status {
	case "idle":
		return color.GreenString("●")
	case "busy":
		return color.YellowString("●")
	default:
		return color.New(color.Faint).Sprint("●")
	}
}

// stateSymbol colors a task state marker.
func stateSymbol(state string) string {
	switch state {
	case "completed":
		return color.GreenString("✓")
	case "failed":
		return color.RedString("✗")
	case "blocked":
		return color.RedString("⊘")
	case "in_progress":
		return color.YellowString("▶")
	default:
		return color.New(color.Faint).Sprint("·")
	}
}
