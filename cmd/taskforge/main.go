// Command taskforge is the taskforge CLI client.
package main

import (
	"fmt"
	"maps"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskforge/taskforge/internal/version"
	"github.com/taskforge/taskforge/task"
)

const defaultServer = "http://localhost:8000"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cli := &Client{HTTPClient: &http.Client{Timeout: 15 * time.Second}}
	var serverURL string

	root := &cobra.Command{
		Use:           "taskforge",
		Short:         "taskforge CLI",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			cli.BaseURL = strings.TrimRight(serverURL, "/")
		},
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("TASKFORGE_SERVER", defaultServer), "taskforge server URL")
	root.PersistentFlags().StringVar(&cli.Session, "session", os.Getenv("TASKFORGE_SESSION"), "session_id cookie value")

	root.AddCommand(versionCmd(), healthCmd(cli), tasksCmd(cli), taskCmd(cli), statsCmd(cli))
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "taskforge", version.String())
		},
	}
}

func healthCmd(cli *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var result map[string]any
			if err := cli.do(http.MethodGet, "/health", nil, &result); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status:  %v\n", result["status"])
			fmt.Fprintf(out, "version: %v\n", result["version"])
			fmt.Fprintf(out, "uptime:  %v\n", result["uptime"])
			return nil
		},
	}
}

func tasksCmd(cli *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var tasks []task.Task
			if err := cli.do(http.MethodGet, "/tasks/", nil, &tasks); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "no tasks")
				return nil
			}
			fmt.Fprintf(out, "%-6s %-30s %-20s %-12s %6s\n", "ID", "TITLE", "STATUS", "ASSIGNEE", "POINTS")
			fmt.Fprintln(out, strings.Repeat("-", 78))
			for _, t := range tasks {
				fmt.Fprintf(out, "%-6d %-30s %-20s %-12s %6d\n",
					t.ID, truncate(t.Title, 29), truncate(string(t.Status), 20), deref(t.Assignee), t.Points)
			}
			return nil
		},
	}
}

func taskCmd(cli *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Work with a single task",
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t task.Task
			if err := cli.do(http.MethodGet, "/tasks/"+args[0], nil, &t); err != nil {
				return err
			}
			printTask(cmd, &t)
			return nil
		},
	}

	var assignee string
	var reviewers []string
	create := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := task.NewTask{Title: strings.Join(args, " "), Reviewers: reviewers}
			if assignee != "" {
				in.Assignee = &assignee
			}
			var t task.Task
			if err := cli.do(http.MethodPost, "/tasks/", in, &t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created task %d (TASK-%d)\n", t.ID, t.ID)
			return nil
		},
	}
	create.Flags().StringVarP(&assignee, "assignee", "a", "", "assignee login")
	create.Flags().StringSliceVarP(&reviewers, "reviewer", "r", nil, "reviewer login (repeatable)")

	setStatus := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set a task's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := task.Status(args[1])
			return patchTask(cmd, cli, args[0], task.Patch{Status: &st})
		},
	}

	closeCmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close a task and credit its assignee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := task.StatusClosed
			return patchTask(cmd, cli, args[0], task.Patch{Status: &st})
		},
	}

	assign := &cobra.Command{
		Use:   "assign-branch <id> <login>",
		Short: "Assign the task's branch to a GitHub login",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			var t task.Task
			body := map[string]string{"branch_assignee_github_login": args[1]}
			if err := cli.do(http.MethodPatch, "/tasks/"+args[0]+"/assign_branch", body, &t); err != nil {
				return err
			}
			printTask(cmd, &t)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.do(http.MethodDelete, "/tasks/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s deleted\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(get, create, setStatus, closeCmd, assign, del)
	return cmd
}

func patchTask(cmd *cobra.Command, cli *Client, id string, p task.Patch) error {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return fmt.Errorf("invalid task id %q", id)
	}
	var t task.Task
	if err := cli.do(http.MethodPatch, "/tasks/"+id, p, &t); err != nil {
		return err
	}
	printTask(cmd, &t)
	return nil
}

func printTask(cmd *cobra.Command, t *task.Task) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:        %d\n", t.ID)
	fmt.Fprintf(out, "title:     %s\n", t.Title)
	fmt.Fprintf(out, "status:    %s\n", t.Status)
	fmt.Fprintf(out, "assignee:  %s\n", deref(t.Assignee))
	fmt.Fprintf(out, "points:    %d\n", t.Points)
	fmt.Fprintf(out, "branch:    %s\n", deref(t.BranchName))
	if len(t.Reviewers) > 0 {
		fmt.Fprintf(out, "reviewers: %s\n", strings.Join(t.Reviewers, ", "))
	}
}

func statsCmd(cli *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show status counts and the points leaderboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var s task.Stats
			if err := cli.do(http.MethodGet, "/tasks/stats", nil, &s); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Statuses:")
			for _, st := range slices.Sorted(maps.Keys(s.Statuses)) {
				fmt.Fprintf(out, "  %-22s %d\n", st, s.Statuses[st])
			}
			fmt.Fprintln(out, "Leaders:")
			for i, l := range s.PointsLeaders {
				fmt.Fprintf(out, "  %d. %-20s %d\n", i+1, l.Assignee, l.Points)
			}
			return nil
		},
	}
}
