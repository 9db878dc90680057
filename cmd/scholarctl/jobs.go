package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/config"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/scheduler"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/httpclient"
	"github.com/spf13/cobra"
)

const jobsTimeout = 10 * time.Second

type remoteJob struct {
	scheduler.JobStatus
	NextRun *time.Time `json:"next_run,omitempty"`
}

// jobsCommand queries a running harvester; job counters only exist in that
// process.
func jobsCommand() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Show sweep and batch job state of a running harvester",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if serverURL == "" {
				serverURL = baseURL(cfg.HTTPAddr)
			}
			jobs, err := fetchJobs(cmd.Context(), httpclient.NewRestyClient(jobsTimeout), serverURL, cfg.APIKey)
			if err != nil {
				return err
			}
			renderJobs(cmd.OutOrStdout(), jobs)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "harvester base URL (default derived from http_addr)")
	return cmd
}

func baseURL(addr string) string {
	addr = strings.TrimSpace(addr)
	switch {
	case addr == "":
		return "http://localhost:3000"
	case strings.HasPrefix(addr, ":"):
		return "http://localhost" + addr
	case strings.HasPrefix(addr, "http://"), strings.HasPrefix(addr, "https://"):
		return strings.TrimRight(addr, "/")
	default:
		return "http://" + addr
	}
}

func fetchJobs(ctx context.Context, client httpclient.Client, server, apiKey string) ([]remoteJob, error) {
	headers := map[string]string{"Accept": "application/json"}
	if apiKey != "" {
		headers["X-API-KEY"] = apiKey
	}
	resp, err := client.Get(ctx, strings.TrimRight(server, "/")+"/api/jobs", headers)
	if err != nil {
		return nil, fmt.Errorf("query harvester: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("harvester responded %d: %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}
	var body struct {
		Jobs []remoteJob `json:"jobs"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return body.Jobs, nil
}

func renderJobs(w io.Writer, jobs []remoteJob) {
	t := newTable(w, table.Row{"Job", "State", "Runs", "Skips", "Last run", "Next run", "Last error"})
	for _, j := range jobs {
		state := "idle"
		if j.Running {
			state = "running"
		}
		t.AppendRow(table.Row{j.Name, state, j.Runs, j.Skips, formatTime(&j.LastRun), formatTime(j.NextRun), j.LastError})
	}
	t.Render()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
