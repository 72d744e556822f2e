package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lightclient/bankai/internal/job"
)

// newJobsCommand builds the "jobs" subcommand group: an operator-facing client for the
// running daemon's HTTP read API, grounded on original_source/crates/cli/src/main.rs's
// StatusCommands (CheckBatch/GetEpoch) and manual verify/retry surface, reworked from
// the original's direct Starknet/prover calls into calls against bankaid's own API
// (the daemon, not the CLI, owns the settlement-chain and prover clients).
func newJobsCommand() *cobra.Command {
	var apiAddr string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage daemon jobs",
	}
	cmd.PersistentFlags().StringVar(&apiAddr, "api-addr", "http://localhost:8081", "bankaid HTTP API base URL")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			return listJobs(apiAddr, status)
		},
	}
	listCmd.Flags().String("status", "", "filter by job status (e.g. Done, Error)")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showJob(apiAddr, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "retry <job-id>",
		Short: "Force-retry an Error job, bypassing the scheduler's normal cadence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return retryJob(apiAddr, args[0])
		},
	})

	return cmd
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func listJobs(apiAddr, status string) error {
	url := apiAddr + "/jobs"
	if status != "" {
		url += "?status=" + status
	}
	var body struct {
		Jobs []job.Job `json:"jobs"`
	}
	if err := apiGet(url, &body); err != nil {
		return err
	}
	printJobTable(body.Jobs)
	return nil
}

func showJob(apiAddr, id string) error {
	var j job.Job
	if err := apiGet(apiAddr+"/jobs/"+id, &j); err != nil {
		return err
	}
	fmt.Printf("ID:             %s\n", j.ID)
	fmt.Printf("Kind:           %s\n", j.Kind)
	fmt.Printf("Status:         %s\n", j.Status)
	fmt.Printf("Slot:           %d\n", j.Slot)
	fmt.Printf("Retries:        %d\n", j.Retries)
	fmt.Printf("TxHash:         %s\n", j.TxHash)
	fmt.Printf("CreatedAt:      %s\n", j.CreatedAt.Format(time.RFC3339))
	fmt.Printf("UpdatedAt:      %s\n", j.UpdatedAt.Format(time.RFC3339))
	return nil
}

func retryJob(apiAddr, id string) error {
	var j job.Job
	if err := apiPost(apiAddr+"/jobs/"+id+"/retry", &j); err != nil {
		return err
	}
	fmt.Printf("job %s requeued at status %s\n", j.ID, j.Status)
	return nil
}

func printJobTable(jobs []job.Job) {
	fmt.Printf("%-36s %-20s %-24s %10s\n", "ID", "KIND", "STATUS", "SLOT")
	for _, j := range jobs {
		fmt.Printf("%-36s %-20s %-24s %10d\n", j.ID, j.Kind, j.Status, j.Slot)
	}
}

func apiGet(url string, out any) error {
	res, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer res.Body.Close()
	return decodeAPIResponse(url, res, out)
}

func apiPost(url string, out any) error {
	res, err := httpClient.Post(url, "application/json", strings.NewReader(""))
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer res.Body.Close()
	return decodeAPIResponse(url, res, out)
}

func decodeAPIResponse(url string, res *http.Response, out any) error {
	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("%s returned %s: %s", url, res.Status, string(msg))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}
