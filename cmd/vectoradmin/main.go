// Package main implements the vectoradmin CLI for manual operations
// against the vectoradmind HTTP server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the vectoradmind HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vectoradmin",
	Short: "CLI for vectoradmind HTTP server operations",
	Long: `vectoradmin is a command-line interface for the vectoradmind daemon.
It provides commands for inspecting the job ledger, retrying and killing
jobs, and running the destructive organization tools.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:3355", "vectoradmind server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(migrateCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check vectoradmind server health",
	RunE:  runHealth,
}

var (
	jobsStatus string
	jobsLimit  int
)

// jobsCmd lists an organization's jobs
var jobsCmd = &cobra.Command{
	Use:   "jobs [orgID]",
	Short: "List jobs for an organization",
	Long: `List jobs for an organization, newest first.

Examples:
  # All jobs for organization 1
  vectoradmin jobs 1

  # Only pending jobs
  vectoradmin jobs 1 --status pending --limit 20`,
	Args: cobra.ExactArgs(1),
	RunE: runJobs,
}

// retryCmd re-submits a failed job
var retryCmd = &cobra.Command{
	Use:   "retry [jobID]",
	Short: "Retry a failed job",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

// killCmd aborts a pending job
var killCmd = &cobra.Command{
	Use:   "kill [jobID]",
	Short: "Abort a pending job",
	Args:  cobra.ExactArgs(1),
	RunE:  runKill,
}

// resetCmd wipes an organization's vector data
var resetCmd = &cobra.Command{
	Use:   "reset [orgSlug]",
	Short: "Reset an organization's vector data",
	Long: `Submit a job that deletes every workspace, document and vector
belonging to the organization, in the provider and locally. Refused
while any job is pending for the organization.`,
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

var migrateDestination uint

// migrateCmd copies an organization's data into another organization
var migrateCmd = &cobra.Command{
	Use:   "migrate [orgSlug]",
	Short: "Migrate an organization's workspaces to another organization",
	Args:  cobra.ExactArgs(1),
	RunE:  runMigrate,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (pending, complete, failed)")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 0, "maximum number of jobs to return")
	migrateCmd.Flags().UintVar(&migrateDestination, "to", 0, "destination organization id")
	_ = migrateCmd.MarkFlagRequired("to")
}

// Job matches the ledger row serialized by internal/api.
type Job struct {
	ID             uint            `json:"id"`
	TaskName       string          `json:"taskName"`
	Status         string          `json:"status"`
	Result         json.RawMessage `json:"result"`
	OrganizationID uint            `json:"organizationId"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// JobResponse matches internal/api/handlers.go JobResponse
type JobResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Job     *Job   `json:"job,omitempty"`
}

// ListJobsResponse matches internal/api/handlers.go ListJobsResponse
type ListJobsResponse struct {
	Success bool  `json:"success"`
	Jobs    []Job `json:"jobs"`
}

// HealthResponse matches internal/api/server.go HealthResponse
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	var resp HealthResponse
	if err := getJSON("/health", &resp); err != nil {
		return err
	}
	fmt.Printf("Server Status: %s\n", resp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)
	return nil
}

func runJobs(cmd *cobra.Command, args []string) error {
	path := fmt.Sprintf("/v1/jobs/%s", args[0])
	sep := "?"
	if jobsStatus != "" {
		path += sep + "status=" + jobsStatus
		sep = "&"
	}
	if jobsLimit > 0 {
		path += sep + fmt.Sprintf("limit=%d", jobsLimit)
	}

	var resp ListJobsResponse
	if err := getJSON(path, &resp); err != nil {
		return err
	}
	if len(resp.Jobs) == 0 {
		fmt.Println("No jobs found.")
		return nil
	}
	for _, job := range resp.Jobs {
		fmt.Printf("%-6d %-28s %-10s %s\n", job.ID, job.TaskName, job.Status, job.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runRetry(cmd *cobra.Command, args []string) error {
	return postJob(fmt.Sprintf("/v1/jobs/%s/retry", args[0]), "")
}

func runKill(cmd *cobra.Command, args []string) error {
	return postJob(fmt.Sprintf("/v1/jobs/%s/kill", args[0]), "")
}

func runReset(cmd *cobra.Command, args []string) error {
	return postJob(fmt.Sprintf("/v1/tools/org/%s/reset", args[0]), "")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	body := fmt.Sprintf(`{"destinationOrganizationId":%d}`, migrateDestination)
	return postJob(fmt.Sprintf("/v1/tools/org/%s/migrate", args[0]), body)
}

// postJob sends a job submission request and prints the outcome.
func postJob(path, body string) error {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(http.MethodPost, serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", serverURL+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(raw))
	}

	var jobResp JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&jobResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !jobResp.Success {
		return fmt.Errorf("refused: %s", jobResp.Message)
	}
	if jobResp.Job != nil {
		fmt.Printf("Job %d admitted (%s, %s)\n", jobResp.Job.ID, jobResp.Job.TaskName, jobResp.Job.Status)
	}
	return nil
}

// getJSON fetches path and decodes the JSON response into out.
func getJSON(path string, out any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverURL+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
