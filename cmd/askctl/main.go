// Package main implements the askctl CLI for manual operations against the askd HTTP server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the askd HTTP server
	serverURL string
	// uploaderName is sent as the X-Uploader header on write operations
	uploaderName string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "askctl",
	Short: "CLI for askd HTTP server operations",
	Long: `askctl is a command-line interface for interacting with the askd HTTP server.
It provides commands for asking questions, uploading documents, and managing curated notes.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8084", "askd server URL")
	rootCmd.PersistentFlags().StringVar(&uploaderName, "uploader", "", "uploader identity sent with write operations")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(notesCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(healthCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check askd server health",
	Long: `Check the health status of the askd HTTP server.

Examples:
  # Check health
  askctl health

  # Check health on a different server
  askctl health --server http://localhost:8080`,
	RunE: runHealth,
}

// HealthResponse matches internal/httpapi HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

// newClient returns an HTTP client with the given timeout.
func newClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// setUploader attaches the uploader identity header when set.
func setUploader(req *http.Request) {
	if uploaderName != "" {
		req.Header.Set("X-Uploader", uploaderName)
	}
}

// readError formats a non-2xx response into an error.
func readError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	resp, err := newClient(5 * time.Second).Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to %s: %v\n", url, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)

	return nil
}
