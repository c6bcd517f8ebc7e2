package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	searchTopK       int
	searchOutputJSON bool
)

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "k", 0, "Maximum number of matches (server default when 0)")
	searchCmd.Flags().BoolVar(&searchOutputJSON, "json", false, "Output results as JSON")
}

// searchCmd runs a raw similarity search without generating an answer
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the vector index",
	Long: `Run a similarity search against the vector index and print the
matches with their scores. No answer is generated.

Examples:
  # Search with the server's default result count
  askctl search "refund policy"

  # Return up to ten matches
  askctl search "refund policy" --k 10

  # Output as JSON
  askctl search "refund policy" --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

// SearchMatch matches internal/httpapi SearchMatch
type SearchMatch struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// runSearch handles the search command
func runSearch(cmd *cobra.Command, args []string) error {
	params := url.Values{}
	params.Set("q", args[0])
	if searchTopK > 0 {
		params.Set("k", strconv.Itoa(searchTopK))
	}

	reqURL := fmt.Sprintf("%s/api/v1/search?%s", serverURL, params.Encode())
	resp, err := newClient(30 * time.Second).Get(reqURL)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}

	var matches []SearchMatch
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if searchOutputJSON {
		out, err := json.MarshalIndent(matches, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal matches: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	if len(matches) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tID\tSOURCE\tPREVIEW")
	for _, m := range matches {
		source, _ := m.Metadata["filename"].(string)
		if source == "" {
			if kind, _ := m.Metadata["kind"].(string); kind == "note" {
				source = "note"
			}
		}
		preview, _ := m.Metadata["chunk_preview"].(string)
		if preview == "" {
			preview, _ = m.Metadata["question"].(string)
		}
		fmt.Fprintf(w, "%.4f\t%s\t%s\t%s\n", m.Score, m.ID, source, preview)
	}
	return w.Flush()
}
