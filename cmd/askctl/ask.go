package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// askCmd asks a question and streams the answer
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the indexed content",
	Long: `Ask a question and stream the grounded answer to stdout.

The answer is only generated when the retrieved content is a confident
match for the question; otherwise a fallback message is returned.

Examples:
  # Ask a question
  askctl ask "What is the refund policy?"

  # Read the question from stdin
  echo "What is the refund policy?" | askctl ask -`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

// AskRequest matches internal/httpapi AskRequest
type AskRequest struct {
	Question string `json:"question"`
}

// runAsk handles the ask command
func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]
	if question == "-" {
		stdin, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		question = strings.TrimSpace(string(stdin))
	}
	if question == "" {
		return fmt.Errorf("no question to ask")
	}

	reqJSON, err := json.Marshal(AskRequest{Question: question})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/ask", serverURL)
	httpReq, err := http.NewRequest("POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setUploader(httpReq)

	// Answers stream token by token; allow generous time for the model.
	resp, err := newClient(5 * time.Minute).Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}

	// Stream the body to stdout as it arrives.
	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		return fmt.Errorf("failed to read answer stream: %w", err)
	}
	fmt.Println()

	// Trailers are only populated once the body has been fully read.
	if confidence := resp.Trailer.Get("X-Answer-Confidence"); confidence != "" {
		fmt.Fprintf(os.Stderr, "[askctl] Confidence: %s%%\n", confidence)
	}
	if source := resp.Trailer.Get("X-Answer-Source"); source != "" {
		fmt.Fprintf(os.Stderr, "[askctl] Source: %s\n", source)
	}

	return nil
}
