package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var notesOutputJSON bool

func init() {
	notesCmd.AddCommand(notesAddCmd)
	notesCmd.AddCommand(notesListCmd)
	notesListCmd.Flags().BoolVar(&notesOutputJSON, "json", false, "Output results as JSON")
}

// notesCmd manages curated Q&A notes
var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Manage curated Q&A notes",
	Long: `Manage curated question/answer notes.

Notes are hand-written answers that take part in retrieval alongside
indexed documents and are surfaced to the model as reference material.

Examples:
  # Add a note
  askctl notes add "What is the support email?" "support@example.com"

  # List all notes
  askctl notes list

  # List notes as JSON
  askctl notes list --json`,
}

var notesAddCmd = &cobra.Command{
	Use:   "add <question> <answer>",
	Short: "Add a curated note",
	Long: `Add a curated question/answer note.

Examples:
  # Add a note
  askctl notes add "What is the support email?" "support@example.com"

  # Add a note with an uploader identity
  askctl notes add --uploader ada "Office hours?" "9am to 5pm, Monday to Friday"`,
	Args: cobra.ExactArgs(2),
	RunE: runNotesAdd,
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List curated notes",
	RunE:  runNotesList,
}

// NoteRequest matches internal/httpapi NoteRequest
type NoteRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// NoteResponse matches internal/httpapi NoteResponse
type NoteResponse struct {
	ID        string `json:"id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	CreatedAt string `json:"created_at"`
	Uploader  string `json:"uploader"`
}

// runNotesAdd handles the notes add command
func runNotesAdd(cmd *cobra.Command, args []string) error {
	reqJSON, err := json.Marshal(NoteRequest{Question: args[0], Answer: args[1]})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/notes", serverURL)
	httpReq, err := http.NewRequest("POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setUploader(httpReq)

	resp, err := newClient(30 * time.Second).Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return readError(resp)
	}

	var note NoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&note); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Note created: %s\n", note.ID)
	return nil
}

// runNotesList handles the notes list command
func runNotesList(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/v1/notes", serverURL)

	resp, err := newClient(30 * time.Second).Get(url)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}

	var listed []NoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if notesOutputJSON {
		out, err := json.MarshalIndent(listed, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal notes: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	if len(listed) == 0 {
		fmt.Println("No notes stored.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tUPLOADER\tQUESTION")
	for _, n := range listed {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.ID, n.CreatedAt, n.Uploader, n.Question)
	}
	return w.Flush()
}
