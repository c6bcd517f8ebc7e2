package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var uploadContentType string

func init() {
	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "", "override the detected content type")
}

// uploadCmd uploads a document for indexing
var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document for indexing",
	Long: `Upload a document to the askd server. The server stores the file
immediately and indexes it in the background; it becomes searchable
shortly after the upload is acknowledged.

Examples:
  # Upload a text document
  askctl upload handbook.txt

  # Upload with an explicit content type
  askctl upload data.csv --content-type text/csv

  # Upload with an uploader identity
  askctl upload handbook.txt --uploader ada`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

// UploadResponse matches internal/httpapi UploadResponse
type UploadResponse struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// runUpload handles the upload command
func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}

	contentType := uploadContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	// Build the part by hand so the file's content type is carried
	// instead of multipart's default octet-stream.
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to build multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/documents", serverURL)
	httpReq, err := http.NewRequest("POST", url, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	setUploader(httpReq)

	resp, err := newClient(60 * time.Second).Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return readError(resp)
	}

	var uploadResp UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Uploaded: %s (%s)\n", uploadResp.Filename, uploadResp.Status)
	return nil
}
