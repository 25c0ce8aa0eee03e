// Package cli provides output helpers for the mybook command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bblohar/MyBook-project/internal/models"
	"github.com/bblohar/MyBook-project/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	writeSearchResultsText(w, response)
	return nil
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	if response.NoMatches || len(response.Results) == 0 {
		fmt.Fprintf(w, "\nNo books matched %q (%dms)\n", response.Query, response.QueryTime)
		return
	}
	fmt.Fprintf(w, "\nFound %d books in %dms\n\n", len(response.Results), response.QueryTime)
	for _, result := range response.Results {
		writeOneResult(w, result)
	}
}

func writeOneResult(w io.Writer, result *models.SearchResult) {
	b := result.Book
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Distance: %.4f | ID: %d\n", result.Rank, result.Distance, b.ID)
	fmt.Fprintf(w, "Title: %s\n", b.Title)
	fmt.Fprintf(w, "Author: %s\n", utils.OrDefault(b.Author, "N/A"))
	fmt.Fprintf(w, "Location: %s", utils.OrDefault(b.Location, "N/A"))
	if b.Section != "" {
		fmt.Fprintf(w, " / %s", b.Section)
	}
	fmt.Fprintln(w)
	if !b.Available {
		fmt.Fprintln(w, "(currently unavailable)")
	}
	if b.Description != "" {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(b.Description, 200))
	}
	fmt.Fprintln(w)
}

// WriteStatus writes a status report to w in the given format.
func WriteStatus(w io.Writer, status *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "books:              %d\n", status.Books)
	fmt.Fprintf(w, "indexable_books:    %d   # books with a description\n", status.IndexableBooks)
	fmt.Fprintf(w, "search_available:   %t\n", status.SearchAvailable)
	fmt.Fprintf(w, "index_type:         %s\n", status.Index.Type)
	fmt.Fprintf(w, "faiss_available:    %t\n", status.Index.FAISSAvailable)
	fmt.Fprintf(w, "index_entries:      %d\n", status.Index.Entries)
	if status.Index.Built {
		fmt.Fprintf(w, "index_loaded:       %s\n", humanize.Time(status.Index.LoadedAt))
	} else {
		fmt.Fprintf(w, "index_loaded:       never   # run a rebuild\n")
	}
	if status.Index.Path != "" {
		fmt.Fprintf(w, "index_path:         %s\n", status.Index.Path)
	}
	if status.Dimensions > 0 {
		fmt.Fprintf(w, "embedding_dims:     %d\n", status.Dimensions)
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage:         %s\n", humanize.Bytes(uint64(*status.DiskUsageBytes)))
	}
	if job := status.LastRebuild; job != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# last rebuild")
		fmt.Fprintf(w, "job_id:             %s\n", job.ID)
		fmt.Fprintf(w, "status:             %s\n", job.Status)
		fmt.Fprintf(w, "started:            %s\n", humanize.Time(job.StartedAt))
		if job.Result != nil {
			fmt.Fprintf(w, "indexed:            %s books in %s\n",
				humanize.Comma(int64(job.Result.Indexed)), job.Result.Duration.Round(time.Millisecond))
		}
		if job.Error != "" {
			fmt.Fprintf(w, "error:              %s\n", job.Error)
		}
	}
	return nil
}

// WriteRebuildResult writes the outcome of an offline rebuild.
func WriteRebuildResult(w io.Writer, res *models.RebuildResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Indexed %s books in %s\n", humanize.Comma(int64(res.Indexed)), res.Duration.Round(time.Millisecond))
	if res.EmbeddingCacheError != "" {
		fmt.Fprintf(w, "warning: cached embeddings not updated: %s\n", res.EmbeddingCacheError)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
