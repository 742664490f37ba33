// Package export renders stored aggregates into downloadable formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/newsworthy/news-agent/internal/news"
)

// Format names a supported export encoding.
type Format string

// Supported export formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a client-supplied format string. The empty string
// defaults to JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", news.Errorf(news.KindValidation, "unsupported export format %q", s)
	}
}

// ContentType returns the MIME type to serve for the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Filename builds the attachment name for a job export.
func (f Format) Filename(jobID string) string {
	return fmt.Sprintf("news_%s.%s", jobID, f)
}

// Write renders the aggregate in the given format.
func Write(w io.Writer, f Format, agg news.Aggregate) error {
	if f == FormatCSV {
		return writeCSV(w, agg)
	}
	return writeJSON(w, agg)
}

func writeJSON(w io.Writer, agg news.Aggregate) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(agg); err != nil {
		return news.NewError(news.KindStorage, "encode export", err)
	}
	return nil
}

var csvHeader = []string{
	"relevance",
	"article_id",
	"title",
	"description",
	"link",
	"source",
	"published_at",
	"keywords",
	"categories",
	"reasoning",
	"error",
}

func writeCSV(w io.Writer, agg news.Aggregate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return news.NewError(news.KindStorage, "write csv header", err)
	}
	for _, o := range agg.Articles {
		row := []string{
			string(o.Relevance),
			o.Article.ID,
			o.Article.Title,
			o.Article.Description,
			o.Article.Link,
			o.Article.SourceName,
			o.Article.PublishedAt,
			strings.Join(o.Article.Keywords, "; "),
			strings.Join(o.Article.Categories, "; "),
			o.Reasoning,
			o.Error,
		}
		if err := cw.Write(row); err != nil {
			return news.NewError(news.KindStorage, "write csv row", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return news.NewError(news.KindStorage, "flush csv", err)
	}
	return nil
}
