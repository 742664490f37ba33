package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newsworthy/news-agent/internal/news"
)

func sampleAggregate() news.Aggregate {
	return news.Aggregate{
		JobID:       "job-1",
		Topic:       "fusion",
		GeneratedAt: time.Unix(1000, 0).UTC(),
		Articles: []news.Outcome{
			{
				Article: news.Article{
					ID:          "a1",
					Title:       "Tokamak, record run",
					Link:        "https://n.example/1",
					Description: "A sustained \"plasma\" run",
					SourceName:  "Example Wire",
					Keywords:    []string{"fusion", "plasma"},
					Categories:  []string{"science"},
				},
				Relevance: news.RelevanceHigh,
				Reasoning: "reports a record",
			},
			{
				Article:   news.Article{ID: "a2", Link: "https://n.example/2"},
				ErrorKind: news.KindUpstream,
				Error:     "model unavailable",
			},
		},
		Summary: news.Summary{
			Total:     2,
			Succeeded: 1,
			Failed:    1,
			RelevanceCounts: map[news.Relevance]int{
				news.RelevanceHigh: 1,
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, f)

	f, err = ParseFormat("CSV")
	require.NoError(t, err)
	require.Equal(t, FormatCSV, f)

	_, err = ParseFormat("xlsx")
	require.True(t, news.IsKind(err, news.KindValidation))
}

func TestWriteJSONRoundTrips(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleAggregate()))

	var got news.Aggregate
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, sampleAggregate(), got)
}

func TestWriteCSVQuotesAndColumns(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleAggregate()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, csvHeader, rows[0])

	require.Equal(t, "Very Relevant", rows[1][0])
	require.Equal(t, "Tokamak, record run", rows[1][2])
	require.Equal(t, "fusion; plasma", rows[1][7])

	require.Equal(t, "", rows[2][0])
	require.Equal(t, "model unavailable", rows[2][10])
}

func TestFormatMetadata(t *testing.T) {
	t.Parallel()

	require.Equal(t, "application/json", FormatJSON.ContentType())
	require.Equal(t, "text/csv", FormatCSV.ContentType())
	require.Equal(t, "news_job-1.csv", FormatCSV.Filename("job-1"))
}
