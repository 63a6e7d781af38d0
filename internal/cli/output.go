package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/shivanshkc/streamlat/internal/config"
	"github.com/shivanshkc/streamlat/pkg/bench"
)

// resultHeader names the columns of the merged result, in order.
var resultHeader = table.Row{
	"sample_index", "sample_written_at", "sample_received_at", "latency", "latency_ms",
	"dt", "batch_size", "n_samples", "sample_size_bytes", "num_readers",
}

// renderResult writes the merged result in the requested format.
func renderResult(w io.Writer, result bench.Result, format string) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(resultHeader)

	for _, row := range result.Rows {
		t.AppendRow(table.Row{
			row.SampleIndex,
			formatFloat(row.SampleWrittenAt),
			formatFloat(row.SampleReceivedAt),
			formatFloat(row.Latency),
			strconv.FormatFloat(row.LatencyMS, 'f', 6, 64),
			strconv.FormatFloat(row.DT, 'g', -1, 64),
			row.BatchSize,
			row.NSamples,
			row.SampleSizeBytes,
			row.NumReaders,
		})
	}

	switch format {
	case config.FormatCSV:
		t.RenderCSV()
	case config.FormatMarkdown:
		t.RenderMarkdown()
	case config.FormatTable, "":
		t.SetStyle(table.StyleLight)
		t.Style().Title.Colors = text.Colors{text.Bold}
		t.SetTitle("stream " + result.StreamName)
		t.SetCaption(fmt.Sprintf("%d rows (%d priming batches, %d timed batches)",
			len(result.Rows), result.Primed, result.Timed))
		t.Render()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	return nil
}

// formatFloat prints monotonic seconds with nanosecond resolution.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 9, 64)
}
