package indexer

import (
	"fmt"
	"log"
	"time"
)

// ChunkSize controls how a remote scan's date range is split into query
// windows. DICOM StudyDate has day resolution, so HOURLY and DAILY both
// collapse to single-day chunks.
type ChunkSize string

const (
	ChunkHourly  ChunkSize = "HOURLY"
	ChunkDaily   ChunkSize = "DAILY"
	ChunkWeekly  ChunkSize = "WEEKLY"
	ChunkMonthly ChunkSize = "MONTHLY"
	ChunkYearly  ChunkSize = "YEARLY"
	ChunkNone    ChunkSize = "NONE"
)

// DateChunk is one inclusive [From, To] query window in YYYYMMDD form.
// Either bound may be empty for an open-ended window.
type DateChunk struct {
	From string
	To   string
}

const dicomDateLayout = "20060102"

// GenerateDateChunks splits [from, to] into contiguous, non-overlapping
// chunks covering exactly the range, the last chunk clipped to the end.
// Missing bounds or ChunkNone yield a single pass-through chunk. Reversed
// bounds are swapped with a warning.
func GenerateDateChunks(from, to string, size ChunkSize) ([]DateChunk, error) {
	if from == "" || to == "" || size == "" || size == ChunkNone {
		return []DateChunk{{From: from, To: to}}, nil
	}

	start, err := time.Parse(dicomDateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", from, err)
	}
	end, err := time.Parse(dicomDateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", to, err)
	}
	if start.After(end) {
		log.Printf("indexer: date range %s-%s is reversed, swapping", from, to)
		start, end = end, start
	}

	var step func(time.Time) time.Time
	switch size {
	case ChunkHourly, ChunkDaily:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case ChunkWeekly:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
	case ChunkMonthly:
		step = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	case ChunkYearly:
		step = func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }
	default:
		return nil, fmt.Errorf("unknown chunk size %q", size)
	}

	var chunks []DateChunk
	for cur := start; !cur.After(end); {
		next := step(cur)
		chunkEnd := next.AddDate(0, 0, -1)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, DateChunk{
			From: cur.Format(dicomDateLayout),
			To:   chunkEnd.Format(dicomDateLayout),
		})
		cur = next
	}
	return chunks, nil
}

// label renders a chunk for progress messages ("2024-03-01 - 2024-03-07").
func (c DateChunk) label() string {
	if c.From == "" && c.To == "" {
		return "all dates"
	}
	return prettyDate(c.From) + " - " + prettyDate(c.To)
}

func prettyDate(d string) string {
	t, err := time.Parse(dicomDateLayout, d)
	if err != nil {
		return d
	}
	return t.Format("2006-01-02")
}
