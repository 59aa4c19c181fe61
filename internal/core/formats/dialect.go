package formats

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/JonMunkholm/tabledock/internal/core"
)

// candidateDelimiters are tried in order; earlier ones win ties.
var candidateDelimiters = []rune{',', '\t', ';', '|'}

// maxSniffRecords bounds how many records of the sample are parsed per
// candidate delimiter.
const maxSniffRecords = 100

// sniffDialect detects the dialect of a decoded text sample.
//
// Every candidate delimiter is scored by how consistently it splits the
// sample's records into the same number of fields. The most consistent
// delimiter producing more than one field wins. A sample where no
// candidate splits anything is a single-column file.
func sniffDialect(sample string) (*core.Dialect, error) {
	if strings.TrimSpace(sample) == "" {
		return nil, &core.NotSniffableError{Reason: "file is empty"}
	}

	d := &core.Dialect{
		QuoteChar:      `"`,
		Quoting:        core.QuoteMinimal,
		DoubleQuote:    true,
		LineTerminator: lineTerminator(sample),
	}
	if d.LineTerminator == "\r" {
		sample = strings.ReplaceAll(sample, "\r", "\n")
	}

	var (
		best      rune
		bestScore float64
		parsed    bool
	)
	for _, delim := range candidateDelimiters {
		score, width, ok := scoreDelimiter(sample, delim)
		if !ok {
			continue
		}
		parsed = true
		if width > 1 && score > bestScore {
			best, bestScore = delim, score
		}
	}

	switch {
	case best != 0:
	case parsed:
		best = ','
	default:
		return nil, &core.NotSniffableError{Reason: "could not determine the delimiter"}
	}

	d.Delimiter = string(best)
	d.SkipInitialSpace = followedBySpace(sample, d.Delimiter)
	if allQuoted(firstLine(sample), d.Delimiter) {
		d.Quoting = core.QuoteAll
	}
	return d, nil
}

// scoreDelimiter parses sample with delim and returns the share of records
// having the most common field count, and that count. ok is false when the
// sample does not parse with delim.
func scoreDelimiter(sample string, delim rune) (score float64, width int, ok bool) {
	r := csv.NewReader(strings.NewReader(sample))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	counts := make(map[int]int)
	records := 0
	for records < maxSniffRecords {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A truncated sample can end inside a quoted field.
			if records >= 2 {
				break
			}
			return 0, 0, false
		}
		counts[len(rec)]++
		records++
	}
	if records == 0 {
		return 0, 0, false
	}

	for n, c := range counts {
		if c > counts[width] || (c == counts[width] && n > width) {
			width = n
		}
	}
	return float64(counts[width]) / float64(records), width, true
}

func lineTerminator(sample string) string {
	switch {
	case strings.Contains(sample, "\r\n"):
		return "\r\n"
	case strings.Contains(sample, "\r") && !strings.Contains(sample, "\n"):
		return "\r"
	default:
		return "\n"
	}
}

func followedBySpace(sample, delim string) bool {
	total := strings.Count(sample, delim)
	return total > 0 && strings.Count(sample, delim+" ") == total
}

func firstLine(sample string) string {
	if i := strings.IndexByte(sample, '\n'); i >= 0 {
		return strings.TrimRight(sample[:i], "\r")
	}
	return sample
}

func allQuoted(line, delim string) bool {
	fields := strings.Count(line, delim) + 1
	return strings.HasPrefix(line, `"`) && strings.HasSuffix(line, `"`) &&
		strings.Count(line, `"`+delim+`"`) == fields-1
}
