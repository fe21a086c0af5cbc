// Package analysis turns content-safety results into the summaries the API returns.
package analysis

import (
	"fmt"
	"regexp"
	"strings"
)

// Label is one content-safety label attached to a span of speech.
type Label struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Severity   float64 `json:"severity"`
}

// Timestamp bounds a span in milliseconds.
type Timestamp struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Result is one flagged span.
type Result struct {
	Text      string    `json:"text"`
	Labels    []Label   `json:"labels"`
	Timestamp Timestamp `json:"timestamp"`
}

type WordFrequency struct {
	Word      string `json:"word"`
	Frequency int    `json:"frequency"`
}

type Occurrence struct {
	TimeStart string  `json:"time_start"`
	TimeEnd   string  `json:"time_end"`
	Word      string  `json:"word"`
	Severity  float64 `json:"severity"`
}

type Report struct {
	WordFrequency []WordFrequency `json:"wordFrequency"`
	Timestamps    []Occurrence    `json:"timestamps"`
}

// AnalyzeContent counts labels (case-insensitively, in first-seen order) and
// lists every occurrence with formatted timestamps.
func AnalyzeContent(results []Result) Report {
	report := Report{
		WordFrequency: []WordFrequency{},
		Timestamps:    []Occurrence{},
	}
	index := map[string]int{}

	for _, item := range results {
		for _, label := range item.Labels {
			word := strings.ToLower(label.Label)
			if i, ok := index[word]; ok {
				report.WordFrequency[i].Frequency++
			} else {
				index[word] = len(report.WordFrequency)
				report.WordFrequency = append(report.WordFrequency, WordFrequency{Word: word, Frequency: 1})
			}
			report.Timestamps = append(report.Timestamps, Occurrence{
				TimeStart: FormatTimestamp(item.Timestamp.Start),
				TimeEnd:   FormatTimestamp(item.Timestamp.End),
				Word:      word,
				Severity:  label.Severity,
			})
		}
	}
	return report
}

// FormatTimestamp renders milliseconds as "1h 2m 3s", dropping hours when zero.
func FormatTimestamp(ms int64) string {
	total := ms / 1000
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

var (
	fenceStart = regexp.MustCompile("^```markdown\\s*")
	fenceEnd   = regexp.MustCompile("\\s*```$")
)

// CleanMarkdown strips a ```markdown fence that models like to wrap output in.
func CleanMarkdown(s string) string {
	s = fenceStart.ReplaceAllString(s, "")
	return fenceEnd.ReplaceAllString(s, "")
}
