// Package rate derives speaking-rate metrics from word counts and elapsed time.
package rate

import (
	"math"
	"time"
)

// Category buckets a speaking rate. Values are the persisted record strings.
type Category string

const (
	Slow     Category = "Slow"
	Normal   Category = "Normal"
	Fast     Category = "Fast"
	VeryFast Category = "Very Fast"
	Unclear  Category = "Unclear"
)

// ComputeWPM converts a word count over an elapsed duration into whole
// words per minute. Elapsed durations of zero or less yield 0.
func ComputeWPM(wordCount int, elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}
	wpm := int(math.Round(float64(wordCount) / elapsed.Minutes()))
	if wpm < 0 {
		return 0
	}
	return wpm
}

// Classify maps words per minute onto a Category. Unclear is never assigned
// by magnitude; callers decide when no reliable signal exists.
func Classify(wordsPerMinute int) Category {
	switch {
	case wordsPerMinute < 0:
		return Unclear
	case wordsPerMinute <= 119:
		return Slow
	case wordsPerMinute <= 150:
		return Normal
	case wordsPerMinute <= 200:
		return Fast
	default:
		return VeryFast
	}
}
