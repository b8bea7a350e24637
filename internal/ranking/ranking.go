// Package ranking orders simulation results by win probability and formats
// them for display.
package ranking

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/models"
)

// FavouritesCount is the size of the favourites panel
const FavouritesCount = 3

// UnknownMarker is shown for optional values the backend did not compute
const UnknownMarker = "-"

// SortedAll returns a copy of results ordered by win probability, highest
// first. Ties keep backend order so repeated renders of the same input agree.
func SortedAll(results []models.TeamProbability) []models.TeamProbability {
	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b models.TeamProbability) int {
		return cmp.Compare(b.WinProb, a.WinProb)
	})
	return sorted
}

// TopN returns the n most likely winners; always a prefix of SortedAll
func TopN(results []models.TeamProbability, n int) []models.TeamProbability {
	sorted := SortedAll(results)
	n = max(0, min(n, len(sorted)))
	return sorted[:n]
}

// Row is one display line of the results table
type Row struct {
	Rank      int
	Team      string
	WinProb   string
	FinalProb string
	SemiProb  string
	Wins      string
	Finals    string
	Semis     string
}

// Rows renders results in ranked order
func Rows(results []models.TeamProbability) []Row {
	return toRows(SortedAll(results))
}

// TopRows renders the n most likely winners
func TopRows(results []models.TeamProbability, n int) []Row {
	return toRows(TopN(results, n))
}

func toRows(sorted []models.TeamProbability) []Row {
	rows := make([]Row, 0, len(sorted))
	for i, r := range sorted {
		rows = append(rows, Row{
			Rank:      i + 1,
			Team:      r.Team,
			WinProb:   FormatPercent(r.WinProb),
			FinalProb: FormatProbability(r.FinalProb),
			SemiProb:  FormatProbability(r.SemiProb),
			Wins:      FormatCount(r.Wins),
			Finals:    FormatCount(r.Finals),
			Semis:     FormatCount(r.Semis),
		})
	}
	return rows
}

// FormatPercent renders a probability as a percentage with one decimal
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

// FormatProbability renders an optional probability; nil is UnknownMarker, 0 is "0.0%"
func FormatProbability(p *float64) string {
	if p == nil {
		return UnknownMarker
	}
	return FormatPercent(*p)
}

// FormatCount renders an optional count; nil is UnknownMarker, 0 is "0"
func FormatCount(c *int) string {
	if c == nil {
		return UnknownMarker
	}
	return strconv.Itoa(*c)
}
