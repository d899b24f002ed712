package session

import (
	"math"
	"time"

	"github.com/moyoez/submitsession/types"
)

const (
	filesWeight = 0.6
	linksWeight = 0.3
	textWeight  = 0.1
)

// Components are the per-kind completion fractions and their weights.
type Components struct {
	Files, Links, Text                   float64
	FilesWeight, LinksWeight, TextWeight float64
}

// WeightSum is never zero.
func (c Components) WeightSum() float64 {
	sum := c.FilesWeight + c.LinksWeight + c.TextWeight
	if sum == 0 {
		return 1
	}
	return sum
}

// Breakdown computes the component fractions of s.
func Breakdown(s types.Session) Components {
	c := Components{Files: 1, Links: 1}

	if n := len(s.Files); n > 0 {
		total := 0
		for _, f := range s.Files {
			total += Clamp(f.Progress)
		}
		c.Files = float64(total) / float64(n) / 100
		c.FilesWeight = filesWeight
	}

	if n := len(s.Links); n > 0 {
		done := 0
		for _, l := range s.Links {
			if l.Status == types.ItemCompleted {
				done++
			}
		}
		c.Links = float64(done) / float64(n)
		c.LinksWeight = linksWeight
	}

	if s.TextContent != "" {
		c.TextWeight = textWeight
	}
	if s.TextProcessed {
		c.Text = 1
	}
	return c
}

// OverallProgress is the weighted completion of s, 0..100.
func OverallProgress(s types.Session) int {
	c := Breakdown(s)
	weighted := c.Files*c.FilesWeight + c.Links*c.LinksWeight + c.Text*c.TextWeight
	return Clamp(int(math.Round(100 * weighted / c.WeightSum())))
}

// EstimateRemaining extrapolates the remaining time from elapsed time and progress.
// It returns nil before the run starts and at 0% or 100%.
func EstimateRemaining(start, now time.Time, progress int) *time.Duration {
	if start.IsZero() || progress <= 0 || progress >= 100 {
		return nil
	}
	elapsed := now.Sub(start)
	total := time.Duration(float64(elapsed) / (float64(progress) / 100))
	remaining := max(total-elapsed, 0)
	return &remaining
}

// Estimate is the aggregated progress of a session at one instant.
type Estimate struct {
	Progress  int
	Remaining *time.Duration
}

// Aggregate computes progress and ETA for s, treating text as done when textDone is set.
func Aggregate(s types.Session, textDone bool, now time.Time) Estimate {
	s.TextProcessed = s.TextProcessed || textDone
	p := OverallProgress(s)
	return Estimate{Progress: p, Remaining: EstimateRemaining(s.StartTime, now, p)}
}

// Refresh recomputes Progress and EstimatedTimeRemaining in place.
// Outside idle the stored progress never goes down; only a running session has an ETA.
func Refresh(s *types.Session, now time.Time) {
	e := Aggregate(*s, s.TextProcessed, now)
	if s.Status != types.StatusIdle && e.Progress < s.Progress {
		e.Progress = s.Progress
		e.Remaining = EstimateRemaining(s.StartTime, now, e.Progress)
	}
	if !s.Status.Running() {
		e.Remaining = nil
	}
	s.Progress = e.Progress
	s.EstimatedTimeRemaining = e.Remaining
}
