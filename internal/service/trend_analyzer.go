package service

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bdougie/contributor-enrichment/internal/models"
)

const (
	day = 24 * time.Hour

	steadyBand             = 10.0
	shortTermSnapshotGap   = 7
	snapshotHistoryLimit   = 8
	longTermGroupSize      = 4
	majorShiftChanges      = 3
	predictedFocusSize     = 3
	predictedFocusTitles   = 10
	predictedFocusLookback = 30 * day
)

// TrendRepository is the data the trend analyzer reads.
type TrendRepository interface {
	CountContributions(ctx context.Context, contributorID, workspaceID uuid.UUID, window models.ActivityWindow) (int, error)
	// FetchHistoricalSnapshots returns up to limit snapshots, newest first.
	FetchHistoricalSnapshots(ctx context.Context, contributorID, workspaceID uuid.UUID, limit int) ([]models.AnalyticsSnapshot, error)
	// FetchRecentTitles returns up to limit titles created after since, newest first.
	FetchRecentTitles(ctx context.Context, contributorID, workspaceID uuid.UUID, since time.Time, limit int) ([]string, error)
}

// TrendAnalyzer derives velocity, topic shifts and predicted focus for a contributor.
type TrendAnalyzer struct {
	repo TrendRepository
	now  func() time.Time
}

// NewTrendAnalyzer creates a new trend analyzer.
func NewTrendAnalyzer(repo TrendRepository) *TrendAnalyzer {
	return &TrendAnalyzer{repo: repo, now: time.Now}
}

// AnalyzeTrends computes the trend analysis of contributorID in workspaceID. currentTopics
// are the contributor's topics as written by the topic phase of the same run.
func (a *TrendAnalyzer) AnalyzeTrends(ctx context.Context, contributorID, workspaceID uuid.UUID, currentTopics []string) (*models.TrendAnalysis, error) {
	now := a.now()

	windows := [4]models.ActivityWindow{
		{Start: now.Add(-7 * day), End: now},
		{Start: now.Add(-14 * day), End: now.Add(-7 * day)},
		{Start: now.Add(-30 * day), End: now},
		{Start: now.Add(-60 * day), End: now.Add(-30 * day)},
	}
	var counts [4]int

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range windows {
		g.Go(func() error {
			n, err := a.repo.CountContributions(gctx, contributorID, workspaceID, w)
			if err != nil {
				return fmt.Errorf("count contributions [%s, %s): %w",
					w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339), err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	velocity := ComputeVelocity(counts[0], counts[1], counts[2], counts[3])

	snapshots, err := a.repo.FetchHistoricalSnapshots(ctx, contributorID, workspaceID, snapshotHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch historical snapshots: %w", err)
	}
	shifts := DetectTopicShifts(snapshots)

	titles, err := a.repo.FetchRecentTitles(ctx, contributorID, workspaceID, now.Add(-predictedFocusLookback), predictedFocusTitles)
	if err != nil {
		return nil, fmt.Errorf("fetch recent titles: %w", err)
	}

	confidence := 0.0
	if velocity.Current30d > 0 {
		confidence += 0.5
	}
	if len(shifts) > 0 {
		confidence += 0.5
	}

	return &models.TrendAnalysis{
		ContributorID:  contributorID,
		WorkspaceID:    workspaceID,
		Velocity:       velocity,
		TopicShifts:    shifts,
		PredictedFocus: PredictFocus(titles, currentTopics),
		Confidence:     confidence,
	}, nil
}

// ComputeVelocity builds velocity metrics from the four window totals. The change percent
// compares the 30-day windows, rounded to two decimals, and is 0 when the previous window is empty.
func ComputeVelocity(current7d, previous7d, current30d, previous30d int) models.VelocityMetrics {
	changePercent := 0.0
	if previous30d > 0 {
		changePercent = float64(current30d-previous30d) * 100 / float64(previous30d)
		changePercent = math.Round(changePercent*100) / 100
	}

	return models.VelocityMetrics{
		Current7d:     current7d,
		Previous7d:    previous7d,
		Current30d:    current30d,
		Previous30d:   previous30d,
		Trend:         classifyTrend(changePercent),
		ChangePercent: changePercent,
	}
}

func classifyTrend(changePercent float64) models.Trend {
	switch {
	case changePercent >= steadyBand:
		return models.TrendAccelerating
	case changePercent <= -steadyBand:
		return models.TrendDeclining
	default:
		return models.TrendSteady
	}
}

// DetectTopicShifts compares historical topic sets. snapshots must be ordered newest first.
// The short-term shift compares the newest snapshot with the one about a week older; the
// 30-day shift compares the union of the four newest with the union of the next four and
// needs more than four snapshots. Fewer than two snapshots yield an empty list.
func DetectTopicShifts(snapshots []models.AnalyticsSnapshot) []models.TopicShift {
	shifts := make([]models.TopicShift, 0, 2)
	n := len(snapshots)
	if n < 2 {
		return shifts
	}

	older := snapshots[min(shortTermSnapshotGap, n-1)].Topics
	if shift, ok := topicShift(older, snapshots[0].Topics, models.Timeframe7d); ok {
		shifts = append(shifts, shift)
	}

	if n > longTermGroupSize {
		recent := unionTopics(snapshots[:longTermGroupSize])
		prior := unionTopics(snapshots[longTermGroupSize:min(n, 2*longTermGroupSize)])
		if shift, ok := topicShift(prior, recent, models.Timeframe30d); ok {
			shifts = append(shifts, shift)
		}
	}

	return shifts
}

func topicShift(from, to []string, timeframe models.Timeframe) (models.TopicShift, bool) {
	fromSet := toSet(from)
	toTopics := toSet(to)

	changes := 0
	for t := range toTopics {
		if !fromSet[t] {
			changes++
		}
	}
	for t := range fromSet {
		if !toTopics[t] {
			changes++
		}
	}
	if changes == 0 {
		return models.TopicShift{}, false
	}

	all := len(unionTopicLists(from, to))
	significance := models.SignificanceMinor
	if changes >= majorShiftChanges {
		significance = models.SignificanceMajor
	}

	return models.TopicShift{
		From:         dedupe(from),
		To:           dedupe(to),
		Timeframe:    timeframe,
		Significance: significance,
		Confidence:   math.Min(1, float64(changes)/float64(max(1, all))),
	}, true
}

// PredictFocus returns the three most frequent tokens longer than three characters across
// recent titles, or the first three current topics when there are no recent titles.
func PredictFocus(recentTitles, currentTopics []string) []string {
	if len(recentTitles) == 0 {
		topics := dedupe(currentTopics)
		if len(topics) > predictedFocusSize {
			topics = topics[:predictedFocusSize]
		}
		return topics
	}

	if len(recentTitles) > predictedFocusTitles {
		recentTitles = recentTitles[:predictedFocusTitles]
	}
	ranked := rankTokens(recentTitles, func(tok string) bool {
		return utf8.RuneCountInString(tok) > 3
	})
	if len(ranked) > predictedFocusSize {
		ranked = ranked[:predictedFocusSize]
	}
	return ranked
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// dedupe drops empty and repeated values, keeping first appearance order.
func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func unionTopicLists(lists ...[]string) []string {
	var all []string
	for _, l := range lists {
		all = append(all, l...)
	}
	return dedupe(all)
}

func unionTopics(snapshots []models.AnalyticsSnapshot) []string {
	lists := make([][]string, 0, len(snapshots))
	for _, s := range snapshots {
		lists = append(lists, s.Topics)
	}
	return unionTopicLists(lists...)
}
