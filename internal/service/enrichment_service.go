package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/bdougie/contributor-enrichment/internal/errors"
	"github.com/bdougie/contributor-enrichment/internal/models"
	"github.com/bdougie/contributor-enrichment/internal/observability"
	"github.com/bdougie/contributor-enrichment/pkg/cache"
)

const (
	maxContributorTopics = 5
	maxTopContributors   = 5
	maxSampleTitles      = 10
	usernameCacheSize    = 10000
	usernameCacheName    = "contributor_by_username"
)

// ContributionItemsRepository loads a workspace's embedded contribution items.
type ContributionItemsRepository interface {
	FetchEmbeddedItems(ctx context.Context, workspaceID uuid.UUID, since time.Time) ([]models.ContributionItem, error)
}

// ContributorsRepository reads contributors and writes their derived fields.
type ContributorsRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contributor, error)
	GetByUsername(ctx context.Context, username string) (*models.Contributor, error)
	ListWorkspaceContributorIDs(ctx context.Context, workspaceID uuid.UUID) ([]uuid.UUID, error)
	UpdateTopics(ctx context.Context, id uuid.UUID, topics []string) error
	UpdateAnalytics(ctx context.Context, id uuid.UUID, persona *models.ContributorPersona, quality *models.QualityScoreBreakdown, at time.Time) error
}

// WorkspacesRepository lists workspaces to enrich.
type WorkspacesRepository interface {
	ListActive(ctx context.Context) ([]models.Workspace, error)
}

// SnapshotsRepository upserts dated analytics rows.
type SnapshotsRepository interface {
	UpsertSnapshot(ctx context.Context, snapshot *models.AnalyticsSnapshot) error
	UpsertWorkspaceTopicSnapshot(ctx context.Context, snapshot *models.WorkspaceTopicSnapshot) error
}

// Clusterer partitions embedded items.
type Clusterer interface {
	Cluster(ctx context.Context, items []models.ContributionItem, opts ClusterOptions) (*ClusterRun, error)
}

// Labeler names a cluster from sample titles.
type Labeler interface {
	Label(ctx context.Context, cluster models.EmbeddingCluster, sampleTitles []string) TopicLabel
}

// PersonaSource classifies a contributor.
type PersonaSource interface {
	Classify(ctx context.Context, contributorID, workspaceID uuid.UUID) (*models.ContributorPersona, error)
}

// QualitySource scores a contributor.
type QualitySource interface {
	Score(ctx context.Context, contributorID, workspaceID uuid.UUID) (*models.QualityScoreBreakdown, error)
}

// TrendSource analyzes a contributor's trends.
type TrendSource interface {
	AnalyzeTrends(ctx context.Context, contributorID, workspaceID uuid.UUID, currentTopics []string) (*models.TrendAnalysis, error)
}

// EnrichmentDeps are the collaborators of EnrichmentService. Metrics and CacheMetrics may be nil.
type EnrichmentDeps struct {
	Items        ContributionItemsRepository
	Contributors ContributorsRepository
	Workspaces   WorkspacesRepository
	Snapshots    SnapshotsRepository
	Clusterer    Clusterer
	Labeler      Labeler
	Persona      PersonaSource
	Quality      QualitySource
	Trends       TrendSource
	Metrics      observability.EnrichmentMetrics
	CacheMetrics observability.CacheMetrics
}

// EnrichmentOptions tunes a workspace run.
type EnrichmentOptions struct {
	Cluster      ClusterOptions
	BatchSize    int
	LookbackDays int
}

// DefaultEnrichmentOptions returns k=7, batches of 5 and a 90-day lookback.
func DefaultEnrichmentOptions() EnrichmentOptions {
	return EnrichmentOptions{
		Cluster:      DefaultClusterOptions(),
		BatchSize:    DefaultBatchSize,
		LookbackDays: 90,
	}
}

// EnrichmentService orchestrates workspace topic clustering and per-contributor enrichment.
type EnrichmentService struct {
	deps      EnrichmentDeps
	opts      EnrichmentOptions
	usernames *cache.LoaderCache[string, uuid.UUID]
	now       func() time.Time
}

// NewEnrichmentService creates a new enrichment service.
func NewEnrichmentService(deps EnrichmentDeps, opts EnrichmentOptions) (*EnrichmentService, error) {
	usernames, err := cache.NewLoaderCache[string, uuid.UUID](usernameCacheSize, func(s string) string { return s })
	if err != nil {
		return nil, fmt.Errorf("create username cache: %w", err)
	}

	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.LookbackDays < 1 {
		opts.LookbackDays = 90
	}

	return &EnrichmentService{
		deps:      deps,
		opts:      opts,
		usernames: usernames,
		now:       time.Now,
	}, nil
}

// EnrichContributor computes persona and quality concurrently, then trends, and writes the
// merged result as the day's snapshot plus the contributor's analytics fields. Re-running on
// the same day overwrites the same snapshot row.
func (s *EnrichmentService) EnrichContributor(ctx context.Context, contributorID, workspaceID uuid.UUID) (snapshot *models.AnalyticsSnapshot, err error) {
	ctx, span := observability.StartSpan(ctx, "enrichment.contributor",
		attribute.String("contributor_id", contributorID.String()),
		attribute.String("workspace_id", workspaceID.String()),
	)
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.recordContributor(ctx, "total", outcome)
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordContributorDuration(ctx, time.Since(start), outcome)
		}
		observability.EndSpan(span, err)
	}()

	contributor, err := s.deps.Contributors.GetByID(ctx, contributorID)
	if err != nil {
		return nil, fmt.Errorf("get contributor: %w", err)
	}

	var (
		persona *models.ContributorPersona
		quality *models.QualityScoreBreakdown
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.deps.Persona.Classify(gctx, contributorID, workspaceID)
		s.recordPhase(gctx, "persona", err)
		if err != nil {
			return fmt.Errorf("classify persona: %w", err)
		}
		persona = p
		return nil
	})
	g.Go(func() error {
		q, err := s.deps.Quality.Score(gctx, contributorID, workspaceID)
		s.recordPhase(gctx, "quality", err)
		if err != nil {
			return fmt.Errorf("score quality: %w", err)
		}
		quality = q
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	trends, err := s.deps.Trends.AnalyzeTrends(ctx, contributorID, workspaceID, contributor.PrimaryTopics)
	s.recordPhase(ctx, "trends", err)
	if err != nil {
		return nil, fmt.Errorf("analyze trends: %w", err)
	}

	now := s.now()
	trendConfidence := trends.Confidence
	snapshot = &models.AnalyticsSnapshot{
		ContributorID:   contributorID,
		WorkspaceID:     workspaceID,
		SnapshotDate:    models.SnapshotDate(now),
		Topics:          contributor.PrimaryTopics,
		Persona:         persona,
		Quality:         quality,
		Velocity:        &trends.Velocity,
		TopicShifts:     trends.TopicShifts,
		PredictedFocus:  trends.PredictedFocus,
		TrendConfidence: &trendConfidence,
	}

	if err := s.deps.Snapshots.UpsertSnapshot(ctx, snapshot); err != nil {
		s.recordPhase(ctx, "persist", err)
		s.recordSnapshotError(ctx, "contributor")
		return nil, apperrors.WrapPersistence("upsert contributor snapshot", err)
	}
	if err := s.deps.Contributors.UpdateAnalytics(ctx, contributorID, persona, quality, now); err != nil {
		s.recordPhase(ctx, "persist", err)
		return nil, apperrors.WrapPersistence("update contributor analytics", err)
	}
	s.recordPhase(ctx, "persist", nil)

	slog.DebugContext(ctx, "contributor enriched",
		"contributor_id", contributorID,
		"workspace_id", workspaceID,
		"personas", persona.Personas,
		"quality", quality.Overall,
		"trend", trends.Velocity.Trend,
	)

	return snapshot, nil
}

// EnrichWorkspaceTopics clusters the workspace's embedded items, labels each cluster and adds
// the labels to every member author's topics. Too few items skips the phase without error.
func (s *EnrichmentService) EnrichWorkspaceTopics(ctx context.Context, workspaceID uuid.UUID) (summary *models.TopicRunSummary, err error) {
	ctx, span := observability.StartSpan(ctx, "enrichment.workspace_topics",
		attribute.String("workspace_id", workspaceID.String()),
	)
	defer func() { observability.EndSpan(span, err) }()

	summary = &models.TopicRunSummary{WorkspaceID: workspaceID}
	now := s.now()

	since := now.AddDate(0, 0, -s.opts.LookbackDays)
	items, err := s.deps.Items.FetchEmbeddedItems(ctx, workspaceID, since)
	if err != nil {
		return summary, fmt.Errorf("fetch embedded items: %w", err)
	}
	summary.ItemCount = len(items)

	run, err := s.deps.Clusterer.Cluster(ctx, items, s.opts.Cluster)
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientData) {
			slog.InfoContext(ctx, "skipping topic clustering",
				"workspace_id", workspaceID,
				"reason", err.Error(),
			)
			summary.Skipped = true
			summary.SkipReason = err.Error()
			return summary, nil
		}
		return summary, fmt.Errorf("cluster items: %w", err)
	}

	summary.ClustersFound = nonEmptyClusters(run.Clusters)
	summary.Iterations = run.Iterations
	summary.Converged = run.Converged
	summary.Silhouette = run.Silhouette
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordClustering(ctx, run.Iterations, run.Converged)
	}

	byID := make(map[uuid.UUID]models.ContributionItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	topics := make([]models.TopicCluster, 0, len(run.Clusters))
	labelsByAuthor := make(map[string][]string)
	authorOrder := make([]string, 0)
	for _, cluster := range run.Clusters {
		members := clusterMembers(cluster, byID, run.Distances)
		authors := rankAuthors(members)
		if len(authors) < s.opts.Cluster.MinClusterSize {
			continue
		}

		titles := make([]string, 0, maxSampleTitles)
		for _, m := range members {
			if len(titles) == maxSampleTitles {
				break
			}
			if m.Title != "" {
				titles = append(titles, m.Title)
			}
		}

		label := s.deps.Labeler.Label(ctx, cluster, titles)
		top := authors
		if len(top) > maxTopContributors {
			top = top[:maxTopContributors]
		}

		topics = append(topics, models.TopicCluster{
			ID:               workspaceID.String() + "-" + strconv.Itoa(cluster.ID),
			Label:            label.Primary,
			Keywords:         label.Keywords,
			ContributorCount: len(authors),
			TopContributors:  top,
			Confidence:       cluster.Confidence(),
			SampleTitles:     titles,
		})

		for _, username := range authors {
			if _, ok := labelsByAuthor[username]; !ok {
				authorOrder = append(authorOrder, username)
			}
			labelsByAuthor[username] = append(labelsByAuthor[username], label.Primary)
		}
	}
	summary.TopicsKept = len(topics)

	labelsByID := make(map[uuid.UUID][]string, len(authorOrder))
	ids := make([]uuid.UUID, 0, len(authorOrder))
	for _, username := range authorOrder {
		id, err := s.resolveUsername(ctx, username)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				slog.DebugContext(ctx, "no contributor for author", "workspace_id", workspaceID, "username", username)
				continue
			}
			slog.WarnContext(ctx, "failed to resolve contributor", "workspace_id", workspaceID, "username", username, "error", err)
			summary.ContributorsFailed++
			continue
		}
		if _, ok := labelsByID[id]; !ok {
			ids = append(ids, id)
		}
		labelsByID[id] = append(labelsByID[id], labelsByAuthor[username]...)
	}

	result := RunBatches(ctx, ids, s.opts.BatchSize, func(ctx context.Context, id uuid.UUID) error {
		err := s.applyTopics(ctx, id, workspaceID, labelsByID[id], now)
		s.recordPhase(ctx, "topics", err)
		return err
	})
	for _, f := range result.Failed {
		slog.WarnContext(ctx, "failed to update contributor topics",
			"workspace_id", workspaceID,
			"contributor_id", f.ID,
			"error", f.Err,
		)
	}
	summary.ContributorsUpdated = len(result.Succeeded)
	summary.ContributorsFailed += len(result.Failed)

	workspaceSnapshot := &models.WorkspaceTopicSnapshot{
		WorkspaceID:  workspaceID,
		SnapshotDate: models.SnapshotDate(now),
		Topics:       topics,
		Silhouette:   run.Silhouette,
		ItemCount:    run.ItemCount,
		Iterations:   run.Iterations,
		Converged:    run.Converged,
	}
	if err := s.deps.Snapshots.UpsertWorkspaceTopicSnapshot(ctx, workspaceSnapshot); err != nil {
		s.recordSnapshotError(ctx, "workspace")
		slog.ErrorContext(ctx, "failed to upsert workspace topic snapshot", "workspace_id", workspaceID, "error", err)
	}

	slog.InfoContext(ctx, "workspace topics enriched",
		"workspace_id", workspaceID,
		"items", summary.ItemCount,
		"clusters", summary.ClustersFound,
		"topics_kept", summary.TopicsKept,
		"contributors_updated", summary.ContributorsUpdated,
		"contributors_failed", summary.ContributorsFailed,
		"converged", run.Converged,
		"silhouette", run.Silhouette,
	)

	return summary, nil
}

// applyTopics prepends labels to the contributor's topics, keeps five, and writes the
// contributor plus the topics part of the day's snapshot.
func (s *EnrichmentService) applyTopics(ctx context.Context, contributorID, workspaceID uuid.UUID, labels []string, now time.Time) error {
	contributor, err := s.deps.Contributors.GetByID(ctx, contributorID)
	if err != nil {
		return fmt.Errorf("get contributor: %w", err)
	}

	topics := MergeTopics(contributor.PrimaryTopics, labels)
	if err := s.deps.Contributors.UpdateTopics(ctx, contributorID, topics); err != nil {
		return apperrors.WrapPersistence("update contributor topics", err)
	}

	if err := s.deps.Snapshots.UpsertSnapshot(ctx, &models.AnalyticsSnapshot{
		ContributorID: contributorID,
		WorkspaceID:   workspaceID,
		SnapshotDate:  models.SnapshotDate(now),
		Topics:        topics,
	}); err != nil {
		s.recordSnapshotError(ctx, "contributor")
		return apperrors.WrapPersistence("upsert topic snapshot", err)
	}

	return nil
}

// MergeTopics puts new labels in front of existing topics, drops duplicates and keeps five.
func MergeTopics(existing, labels []string) []string {
	merged := make([]string, 0, len(labels)+len(existing))
	merged = append(merged, labels...)
	merged = append(merged, existing...)

	topics := dedupe(merged)
	if len(topics) > maxContributorTopics {
		topics = topics[:maxContributorTopics]
	}
	return topics
}

func (s *EnrichmentService) resolveUsername(ctx context.Context, username string) (uuid.UUID, error) {
	id, hit, err := s.usernames.GetWithStats(ctx, username, func(ctx context.Context, username string) (uuid.UUID, error) {
		contributor, err := s.deps.Contributors.GetByUsername(ctx, username)
		if err != nil {
			return uuid.Nil, err
		}
		return contributor.ID, nil
	})
	if s.deps.CacheMetrics != nil && err == nil {
		if hit {
			s.deps.CacheMetrics.RecordHit(ctx, usernameCacheName)
		} else {
			s.deps.CacheMetrics.RecordMiss(ctx, usernameCacheName)
		}
	}
	return id, err
}

// EnrichWorkspace runs the topic phase and then enriches every contributor in bounded batches.
// One contributor's failure never stops the others; it is reported in the summary. A failed
// topic phase aborts the run and is returned as an error together with the summary.
func (s *EnrichmentService) EnrichWorkspace(ctx context.Context, workspaceID uuid.UUID) (*models.WorkspaceRunSummary, error) {
	runID := uuid.New()
	ctx = observability.WithRunID(ctx, runID)
	ctx, span := observability.StartSpan(ctx, "enrichment.workspace",
		attribute.String("workspace_id", workspaceID.String()),
		attribute.String("run_id", runID.String()),
	)

	start := time.Now()
	summary := &models.WorkspaceRunSummary{
		WorkspaceID: workspaceID,
		RunID:       runID,
		State:       models.RunStateIdle,
		Failed:      make([]models.ContributorFailure, 0),
	}

	err := s.runWorkspace(ctx, summary)

	summary.Duration = time.Since(start)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordWorkspaceRun(ctx, string(summary.State), summary.Duration)
	}
	span.SetAttributes(attribute.String("state", string(summary.State)))
	observability.EndSpan(span, err)

	slog.InfoContext(ctx, "workspace run finished",
		"workspace_id", workspaceID,
		"state", summary.State,
		"batches", summary.Batches,
		"succeeded", summary.Succeeded,
		"failed", len(summary.Failed),
		"duration_ms", summary.Duration.Milliseconds(),
	)

	return summary, err
}

func (s *EnrichmentService) runWorkspace(ctx context.Context, summary *models.WorkspaceRunSummary) error {
	workspaceID := summary.WorkspaceID

	s.transition(ctx, summary, models.RunStateClusteringTopics)
	topics, err := s.EnrichWorkspaceTopics(ctx, workspaceID)
	summary.Topics = topics
	if err != nil {
		s.transition(ctx, summary, models.RunStateFailed)
		summary.Error = err.Error()
		return fmt.Errorf("topic phase: %w", err)
	}

	ids, err := s.deps.Contributors.ListWorkspaceContributorIDs(ctx, workspaceID)
	if err != nil {
		s.transition(ctx, summary, models.RunStateFailed)
		summary.Error = err.Error()
		return fmt.Errorf("list contributors: %w", err)
	}
	if len(ids) == 0 {
		skip := apperrors.NewInsufficientDataError("contributors", 1, 0)
		slog.InfoContext(ctx, "skipping contributor enrichment", "workspace_id", workspaceID, "reason", skip.Error())
		s.transition(ctx, summary, models.RunStateSkipped)
		summary.Error = skip.Error()
		return nil
	}

	s.transition(ctx, summary, models.RunStateEnrichingContributors)
	result := RunBatches(ctx, ids, s.opts.BatchSize, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.EnrichContributor(ctx, id, workspaceID)
		return err
	})

	summary.Batches = result.Batches
	summary.Succeeded = len(result.Succeeded)
	for _, f := range result.Failed {
		slog.WarnContext(ctx, "contributor enrichment failed",
			"workspace_id", workspaceID,
			"contributor_id", f.ID,
			"error", f.Err,
		)
		summary.Failed = append(summary.Failed, models.ContributorFailure{
			ContributorID: f.ID,
			Error:         f.Err.Error(),
		})
	}

	if len(result.Failed) > 0 {
		partial := &apperrors.PartialBatchFailure{Total: len(ids), Failed: result.FailedIDs()}
		summary.Error = partial.Error()
		s.transition(ctx, summary, models.RunStatePartiallyFailed)
		return nil
	}

	s.transition(ctx, summary, models.RunStateDone)
	return nil
}

func (s *EnrichmentService) transition(ctx context.Context, summary *models.WorkspaceRunSummary, to models.RunState) {
	slog.DebugContext(ctx, "workspace run state",
		"workspace_id", summary.WorkspaceID,
		"from", summary.State,
		"to", to,
	)
	summary.State = to
}

// EnrichAllWorkspaces enriches every active workspace one after another. A failed workspace
// is recorded and the next one is still attempted.
func (s *EnrichmentService) EnrichAllWorkspaces(ctx context.Context) (*models.AllWorkspacesSummary, error) {
	start := time.Now()

	workspaces, err := s.deps.Workspaces.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active workspaces: %w", err)
	}

	all := &models.AllWorkspacesSummary{Runs: make([]models.WorkspaceRunSummary, 0, len(workspaces))}
	if len(workspaces) == 0 {
		slog.InfoContext(ctx, "no active workspaces to enrich")
		return all, nil
	}

	for _, ws := range workspaces {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		summary, err := s.EnrichWorkspace(ctx, ws.ID)
		if err != nil {
			slog.ErrorContext(ctx, "workspace enrichment failed",
				"workspace_id", ws.ID,
				"workspace", ws.Name,
				"error", err,
			)
		}
		all.Runs = append(all.Runs, *summary)

		switch summary.State {
		case models.RunStateDone:
			all.Succeeded++
		case models.RunStatePartiallyFailed:
			all.Partial++
		case models.RunStateSkipped:
			all.Skipped++
		default:
			all.Failed++
		}
	}
	all.Duration = time.Since(start)

	slog.InfoContext(ctx, "all workspaces enriched",
		"workspaces", len(workspaces),
		"succeeded", all.Succeeded,
		"partial", all.Partial,
		"failed", all.Failed,
		"skipped", all.Skipped,
		"duration_ms", all.Duration.Milliseconds(),
	)

	return all, nil
}

func (s *EnrichmentService) recordPhase(ctx context.Context, phase string, err error) {
	if err != nil {
		s.recordContributor(ctx, phase, "failure")
		return
	}
	s.recordContributor(ctx, phase, "success")
}

func (s *EnrichmentService) recordContributor(ctx context.Context, phase, outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordContributorOutcome(ctx, phase, outcome)
	}
}

func (s *EnrichmentService) recordSnapshotError(ctx context.Context, kind string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordSnapshotUpsertError(ctx, kind)
	}
}

func nonEmptyClusters(clusters []models.EmbeddingCluster) int {
	n := 0
	for _, c := range clusters {
		if c.Size() > 0 {
			n++
		}
	}
	return n
}

// clusterMembers returns the cluster's items, closest to the centroid first.
func clusterMembers(cluster models.EmbeddingCluster, byID map[uuid.UUID]models.ContributionItem, distances map[uuid.UUID]float64) []models.ContributionItem {
	members := make([]models.ContributionItem, 0, cluster.Size())
	for _, id := range cluster.MemberIDs {
		if item, ok := byID[id]; ok {
			members = append(members, item)
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		return distances[members[i].ID] < distances[members[j].ID]
	})
	return members
}

// rankAuthors returns distinct non-empty author usernames by descending item count, ties by username.
func rankAuthors(members []models.ContributionItem) []string {
	counts := make(map[string]int)
	for _, m := range members {
		if m.AuthorUsername != "" {
			counts[m.AuthorUsername]++
		}
	}

	authors := make([]string, 0, len(counts))
	for username := range counts {
		authors = append(authors, username)
	}
	sort.Slice(authors, func(i, j int) bool {
		if counts[authors[i]] != counts[authors[j]] {
			return counts[authors[i]] > counts[authors[j]]
		}
		return authors[i] < authors[j]
	})
	return authors
}
