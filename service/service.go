// Package service orchestrates the appraisal pipeline: validate the request,
// invoke the vision model, normalize the output and persist the result.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"appraisal-service/llm"
	"appraisal-service/metrics"
	"appraisal-service/models"
	"appraisal-service/parser"
	"appraisal-service/rabbitmq"
)

// maxImages caps how many photographs go to the model per invocation. Extra
// URLs are dropped from the end; submission order is preserved.
const maxImages = 3

// ErrNoImages rejects a request that carries no photographs.
var ErrNoImages = fmt.Errorf("at least one image URL is required")

// Store persists appraisals.
type Store interface {
	SaveAppraisal(ctx context.Context, a *models.Appraisal) error
	GetAppraisal(ctx context.Context, id string) (*models.Appraisal, error)
}

// EventPublisher emits appraisal lifecycle events.
type EventPublisher interface {
	PublishAppraisalCompleted(ctx context.Context, event rabbitmq.AppraisalEvent) error
}

// Service runs the appraisal pipeline. db and publisher may be nil; the
// pipeline still produces reports, it just skips persistence and events.
type Service struct {
	client    llm.Client
	db        Store
	publisher EventPublisher
}

func New(client llm.Client, db Store, publisher EventPublisher) *Service {
	return &Service{client: client, db: db, publisher: publisher}
}

// Run performs one appraisal end to end and returns the stored appraisal.
// Model and parse failures after invocation never fail the request: the
// report degrades instead.
func (s *Service) Run(ctx context.Context, req models.AppraisalRequest) (*models.Appraisal, error) {
	if len(req.ImageURLs) == 0 {
		return nil, ErrNoImages
	}

	urls := req.ImageURLs
	if len(urls) > maxImages {
		log.Warnf("request carries %d images, using the first %d", len(urls), maxImages)
		urls = urls[:maxImages]
	}

	tier := models.ParseTier(string(req.Tier))
	start := time.Now()

	raw, err := s.client.Invoke(ctx, urls, req.AdditionalInfo, tier)
	mode := strings.ToLower(s.client.SourceName())
	if err != nil {
		metrics.ModelInvocations.WithLabelValues(mode, "error").Inc()
		metrics.RequestsTotal.WithLabelValues(string(tier), "error").Inc()
		return nil, err
	}
	metrics.ModelInvocations.WithLabelValues(mode, "ok").Inc()

	report, strategy := parser.Normalize(raw, tier)
	metrics.ParseOutcomes.WithLabelValues(string(strategy)).Inc()
	metrics.Duration.WithLabelValues(string(tier)).Observe(time.Since(start).Seconds())
	metrics.RequestsTotal.WithLabelValues(string(tier), "ok").Inc()

	appraisal := &models.Appraisal{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Tier:      tier,
		ImageURLs: urls,
		Report:    report,
		CreatedAt: time.Now().UTC(),
	}

	s.persist(ctx, appraisal)
	return appraisal, nil
}

// Refine re-runs the appraisal with the owner's corrections folded in. The
// prior report seeds the prompt; fields the new pass could not determine keep
// their prior values. The result is stored as a new appraisal.
func (s *Service) Refine(ctx context.Context, prior *models.Appraisal, feedback string) (*models.Appraisal, error) {
	if prior == nil || len(prior.ImageURLs) == 0 {
		return nil, ErrNoImages
	}

	priorJSON, err := json.Marshal(prior.Report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prior report: %w", err)
	}

	contextText := fmt.Sprintf(
		"A previous appraisal of this item produced the report below. The owner has provided corrections or additional information. "+
			"Re-appraise the item taking the corrections into account.\n\nPrevious report:\n%s\n\nOwner's notes:\n%s",
		priorJSON, feedback)

	raw, err := s.client.Invoke(ctx, prior.ImageURLs, contextText, prior.Tier)
	mode := strings.ToLower(s.client.SourceName())
	if err != nil {
		metrics.ModelInvocations.WithLabelValues(mode, "error").Inc()
		return nil, err
	}
	metrics.ModelInvocations.WithLabelValues(mode, "ok").Inc()

	report, strategy := parser.Normalize(raw, prior.Tier)
	metrics.ParseOutcomes.WithLabelValues(string(strategy)).Inc()

	merged := mergeReports(prior.Report, report)

	appraisal := &models.Appraisal{
		ID:        uuid.New().String(),
		UserID:    prior.UserID,
		Tier:      prior.Tier,
		ImageURLs: prior.ImageURLs,
		Report:    merged,
		CreatedAt: time.Now().UTC(),
	}

	s.persist(ctx, appraisal)
	return appraisal, nil
}

// Expert runs supplementary enrichment passes over a stored appraisal. Each
// pass produces a standalone section; the underlying report is not changed.
// Passes run concurrently and a failed pass fails the whole call.
func (s *Service) Expert(ctx context.Context, prior *models.Appraisal, passes []string) ([]models.ExpertSection, error) {
	if prior == nil || len(prior.ImageURLs) == 0 {
		return nil, ErrNoImages
	}
	if len(passes) == 0 {
		passes = []string{models.ExpertPassHistory, models.ExpertPassMarket}
	}

	sections := make([]models.ExpertSection, len(passes))
	errs := make([]error, len(passes))

	var wg sync.WaitGroup
	for i, pass := range passes {
		prompt, title, err := expertPrompt(pass, prior)
		if err != nil {
			return nil, err
		}

		wg.Add(1)
		go func(i int, pass, prompt, title string) {
			defer wg.Done()
			raw, err := s.client.Invoke(ctx, prior.ImageURLs, prompt, models.TierFull)
			if err != nil {
				errs[i] = fmt.Errorf("%s pass: %w", pass, err)
				return
			}
			sections[i] = models.ExpertSection{Pass: pass, Title: title, Content: strings.TrimSpace(raw)}
		}(i, pass, prompt, title)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return sections, nil
}

func expertPrompt(pass string, prior *models.Appraisal) (prompt, title string, err error) {
	priorJSON, merr := json.Marshal(prior.Report)
	if merr != nil {
		return "", "", fmt.Errorf("failed to marshal prior report: %w", merr)
	}

	switch pass {
	case models.ExpertPassHistory:
		return fmt.Sprintf(
			"The item in these photographs was appraised as follows:\n%s\n\n"+
				"Write a historical deep-dive on this type of item: its origins, how it was made and used in its period, "+
				"and what collectors look for. Respond in flowing prose, not JSON.", priorJSON), "Historical Context", nil
	case models.ExpertPassMarket:
		return fmt.Sprintf(
			"The item in these photographs was appraised as follows:\n%s\n\n"+
				"Write a market analysis for this type of item: recent demand trends, the venues where such items sell best, "+
				"and the factors that most move realized prices. Respond in flowing prose, not JSON.", priorJSON), "Market Analysis", nil
	default:
		return "", "", fmt.Errorf("unknown expert pass %q", pass)
	}
}

// mergeReports overlays the refined report on the prior one. A refined field
// wins unless it is still a placeholder, in which case the prior value
// survives. Merging the same pair twice yields the same result.
func mergeReports(prior, refined *models.NormalizedReport) *models.NormalizedReport {
	merged := *refined

	merged.Overview = pick(refined.Overview, prior.Overview, models.NotSpecified)
	merged.Identification.ObjectType = pick(refined.Identification.ObjectType, prior.Identification.ObjectType, models.Unknown)
	merged.Identification.Era = pick(refined.Identification.Era, prior.Identification.Era, models.Unknown)
	merged.Identification.Materials = pick(refined.Identification.Materials, prior.Identification.Materials, models.Unknown)
	merged.Features.Shape = pick(refined.Features.Shape, prior.Features.Shape, models.NotSpecified)
	merged.Features.Size = pick(refined.Features.Size, prior.Features.Size, models.NotSpecified)
	merged.Features.Color = pick(refined.Features.Color, prior.Features.Color, models.NotSpecified)
	merged.Features.Materials = pick(refined.Features.Materials, prior.Features.Materials, models.NotSpecified)
	merged.Features.NotableFeatures = pick(refined.Features.NotableFeatures, prior.Features.NotableFeatures, models.NotSpecified)
	merged.Condition = pick(refined.Condition, prior.Condition, models.NotSpecified)
	merged.Regulations = pick(refined.Regulations, prior.Regulations, models.NotSpecified)
	merged.Conclusion = pick(refined.Conclusion, prior.Conclusion, models.DefaultConclusion)
	merged.Provenance = pick(refined.Provenance, prior.Provenance, models.NotSpecified)
	merged.StylisticAssessment = pick(refined.StylisticAssessment, prior.StylisticAssessment, models.NotSpecified)
	merged.Attribution = pick(refined.Attribution, prior.Attribution, models.NotSpecified)
	merged.ValueIndicators = pick(refined.ValueIndicators, prior.ValueIndicators, models.NotSpecified)
	if len(merged.FollowUpQuestions) == 0 {
		merged.FollowUpQuestions = prior.FollowUpQuestions
	}
	return &merged
}

func pick(refined, prior, placeholder string) string {
	if refined == placeholder || refined == "" {
		return prior
	}
	return refined
}

// Get loads a stored appraisal.
func (s *Service) Get(ctx context.Context, id string) (*models.Appraisal, error) {
	if s.db == nil {
		return nil, fmt.Errorf("persistence is not configured")
	}
	return s.db.GetAppraisal(ctx, id)
}

// persist saves and publishes best-effort: persistence problems are logged
// and the user still gets their report.
func (s *Service) persist(ctx context.Context, a *models.Appraisal) {
	if s.db != nil {
		if err := s.db.SaveAppraisal(ctx, a); err != nil {
			log.Errorf("failed to save appraisal %s: %v", a.ID, err)
		}
	}
	if s.publisher != nil {
		event := rabbitmq.AppraisalEvent{
			AppraisalID: a.ID,
			UserID:      a.UserID,
			Tier:        a.Tier,
			Source:      s.client.SourceName(),
			CreatedAt:   a.CreatedAt,
		}
		if err := s.publisher.PublishAppraisalCompleted(ctx, event); err != nil {
			log.Errorf("failed to publish appraisal event %s: %v", a.ID, err)
		}
	}
}
