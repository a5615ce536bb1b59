package match

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/haithamq/visaflow/internal/core/domain"
	"github.com/haithamq/visaflow/internal/core/ports"
)

// Confidence tiers for the semantic pass.
const (
	HighConfidence   = 0.85
	MediumConfidence = 0.65
	MinConfidence    = 0.45
)

// Outcome is the full result of one matching pass: exactly one MatchResult
// per requirement, missing mandatory requirement ids, and the coverage score.
type Outcome struct {
	Matches       []domain.MatchResult
	Missing       []string
	CoverageScore float64
}

// Engine assigns a finite pool of documents to requirements in two strictly
// ordered passes: deterministic type matching, then greedy semantic matching
// over whatever the type pass left open. A document consumed in either pass
// is never reused.
type Engine struct {
	embedder ports.Embedder
	log      *slog.Logger
}

// New builds an engine. A nil embedder disables the semantic pass; the
// requirements it would have served are reported missing instead.
func New(embedder ports.Embedder, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{embedder: embedder, log: log}
}

// Match never fails for expected conditions: an unavailable or failing
// embedder degrades to type-only matching.
func (e *Engine) Match(ctx context.Context, requirements []domain.Requirement, documents []domain.Document, _ []domain.Traveler) Outcome {
	assigned := make(map[string]domain.MatchResult, len(requirements))
	consumed := make(map[string]bool, len(documents))

	e.matchByType(requirements, documents, assigned, consumed)

	unmatched := make([]domain.Requirement, 0, len(requirements))
	for _, req := range requirements {
		if _, ok := assigned[req.ID]; !ok {
			unmatched = append(unmatched, req)
		}
	}
	if len(unmatched) > 0 && e.embedder != nil {
		e.matchSemantically(ctx, unmatched, documents, assigned, consumed)
	}

	matches := make([]domain.MatchResult, 0, len(requirements))
	missing := make([]string, 0)
	for _, req := range requirements {
		if result, ok := assigned[req.ID]; ok {
			matches = append(matches, result)
			continue
		}
		matches = append(matches, domain.MatchResult{
			RequirementID: req.ID,
			Score:         0,
			Status:        domain.MatchMissing,
			Notes:         []string{"No matching document found"},
		})
		if req.IsMandatory {
			missing = append(missing, req.ID)
		}
	}

	covered := 0
	for _, m := range matches {
		if m.Status == domain.MatchMatched || m.Status == domain.MatchPartial {
			covered++
		}
	}
	coverage := 1.0
	if len(requirements) > 0 {
		coverage = float64(covered) / float64(len(requirements))
	}

	return Outcome{Matches: matches, Missing: missing, CoverageScore: coverage}
}

// matchByType runs the deterministic first pass. For each requirement that
// names a document type, the first unconsumed document whose type equals it
// (score 1.0) or contains one of its keywords (score 0.9) wins.
func (e *Engine) matchByType(requirements []domain.Requirement, documents []domain.Document, assigned map[string]domain.MatchResult, consumed map[string]bool) {
	for _, req := range requirements {
		if req.DocumentType == "" {
			continue
		}
		reqType := strings.ToLower(req.DocumentType)
		keywords := domain.TypeKeywords[reqType]

		for _, doc := range documents {
			if consumed[doc.ID] {
				continue
			}
			docType := strings.ToLower(doc.Type)

			if docType == reqType {
				assigned[req.ID] = domain.MatchResult{
					RequirementID: req.ID,
					DocumentID:    doc.ID,
					Score:         1.0,
					Status:        domain.MatchMatched,
					Notes:         []string{"Direct type match"},
				}
				consumed[doc.ID] = true
				break
			}

			if containsAny(docType, keywords) {
				assigned[req.ID] = domain.MatchResult{
					RequirementID: req.ID,
					DocumentID:    doc.ID,
					Score:         0.9,
					Status:        domain.MatchMatched,
					Notes:         []string{"Type keyword match"},
				}
				consumed[doc.ID] = true
				break
			}
		}
	}
}

// matchSemantically embeds requirement descriptions and the remaining
// documents, then assigns greedily in requirement input order. Ties and
// cross-requirement competition resolve purely by that order; this is a
// documented simplification, not an optimal bipartite assignment.
func (e *Engine) matchSemantically(ctx context.Context, requirements []domain.Requirement, documents []domain.Document, assigned map[string]domain.MatchResult, consumed map[string]bool) {
	candidates := make([]domain.Document, 0, len(documents))
	for _, doc := range documents {
		if !consumed[doc.ID] {
			candidates = append(candidates, doc)
		}
	}
	if len(candidates) == 0 {
		return
	}

	reqTexts := make([]string, len(requirements))
	for i, req := range requirements {
		reqTexts[i] = strings.TrimSpace(req.DescriptionPrimary + " " + req.DescriptionSecondary)
	}
	docTexts := make([]string, len(candidates))
	for i, doc := range candidates {
		if doc.ExtractedText != "" {
			docTexts[i] = doc.ExtractedText
		} else {
			docTexts[i] = doc.Type
		}
	}

	// The two batches are independent; both must land before scoring.
	var reqVectors, docVectors [][]float32
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		vectors, err := e.embedder.Embed(groupCtx, reqTexts)
		reqVectors = vectors
		return err
	})
	group.Go(func() error {
		vectors, err := e.embedder.Embed(groupCtx, docTexts)
		docVectors = vectors
		return err
	})
	if err := group.Wait(); err != nil {
		e.log.Warn("semantic pass skipped", "error", err)
		return
	}
	if len(reqVectors) != len(requirements) || len(docVectors) != len(candidates) {
		e.log.Warn("semantic pass skipped",
			"error", "embedding batch size mismatch",
			"requirements", len(requirements),
			"documents", len(candidates),
		)
		return
	}

	taken := make(map[int]bool, len(candidates))
	for i, req := range requirements {
		bestScore := 0.0
		bestIdx := -1
		for j := range candidates {
			if taken[j] {
				continue
			}
			score := dot(reqVectors[i], docVectors[j])
			if score > bestScore {
				bestScore = score
				bestIdx = j
			}
		}
		if bestIdx < 0 || bestScore < MinConfidence {
			continue
		}

		status := domain.MatchPartial
		note := "Low confidence - manual review recommended"
		switch {
		case bestScore >= HighConfidence:
			status = domain.MatchMatched
			note = "High confidence semantic match"
		case bestScore >= MediumConfidence:
			note = "Medium confidence - please verify"
		}

		doc := candidates[bestIdx]
		assigned[req.ID] = domain.MatchResult{
			RequirementID: req.ID,
			DocumentID:    doc.ID,
			Score:         bestScore,
			Status:        status,
			Notes:         []string{note},
		}
		taken[bestIdx] = true
		consumed[doc.ID] = true
	}
}

// dot is cosine similarity for unit-normalized vectors.
func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}
