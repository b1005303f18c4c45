package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/debashishroy00/wpa-sub002/calc"
	"github.com/debashishroy00/wpa-sub002/facts"
	"github.com/debashishroy00/wpa-sub002/knowledge"
	"github.com/debashishroy00/wpa-sub002/llm"
	"github.com/debashishroy00/wpa-sub002/trust"
)

const maxPlannedQueries = 4

type loopState struct {
	queries         []plannedQuery
	queried         map[string]struct{}
	excerpts        []excerpt
	seen            map[string]struct{}
	gaps            []Gap
	gapSet          map[string]struct{}
	iterations      int
	assessed        int
	sufficient      bool
	confidence      float64
	retrievalErrors int
}

func newLoopState() *loopState {
	return &loopState{
		queried:    make(map[string]struct{}),
		seen:       make(map[string]struct{}),
		gapSet:     make(map[string]struct{}),
		confidence: 0.3,
	}
}

// callLLM wraps one generative call with the per-call timeout.
func (s *Service) callLLM(ctx context.Context, system, user string) (string, error) {
	if s.llm == nil {
		return "", fmt.Errorf("no llm client configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout())
	defer cancel()

	return s.llm.Generate(callCtx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	})
}

// extractJSON tolerates fenced or prefixed model output and returns the
// outermost JSON object.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

const planPrompt = `You plan retrieval for a grounded financial advisor. Break the user's question into at most 4 focused sub-queries. Respond with only JSON shaped as {"queries":[{"text":"...","source":"profile"}]}. Use source "profile" for the user's own accounts, balances, and history, and "knowledge" for general financial guidance.`

func (s *Service) plan(ctx context.Context, message string, claims []facts.Claim) []plannedQuery {
	keys := make([]string, 0, len(claims))
	for _, c := range claims {
		keys = append(keys, c.Key)
	}
	user := fmt.Sprintf("Question: %s\nKnown profile facts: %s", message, strings.Join(keys, ", "))

	raw, err := s.callLLM(ctx, planPrompt, user)
	if err != nil {
		s.logger.Printf("planning failed, using default plan: %v", err)
		return defaultPlan(message)
	}
	var payload planPayload
	if err := json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil || len(payload.Queries) == 0 {
		s.logger.Printf("unparseable plan (%v), using default", err)
		return defaultPlan(message)
	}

	queries := make([]plannedQuery, 0, maxPlannedQueries)
	for _, q := range payload.Queries {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			continue
		}
		source := q.Source
		if source != sourceProfile {
			source = sourceKnowledge
		}
		queries = append(queries, plannedQuery{Text: text, Source: source})
		if len(queries) == maxPlannedQueries {
			break
		}
	}
	if len(queries) == 0 {
		return defaultPlan(message)
	}
	return queries
}

// defaultPlan covers both sources with the raw message when planning fails.
func defaultPlan(message string) []plannedQuery {
	return []plannedQuery{
		{Text: message, Source: sourceProfile},
		{Text: message, Source: sourceKnowledge},
	}
}

func queryKey(q plannedQuery) string {
	return q.Source + ":" + strings.ToLower(strings.TrimSpace(q.Text))
}

// retrieve fans the round's queries out across both sources. A failed
// search is logged and counted, never fatal; results merge into the shared
// buffer under the lock, deduplicated by document id.
func (s *Service) retrieve(ctx context.Context, state *loopState, userID string) {
	limit := s.cfg.RetrievalLimit
	if limit <= 0 {
		limit = 5
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.FanoutWidth > 0 {
		g.SetLimit(s.cfg.FanoutWidth)
	}

	var mu sync.Mutex
	for _, pq := range state.queries {
		pq := pq
		if _, done := state.queried[queryKey(pq)]; done {
			continue
		}
		state.queried[queryKey(pq)] = struct{}{}

		g.Go(func() error {
			var found []excerpt
			if pq.Source == sourceProfile {
				results, err := s.profile.Search(gctx, pq.Text, userID, limit)
				if err != nil {
					s.logger.Printf("profile retrieval %q: %v", pq.Text, err)
					mu.Lock()
					state.retrievalErrors++
					mu.Unlock()
					return nil
				}
				for _, r := range results {
					found = append(found, excerpt{
						ID:      r.Document.ID,
						Title:   r.Document.Metadata.Title,
						Source:  sourceProfile,
						Content: r.Document.Content,
						Score:   r.Score,
					})
				}
			} else {
				for _, r := range s.kb.Search(pq.Text, knowledge.Filters{}, limit) {
					found = append(found, excerpt{
						ID:      r.Document.ID,
						Title:   r.Document.Title,
						Source:  sourceKnowledge,
						Content: r.Document.Content,
						Score:   r.Score,
						KBID:    r.Document.ID,
					})
				}
			}

			mu.Lock()
			for _, e := range found {
				if _, dup := state.seen[e.ID]; dup {
					continue
				}
				state.seen[e.ID] = struct{}{}
				state.excerpts = append(state.excerpts, e)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if maxDocs := s.cfg.MaxContextDocs; maxDocs > 0 && len(state.excerpts) > maxDocs {
		sort.SliceStable(state.excerpts, func(i, j int) bool {
			return state.excerpts[i].Score > state.excerpts[j].Score
		})
		state.excerpts = state.excerpts[:maxDocs]
		seen := make(map[string]struct{}, len(state.excerpts))
		for _, e := range state.excerpts {
			seen[e.ID] = struct{}{}
		}
		state.seen = seen
	}
}

const assessPrompt = `You judge whether the retrieved material is enough to answer the user's question. Respond with only JSON shaped as {"sufficient":true,"confidence":0.8,"gaps":[{"type":"knowledge","description":"missing topic"}]}. Confidence is between 0 and 1. Gap type is "profile" when the user's own accounts or history are missing and "knowledge" when general guidance is. List gaps only for material that is genuinely missing.`

// assess runs the round's sufficiency judgment. A model or parse failure
// marks the round insufficient without inventing gaps; a deadline leaves
// the round uncounted.
func (s *Service) assess(ctx context.Context, state *loopState, message string) {
	if ctx.Err() != nil {
		return
	}

	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(message)
	sb.WriteString("\nRetrieved material:\n")
	if len(state.excerpts) == 0 {
		sb.WriteString("(nothing retrieved)\n")
	}
	for _, e := range state.excerpts {
		sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", e.Source, e.Title, snippet(e.Content, 200)))
	}

	raw, err := s.callLLM(ctx, assessPrompt, sb.String())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Printf("assessment failed, treating round as insufficient: %v", err)
		state.assessed++
		state.sufficient = false
		return
	}

	state.assessed++
	var payload assessPayload
	if err := json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		s.logger.Printf("unparseable assessment (%v), treating round as insufficient", err)
		state.sufficient = false
		return
	}

	state.sufficient = payload.Sufficient
	if payload.Confidence > 0 {
		state.confidence = clamp01(payload.Confidence)
	}
	for _, gap := range payload.Gaps {
		gap.Description = strings.TrimSpace(gap.Description)
		if gap.Description == "" {
			continue
		}
		lowered := strings.ToLower(gap.Description)
		if _, dup := state.gapSet[lowered]; dup {
			continue
		}
		state.gapSet[lowered] = struct{}{}
		state.gaps = append(state.gaps, gap)
	}
}

// refineQueries turns unanswered gaps into the next round's queries,
// skipping anything already asked. The gap type picks the target index;
// untyped gaps fall back to keyword classification of the description.
func (s *Service) refineQueries(state *loopState) []plannedQuery {
	next := make([]plannedQuery, 0, len(state.gaps))
	for _, gap := range state.gaps {
		source := gap.Type
		if source != sourceProfile && source != sourceKnowledge {
			source = sourceKnowledge
			lowered := strings.ToLower(gap.Description)
			if strings.Contains(lowered, "profile") || strings.Contains(lowered, "account") ||
				strings.Contains(lowered, "balance") || strings.Contains(lowered, "debt") {
				source = sourceProfile
			}
		}
		q := plannedQuery{Text: gap.Description, Source: source}
		if _, done := state.queried[queryKey(q)]; done {
			continue
		}
		next = append(next, q)
		if len(next) == maxPlannedQueries {
			break
		}
	}
	return next
}

// runLoop drives plan / retrieve / assess / refine until the material
// suffices, the iteration cap is hit, or the loop budget expires, then
// synthesizes and validates inside the reserved window.
func (s *Service) runLoop(ctx context.Context, message, userID, sessionID, mode, intent string, claims []facts.Claim, degraded bool) (*Answer, error) {
	loopCtx := ctx
	cancel := func() {}
	if deadline, ok := ctx.Deadline(); ok {
		reserve := s.cfg.LLMTimeout() + time.Second
		if loopDeadline := deadline.Add(-reserve); time.Until(loopDeadline) > 0 {
			loopCtx, cancel = context.WithDeadline(ctx, loopDeadline)
		}
	}
	defer cancel()

	maxIterations := s.cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 1
	}

	state := newLoopState()
	state.queries = s.plan(loopCtx, message, claims)

	for state.iterations < maxIterations {
		state.iterations++
		s.retrieve(loopCtx, state, userID)
		s.assess(loopCtx, state, message)
		if loopCtx.Err() != nil || state.sufficient {
			break
		}
		next := s.refineQueries(state)
		if len(next) == 0 {
			break
		}
		state.queries = next
	}

	var record *calc.Record
	if rec, ok := s.sessions.Last(userID, sessionID); ok {
		record = &rec
	}

	text, report, err := s.synthesizeTurn(ctx, state, message, mode, claims, record)
	if errors.Is(err, ErrNoRounds) {
		return s.timeoutClarify(intent, state), nil
	}
	if err != nil {
		s.logger.Printf("synthesis unavailable: %v", err)
		return s.fallbackAnswer(claims, state, degraded), nil
	}

	valid, _ := s.kb.ValidateCitations(text)
	answer := &Answer{
		Response:            text,
		Citations:           valid,
		Confidence:          s.finalConfidence(state, degraded),
		GapsIdentified:      gapsCopy(state),
		IterationsPerformed: state.iterations,
		TrustTier:           report.Tier,
	}
	return answer, nil
}

// synthesizeTurn produces validated answer text. ErrNoRounds means no
// assessment completed, so there is nothing defensible to write from.
// A LOW verification tier earns exactly one corrective pass; a second LOW
// falls back to the claims template.
func (s *Service) synthesizeTurn(ctx context.Context, state *loopState, message, mode string, claims []facts.Claim, record *calc.Record) (string, trust.Report, error) {
	if state.assessed == 0 {
		return "", trust.Report{}, ErrNoRounds
	}

	related := s.relatedAdvice(ctx, state.excerpts)
	in := synthesisInput{
		message:  message,
		mode:     mode,
		claims:   claims,
		record:   record,
		excerpts: state.excerpts,
		related:  related,
	}

	set := s.authoritativeSet(claims, record, state.excerpts)

	text, err := s.synthesize(ctx, in)
	if err != nil {
		return "", trust.Report{}, fmt.Errorf("synthesize: %w", err)
	}
	cleaned := s.stripInvalidCitations(text)
	report := trust.Validate(cleaned, set)
	if report.Tier != trust.TierLow {
		return cleaned, report, nil
	}

	s.logger.Printf("answer failed verification (%d violations), re-synthesizing once", len(report.Violations))
	in.violations = report.Violations
	retry, err := s.synthesize(ctx, in)
	if err != nil {
		return "", trust.Report{}, fmt.Errorf("corrective synthesis: %w", err)
	}
	cleaned = s.stripInvalidCitations(retry)
	report = trust.Validate(cleaned, set)
	if report.Tier == trust.TierLow {
		return "", trust.Report{}, fmt.Errorf("answer still failed verification after correction")
	}
	return cleaned, report, nil
}

func (s *Service) stripInvalidCitations(text string) string {
	cleaned, removed := s.kb.StripInvalid(text)
	if len(removed) > 0 {
		s.logger.Printf("stripped invalid citations: %v", removed)
	}
	return cleaned
}

// relatedAdvice pulls graph neighbors for the cited knowledge documents.
// Purely additive; failures only log.
func (s *Service) relatedAdvice(ctx context.Context, excerpts []excerpt) []string {
	if s.graph == nil {
		return nil
	}
	var ids []string
	for _, e := range excerpts {
		if e.KBID != "" {
			ids = append(ids, e.KBID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	relMap, err := s.graph.Related(ctx, ids, 3)
	if err != nil {
		s.logger.Printf("related advice lookup: %v", err)
		return nil
	}
	seen := make(map[string]struct{})
	var lines []string
	for _, rels := range relMap {
		for _, r := range rels {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			lines = append(lines, fmt.Sprintf("[%s] %s", r.ID, r.Title))
		}
	}
	sort.Strings(lines)
	return lines
}

func gapsCopy(state *loopState) []string {
	gaps := make([]string, len(state.gaps))
	for i, gap := range state.gaps {
		gaps[i] = gap.Description
	}
	return gaps
}

func snippet(content string, max int) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "..."
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
