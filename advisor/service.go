// Package advisor orchestrates one advisory turn: claims, the precision
// gate, deterministic calculations, and the plan / retrieve / assess /
// synthesize / validate loop. Every delivered number traces to a profile
// claim, a calculation record, or a cited knowledge document.
package advisor

import (
	"context"
	"fmt"
	"log"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/debashishroy00/wpa-sub002/calc"
	"github.com/debashishroy00/wpa-sub002/config"
	"github.com/debashishroy00/wpa-sub002/facts"
	"github.com/debashishroy00/wpa-sub002/gate"
	"github.com/debashishroy00/wpa-sub002/knowledge"
	"github.com/debashishroy00/wpa-sub002/llm"
	"github.com/debashishroy00/wpa-sub002/retrieval"
	"github.com/debashishroy00/wpa-sub002/trust"
)

type Service struct {
	llm      llm.Client
	facts    *facts.Service
	profile  retrieval.Index
	kb       *knowledge.Index
	graph    *knowledge.Graph
	router   *calc.Router
	sessions *Sessions
	cfg      config.AdvisorConfig
	logger   *log.Logger
}

// NewService wires the orchestrator. The graph may be nil; the llm client
// may be nil, in which case every turn degrades to deterministic answers
// and the claims fallback.
func NewService(llmClient llm.Client, factSvc *facts.Service, profile retrieval.Index, kb *knowledge.Index, graph *knowledge.Graph, cfg config.AdvisorConfig, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		llm:      llmClient,
		facts:    factSvc,
		profile:  profile,
		kb:       kb,
		graph:    graph,
		router:   calc.NewRouter(),
		sessions: NewSessions(cfg.SessionMaxAge()),
		cfg:      cfg,
		logger:   logger,
	}
}

// Sessions exposes the store for the clear operation.
func (s *Service) Sessions() *Sessions {
	return s.sessions
}

// HandleQuery runs one full turn. It always returns a structured Answer on
// success paths, including clarifications and fallbacks; errors are
// reserved for unusable input or missing wiring.
func (s *Service) HandleQuery(ctx context.Context, q Query) (*Answer, error) {
	message := strings.TrimSpace(q.Message)
	if message == "" {
		return nil, fmt.Errorf("message cannot be empty")
	}
	userID := retrieval.NormalizeUserID(q.UserID)
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}
	if s.facts == nil || s.profile == nil || s.kb == nil {
		return nil, fmt.Errorf("advisor is not fully configured")
	}

	sessionID := strings.TrimSpace(q.SessionID)
	if sessionID == "" {
		sessionID = "default"
	}
	mode := q.Mode
	if mode != ModeDetailed {
		mode = ModeConcise
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TurnTimeout())
	defer cancel()

	claims, claimsErr := s.facts.Claims(ctx, userID)
	degraded := claimsErr != nil
	if degraded {
		s.logger.Printf("facts provider unavailable for user %s: %v", userID, claimsErr)
		claims = nil
	}

	if isExplainRequest(message) {
		return s.explainLast(userID, sessionID), nil
	}

	intent, intentConfidence := gate.GuessIntent(message)
	gateRes := gate.Evaluate(gate.Input{
		Message:    message,
		Intent:     intent,
		Confidence: intentConfidence,
		Slots:      messageSlots(message),
	})
	if gateRes.NeedsClarification {
		return clarifyAnswer(gateRes), nil
	}

	if det := s.router.Detect(message, nil); det != nil {
		params := s.router.ExtractParams(message, facts.ClaimMap(claims), det)
		s.applyConfiguredRate(message, det, params)
		answer, err := s.runCalculation(ctx, det, params, claims, userID, sessionID, mode)
		if err == nil {
			return answer, nil
		}
		s.logger.Printf("calculation %s failed, falling back to retrieval: %v", det.Type, err)
	}

	return s.runLoop(ctx, message, userID, sessionID, mode, intent, claims, degraded)
}

// applyConfiguredRate substitutes the configured growth default for the
// compiled-in one when the message names no rate of its own. Withdrawal
// keeps its own 4% convention.
func (s *Service) applyConfiguredRate(message string, det *calc.Detection, params map[string]float64) {
	if s.cfg.DefaultGrowthRate <= 0 || det.Type == calc.TypeWithdrawal {
		return
	}
	if len(calc.ParsePercents(message)) > 0 {
		return
	}
	if _, ok := params["rate"]; ok {
		params["rate"] = s.cfg.DefaultGrowthRate
	}
}

var explainPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bhow\s+did\s+you\s+(get|calculate|compute|arrive\s+at)\b`),
	regexp.MustCompile(`(?i)\bexplain\s+(that|the|your|this)\s+(calculation|number|result|figure|math|answer)\b`),
	regexp.MustCompile(`(?i)\bwhere\s+did\s+(that|the|this)\s+(number|figure|value)\s+come\s+from\b`),
	regexp.MustCompile(`(?i)\bshow\s+(me\s+)?(your|the)\s+(work|math|assumptions)\b`),
	regexp.MustCompile(`(?i)\bwhat\s+assumptions\s+(did|do)\s+you\b`),
	regexp.MustCompile(`(?i)\bbreak\s+(that|it)\s+down\b`),
}

func isExplainRequest(message string) bool {
	for _, p := range explainPatterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}

// explainLast renders the stored record directly. No planning, no
// recomputation; the calculation id in the answer is the stored one.
func (s *Service) explainLast(userID, sessionID string) *Answer {
	rec, ok := s.sessions.Last(userID, sessionID)
	if !ok {
		return &Answer{
			Response: "I haven't run a calculation in this session yet, so there's nothing to break down. " +
				"Ask me to project your net worth, test a goal change, or order your debts, and I'll keep every input on hand.",
			Citations:      []string{},
			Confidence:     0.4,
			GapsIdentified: []string{},
			TrustTier:      trust.TierMedium,
		}
	}
	return &Answer{
		Response:       renderExplanation(rec),
		Citations:      []string{},
		Confidence:     calcConfidence,
		GapsIdentified: []string{},
		TrustTier:      trust.TierMedium,
		CalculationID:  rec.CalculationID,
	}
}

// messageSlots surfaces the entities the gate treats as resolvable signal.
func messageSlots(message string) map[string]string {
	slots := make(map[string]string)
	if amounts := calc.ParseCurrency(message); len(amounts) > 0 {
		slots["amount"] = strconv.FormatFloat(amounts[0], 'f', -1, 64)
	}
	if percents := calc.ParsePercents(message); len(percents) > 0 {
		slots["percent"] = strconv.FormatFloat(percents[0], 'f', -1, 64)
	}
	if years, ok := calc.ParseYears(message); ok {
		slots["years"] = strconv.Itoa(years)
	}
	return slots
}

func clarifyAnswer(res gate.Result) *Answer {
	return &Answer{
		Response:       renderClarify(res.Card, res.Card.Question),
		Citations:      []string{},
		Confidence:     0.2,
		GapsIdentified: []string{},
		TrustTier:      trust.TierMedium,
		Clarify:        res.Card,
	}
}

func (s *Service) timeoutClarify(intent string, state *loopState) *Answer {
	card := gate.CardFor(intent)
	return &Answer{
		Response: renderClarify(card,
			"I ran out of time gathering verified material for that. Which of these is closest to what you need?"),
		Citations:           []string{},
		Confidence:          0.2,
		GapsIdentified:      gapsCopy(state),
		IterationsPerformed: state.iterations,
		TrustTier:           trust.TierMedium,
		Clarify:             card,
	}
}

func (s *Service) fallbackAnswer(claims []facts.Claim, state *loopState, degraded bool) *Answer {
	confidence := 0.3
	if degraded {
		confidence = 0.2
	}
	return &Answer{
		Response:            renderFallback(claims),
		Citations:           []string{},
		Confidence:          confidence,
		GapsIdentified:      gapsCopy(state),
		IterationsPerformed: state.iterations,
		TrustTier:           trust.TierMedium,
	}
}

func (s *Service) finalConfidence(state *loopState, degraded bool) float64 {
	confidence := state.confidence
	if !state.sufficient {
		confidence -= 0.1
	}
	if state.retrievalErrors > 0 {
		confidence -= 0.1
	}
	if degraded {
		confidence -= 0.2
	}
	if confidence < 0.1 {
		confidence = 0.1
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	return math.Round(confidence*100) / 100
}

// authoritativeSet collects every value the answer may state: claims,
// record inputs and outputs (fractions also admitted as percent points),
// assumption text, and the numbers inside retrieved excerpts.
func (s *Service) authoritativeSet(claims []facts.Claim, record *calc.Record, excerpts []excerpt) *trust.Set {
	set := trust.NewSet()
	for _, c := range claims {
		set.Add(c.Value)
	}
	if record != nil {
		for _, v := range record.Inputs {
			set.Add(v)
			if v >= -1 && v <= 1 {
				set.Add(v * 100)
			}
		}
		for _, v := range record.Outputs {
			set.Add(v)
		}
		for _, a := range record.Assumptions {
			set.AddText(a)
		}
	}
	for _, e := range excerpts {
		set.AddText(e.Title)
		set.AddText(e.Content)
	}
	return set
}
