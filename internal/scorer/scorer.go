package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Result is a scoring verdict. Fail-closed results carry Relevant
// false and Confidence zero, never the reverse.
type Result struct {
	// Relevant is the on-task verdict.
	Relevant bool
	// Confidence is the scorer's confidence in [0,1].
	Confidence float64
	// Reason is a short free-text explanation.
	Reason string
	// Source names the stage that decided: "keyword", "allowlist",
	// "cache", "model", or "fail-closed".
	Source string
}

// failClosed is the result for any model timeout, transport error, or
// malformed output. A broken model must never grant access.
func failClosed(reason string) Result {
	return Result{Relevant: false, Confidence: 0, Reason: reason, Source: "fail-closed"}
}

// JustificationResult is the verdict on a free-text justification.
type JustificationResult struct {
	// Accepted reports whether the justification was judged relevant
	// to the block's intention.
	Accepted bool
	// Categories are short topic categories describing the allowed
	// content when accepted, for the browser-side filter.
	Categories []string
	// Reason is the model's explanation.
	Reason string
}

// Scorer runs the staged relevance pipeline. Stages run in strict
// order and short-circuit on the first match: keyword overlap, the
// per-block allowlist, the memo cache, then model inference.
type Scorer struct {
	inference Inference
	timeout   time.Duration
	minMatch  int

	mu        sync.Mutex
	allowlist map[string]bool
	memo      map[string]Result
}

// New creates a scorer. minMatch is the keyword-overlap threshold;
// timeout bounds each inference call.
func New(inference Inference, timeout time.Duration, minMatch int) *Scorer {
	if minMatch < 1 {
		minMatch = 1
	}
	return &Scorer{
		inference: inference,
		timeout:   timeout,
		minMatch:  minMatch,
		allowlist: map[string]bool{},
		memo:      map[string]Result{},
	}
}

// Score classifies a target against the block's intention text. The
// deterministic stages are synchronous; only the inference stage can
// block, bounded by the configured timeout.
func (s *Scorer) Score(ctx context.Context, target, intention, description string) Result {
	// Stage 1: keyword overlap against the intention and description.
	if keywordOverlap(target, intention) >= s.minMatch ||
		(description != "" && keywordOverlap(target, description) >= s.minMatch) {
		return Result{Relevant: true, Confidence: 1, Reason: "keyword match", Source: "keyword"}
	}

	// Stage 2: user-approved allowlist for this exact title.
	s.mu.Lock()
	if s.allowlist[target] {
		s.mu.Unlock()
		return Result{Relevant: true, Confidence: 1, Reason: "user approved", Source: "allowlist"}
	}

	// Stage 3: memoized verdict for (intention, title).
	key := intention + "\x00" + target
	if cached, ok := s.memo[key]; ok {
		s.mu.Unlock()
		cached.Source = "cache"
		return cached
	}
	s.mu.Unlock()

	// Stage 4: model inference, fail-closed.
	result := s.infer(ctx, target, intention, description)
	if result.Source == "model" {
		s.mu.Lock()
		s.memo[key] = result
		s.mu.Unlock()
	}
	return result
}

// Approve adds a title to the current block's allowlist.
func (s *Scorer) Approve(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowlist[target] = true
}

// OnBlockChanged clears the allowlist and the memo cache. Verdicts for
// one block's intention never carry into the next.
func (s *Scorer) OnBlockChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowlist = map[string]bool{}
	s.memo = map[string]Result{}
}

type modelVerdict struct {
	Relevant   bool    `json:"relevant"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

func (s *Scorer) infer(ctx context.Context, target, intention, description string) Result {
	if s.inference == nil {
		return failClosed("no inference client configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`You are judging whether a user's current activity matches their stated intention for this time block.

Intention: %s
Details: %s
Activity: %s

Respond with ONLY a JSON object, no prose:
{"relevant": true|false, "confidence": 0.0-1.0, "reason": "one short sentence"}`,
		intention, description, target)

	raw, err := s.inference.Infer(ctx, prompt)
	if err != nil {
		return failClosed(fmt.Sprintf("inference failed: %v", err))
	}

	var verdict modelVerdict
	if err := json.Unmarshal([]byte(extractJSON(raw)), &verdict); err != nil {
		return failClosed(fmt.Sprintf("unparseable model output: %v", err))
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return failClosed("confidence out of range")
	}

	return Result{
		Relevant:   verdict.Relevant,
		Confidence: verdict.Confidence,
		Reason:     verdict.Reason,
		Source:     "model",
	}
}

type justificationVerdict struct {
	Accepted   bool     `json:"accepted"`
	Categories []string `json:"categories"`
	Reason     string   `json:"reason"`
}

// Justify scores a free-text justification for restricted browsing
// against the block's intention. Model failures reject the
// justification; they never accept it.
func (s *Scorer) Justify(ctx context.Context, justification, intention string) JustificationResult {
	if s.inference == nil {
		return JustificationResult{Accepted: false, Reason: "no inference client configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`A user wants to browse a restricted site during a focus block and gave this justification.

Block intention: %s
Justification: %s

Judge whether the justification genuinely serves the intention. If accepted, list 1-3 short topic categories describing what content would serve it.

Respond with ONLY a JSON object, no prose:
{"accepted": true|false, "categories": ["..."], "reason": "one short sentence"}`,
		intention, justification)

	raw, err := s.inference.Infer(ctx, prompt)
	if err != nil {
		return JustificationResult{Accepted: false, Reason: fmt.Sprintf("inference failed: %v", err)}
	}

	var verdict justificationVerdict
	if err := json.Unmarshal([]byte(extractJSON(raw)), &verdict); err != nil {
		return JustificationResult{Accepted: false, Reason: fmt.Sprintf("unparseable model output: %v", err)}
	}

	return JustificationResult{
		Accepted:   verdict.Accepted,
		Categories: verdict.Categories,
		Reason:     verdict.Reason,
	}
}

// extractJSON strips code fences and surrounding prose, returning the
// first top-level JSON object in the text.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}
