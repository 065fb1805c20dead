// Package pipeline wires classification, refinement, research, and
// synthesis into the per-event reply flow.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aikun/internal/conversation"
	"aikun/internal/intent"
	"aikun/internal/logging"
	"aikun/internal/refine"
	"aikun/internal/reply"
	"aikun/internal/research"
	"aikun/internal/types"
)

// resetCommands trigger a history wipe instead of a reply.
var resetCommands = map[string]bool{
	"リセット":   true,
	"reset":  true,
	"/reset": true,
}

// Inbound is one text event after transport decoding.
type Inbound struct {
	GroupID string
	RoomID  string
	UserID  string
	Text    string
}

// Tunables are the hot-reloadable pipeline knobs.
type Tunables struct {
	// PendingLookbackTurns bounds the backward scan for an unanswered
	// location clarification.
	PendingLookbackTurns int
	// DailyQuota caps replies per user per day. Zero disables the cap.
	DailyQuota int
}

// Pipeline owns one reply flow per inbound event. Collaborators are
// injected so tests can script every external surface.
type Pipeline struct {
	manager     *conversation.Manager
	refiner     *refine.Refiner
	extractor   *refine.Extractor
	aggregator  *research.Aggregator
	synthesizer *reply.Synthesizer
	quota       types.QuotaStore

	mu  sync.RWMutex
	tun Tunables
}

func New(manager *conversation.Manager, refiner *refine.Refiner, extractor *refine.Extractor, aggregator *research.Aggregator, synthesizer *reply.Synthesizer, quota types.QuotaStore, tun Tunables) *Pipeline {
	if tun.PendingLookbackTurns <= 0 {
		tun.PendingLookbackTurns = 6
	}
	return &Pipeline{
		manager:     manager,
		refiner:     refiner,
		extractor:   extractor,
		aggregator:  aggregator,
		synthesizer: synthesizer,
		quota:       quota,
		tun:         tun,
	}
}

// Retune swaps the pipeline knobs. Called from the config reload path.
func (p *Pipeline) Retune(tun Tunables) {
	if tun.PendingLookbackTurns <= 0 {
		tun.PendingLookbackTurns = 6
	}
	p.mu.Lock()
	p.tun = tun
	p.mu.Unlock()
}

func (p *Pipeline) tunables() Tunables {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tun
}

// Handle runs one inbound text event through the full flow and returns
// the reply text. It never returns an error: every internal failure
// resolves to a user-visible reply per the soft-fail rules, with reset
// as the one operation whose failure is reported.
func (p *Pipeline) Handle(ctx context.Context, in Inbound) string {
	eventID := uuid.New().String()[:8]
	convID := conversation.DeriveConversationID(in.GroupID, in.RoomID, in.UserID)
	text := strings.TrimSpace(in.Text)
	tun := p.tunables()

	logging.Pipeline("[%s] event conv=%s len=%d", eventID, convID, len(text))

	if resetCommands[strings.ToLower(text)] {
		if err := p.manager.Reset(ctx, convID); err != nil {
			logging.PipelineError("[%s] reset failed: %v", eventID, err)
			return reply.ResetFailedReply
		}
		return reply.ResetDoneReply
	}

	if over := p.consumeQuota(ctx, eventID, in.UserID, tun.DailyQuota); over {
		return reply.QuotaExceededReply
	}

	history := p.manager.Load(ctx, convID)
	p.manager.Append(ctx, convID, types.RoleUser, text)

	// A pending location clarification folds the earlier query into
	// this turn before anything else looks at it.
	effective := text
	if pending, ok := conversation.FindPendingQuery(history, reply.ClarificationQuestion, tun.PendingLookbackTurns); ok {
		effective = refine.MergePending(pending, text)
		logging.Pipeline("[%s] merged pending query", eventID)
	}

	detected := intent.Classify(effective)
	logging.Intent("[%s] intent=%s", eventID, detected)

	if detected == types.IntentProximity && !intent.HasPlaceToken(effective) {
		p.manager.Append(ctx, convID, types.RoleAssistant, reply.ClarificationQuestion)
		return reply.ClarificationQuestion
	}

	var (
		evidence       types.EvidenceBundle
		marketplaceURL string
	)
	if detected.NeedsResearch() {
		evidence, marketplaceURL = p.research(ctx, eventID, effective, detected)
	}

	draft := p.synthesizer.Synthesize(ctx, effective, history, detected, evidence, marketplaceURL)
	p.manager.Append(ctx, convID, types.RoleAssistant, draft.Text)
	return draft.Text
}

// research refines the query and gathers evidence; for purchase intents
// the product-term extraction runs concurrently with the search
// fan-out.
func (p *Pipeline) research(ctx context.Context, eventID, utterance string, detected types.Intent) (types.EvidenceBundle, string) {
	var (
		marketplaceURL string
		wg             sync.WaitGroup
	)
	if detected == types.IntentProduct {
		wg.Add(1)
		go func() {
			defer wg.Done()
			term := p.extractor.ExtractProductTerm(ctx, utterance)
			marketplaceURL = refine.BuildMarketplaceURL(term)
		}()
	}

	query := p.refiner.Refine(ctx, utterance, detected)
	evidence := p.aggregator.Aggregate(ctx, query, detected)
	logging.Research("[%s] query=%q results=%d", eventID, query, len(evidence.Results))

	wg.Wait()
	return evidence, marketplaceURL
}

// consumeQuota burns one unit of the user's daily allowance. Storage
// errors fail open: a broken quota table must not silence the bot.
func (p *Pipeline) consumeQuota(ctx context.Context, eventID, userID string, limit int) bool {
	if limit <= 0 || userID == "" || p.quota == nil {
		return false
	}
	day := time.Now().UTC().Format("2006-01-02")
	count, err := p.quota.Consume(ctx, userID, day)
	if err != nil {
		logging.PipelineWarn("[%s] quota check failed: %v", eventID, err)
		return false
	}
	return count > limit
}
