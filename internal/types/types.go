// Package types defines the shared domain types and collaborator interfaces
// for the reply pipeline. All other internal packages depend on this one;
// it depends on nothing but the standard library.
package types

import (
	"context"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one immutable entry in a conversation's turn log.
type Turn struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Intent is the closed-set category an utterance is routed to.
type Intent int

const (
	// IntentGeneral is the default: answer from the model plus history alone.
	IntentGeneral Intent = iota
	// IntentProduct asks where/how to buy something online.
	IntentProduct
	// IntentProximity asks for something nearby a physical location.
	IntentProximity
	// IntentAddress asks for an address or location of record.
	IntentAddress
	// IntentDescribe asks what kind of place/feature something is.
	IntentDescribe
)

// String returns the lowercase tag used in logs and prompt guidance keys.
func (i Intent) String() string {
	switch i {
	case IntentProduct:
		return "product"
	case IntentProximity:
		return "proximity"
	case IntentAddress:
		return "address"
	case IntentDescribe:
		return "describe"
	default:
		return "general"
	}
}

// NeedsResearch reports whether the intent routes through the Research
// Aggregator before synthesis.
func (i Intent) NeedsResearch() bool {
	return i != IntentGeneral
}

// Platform tags the origin of a search result.
type Platform string

const (
	PlatformWeb       Platform = "web"
	PlatformX         Platform = "x"
	PlatformInstagram Platform = "instagram"
	PlatformReddit    Platform = "reddit"
	PlatformYouTube   Platform = "youtube"
)

// SearchResult is one normalized result from a search backend.
// Results live only for the duration of a single reply synthesis.
type SearchResult struct {
	Title    string
	Snippet  string
	Link     string
	Platform Platform
}

// EvidenceBundle is the deduplicated, capped evidence set handed to the
// synthesizer, together with the query that produced it.
type EvidenceBundle struct {
	Query   string
	Results []SearchResult
	Recency string // coarse window actually applied: "w", "m" or "y"
}

// Empty reports whether the bundle carries no usable evidence.
func (b EvidenceBundle) Empty() bool { return len(b.Results) == 0 }

// ReplyDraft is a synthesized reply plus the link obligations that must hold
// in Text before it leaves the pipeline.
type ReplyDraft struct {
	Text           string
	MarketplaceURL string   // empty when no product term was derived
	CitationLinks  []string // evidence links eligible for the sources block
}

// Message is one entry of an LLM chat payload.
type Message struct {
	Role    Role
	Content string
}

// GenerateOptions bound a single LLM call.
type GenerateOptions struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// LLMClient is the language-model backend contract. It is called with
// independent prompt/parameter sets for query refinement, product-term
// extraction and full reply synthesis.
type LLMClient interface {
	Chat(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
}

// SearchOptions parameterize one backend search call.
type SearchOptions struct {
	Locale     string // backend locale pair, e.g. "jp-jp"
	Recency    string // "", "w", "m" or "y"
	SiteFilter string // appended to the query, e.g. "site:x.com OR site:reddit.com"
	Max        int
}

// SearchClient is the search backend contract. A backend returns an empty
// slice when nothing matches; it never treats "no results" as an error.
type SearchClient interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

// TurnStore is the persistence contract for the conversation turn log.
type TurnStore interface {
	LoadTurns(ctx context.Context, conversationID string, limit int) ([]Turn, error)
	AppendTurn(ctx context.Context, conversationID string, role Role, content string) error
	DeleteTurns(ctx context.Context, conversationID string) error
}

// QuotaStore tracks per-user daily usage. Injected into the pipeline so the
// core stays testable without process-wide state.
type QuotaStore interface {
	// Consume records one use for the user on the given day and returns the
	// total after recording.
	Consume(ctx context.Context, userID string, day string) (int, error)
}
