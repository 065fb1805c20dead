// Package intent maps raw utterance text to one of a small closed set of
// reply strategies. Classification is an ordered cascade of named predicate
// rules; the first matching rule wins and General is the default, so every
// utterance maps to exactly one intent.
package intent

import (
	"strings"

	"aikun/internal/logging"
	"aikun/internal/types"
)

// Vocabulary for the predicate rules. Matching is plain substring matching
// over the lowercased utterance; Japanese needs no case folding but the
// lowercasing keeps romaji input consistent.
var (
	productWords = []string{
		"欲しい", "ほしい", "買いたい", "買う", "買える", "買うには", "購入",
		"通販", "販売", "売って", "取り扱", "在庫", "入荷",
		"安く", "最安", "値段", "価格", "いくら",
		"where to buy", "buy", "cheapest", "in stock", "want",
	}

	nearbyWords = []string{
		"近く", "ちかく", "近所", "周辺", "最寄り", "最寄", "付近", "そばの",
		"nearby", "closest", "around here", "near me",
	}

	addressWords = []string{
		"住所", "所在地", "どこにある", "どこにあり", "どこです", "どこだ",
		"どこで", "場所は", "場所を", "address", "where is",
	}

	describeWords = []string{
		"どんな場所", "どんな店", "どんなお店", "どんなところ", "どんな所",
		"雰囲気", "特徴", "what kind of",
	}
)

// Classify returns the intent for an utterance. Total and deterministic:
// repeated calls with the same input yield the same intent.
//
// Rule order encodes precedence. Product carries its own negative
// exclusions: "near" vocabulary or an explicit place token redirect the same
// surface phrasing to physical-location search, so those utterances must
// fall through to the location-family rules below.
func Classify(utterance string) types.Intent {
	u := strings.ToLower(utterance)

	result := types.IntentGeneral
	switch {
	case isProduct(u):
		result = types.IntentProduct
	case isProximity(u):
		result = types.IntentProximity
	case isAddress(u):
		result = types.IntentAddress
	case isDescribe(u):
		result = types.IntentDescribe
	}

	logging.IntentDebug("classified %q as %s", utterance, result)
	return result
}

// isProduct matches purchase vocabulary, excluding utterances that anchor
// the request to a physical location.
func isProduct(u string) bool {
	if containsAny(u, nearbyWords) {
		return false
	}
	if HasPlaceToken(u) {
		return false
	}
	return containsAny(u, productWords)
}

func isProximity(u string) bool {
	return containsAny(u, nearbyWords)
}

// isAddress matches explicit address/location-of-record questions. Purchase
// phrasing anchored to a place token also lands here: the Product rule above
// already refused it, and "where can I buy X in Shibuya" is a question about
// a location, not about online purchase. Safe because Product is evaluated
// first, so placeless purchase utterances never reach this rule.
func isAddress(u string) bool {
	if containsAny(u, addressWords) {
		return true
	}
	return HasPlaceToken(u) && containsAny(u, productWords)
}

func isDescribe(u string) bool {
	return containsAny(u, describeWords)
}

func containsAny(u string, words []string) bool {
	for _, w := range words {
		if strings.Contains(u, w) {
			return true
		}
	}
	return false
}
