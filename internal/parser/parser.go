package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"solana-intent-bot/internal/completion"
	"solana-intent-bot/internal/models"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// fallbackConfidence is reported when the completion service fails.
// Anything below the actionable threshold is presented as analysis only.
const fallbackConfidence = 0.1

const systemPrompt = `You are a trading instruction parser. Classify the user's message
into exactly one intent: MARKET_BUY, MARKET_SELL, LIMIT_BUY, LIMIT_SELL, ANALYZE,
SET_STOP_LOSS or SET_TAKE_PROFIT. Reply with a single JSON object:
{"intent": "...", "confidence": 0.0-1.0, "parameters": {"asset": "...", "amount": 0,
"price": 0, "stop_loss": 0, "take_profit": 0, "slippage": 0, "timeframe": "...",
"strategy": "..."}}. Omit parameters you cannot infer. No prose outside the JSON.`

// ParsedTradeMessage is the typed result of parsing one free-text instruction.
type ParsedTradeMessage struct {
	Intent     models.TradingIntent   `json:"intent"`
	Parameters models.TradeParameters `json:"parameters"`
	Confidence float64                `json:"confidence"`
	RawMessage string                 `json:"raw_message"`
}

// ConversationContext is the rolling state of one conversation. It is owned
// exclusively by a single Parser and never shared across conversations.
type ConversationContext struct {
	CurrentAsset    string               `json:"current_asset,omitempty"`
	CurrentStrategy string               `json:"current_strategy,omitempty"`
	LastIntent      models.TradingIntent `json:"last_intent,omitempty"`
	MessageHistory  []string             `json:"message_history,omitempty"`
}

// Parser turns free text plus conversation context into a typed trading intent.
type Parser struct {
	completions completion.ClientInterface
	logger      *zap.Logger

	mu  sync.Mutex
	ctx ConversationContext
}

// NewParser creates a new intent parser with an empty conversation context.
func NewParser(completions completion.ClientInterface, logger *zap.Logger) *Parser {
	return &Parser{
		completions: completions,
		logger:      logger.Named("parser"),
	}
}

// completionReply is the strict schema expected from the completion service.
type completionReply struct {
	Intent     string                 `json:"intent"`
	Confidence float64                `json:"confidence"`
	Parameters models.TradeParameters `json:"parameters"`
}

var validIntents = map[models.TradingIntent]bool{
	models.IntentMarketBuy:     true,
	models.IntentMarketSell:    true,
	models.IntentLimitBuy:      true,
	models.IntentLimitSell:     true,
	models.IntentAnalyze:       true,
	models.IntentSetStopLoss:   true,
	models.IntentSetTakeProfit: true,
}

// Parse classifies one message. It never returns an error: any completion
// failure or malformed reply degrades to a low-confidence ANALYZE result
// that callers must treat as non-actionable.
func (p *Parser) Parse(ctx context.Context, message string) ParsedTradeMessage {
	prompt := p.buildUserPrompt(message)

	reply, err := p.completions.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		p.logger.Warn("Completion service failed, returning fallback intent", zap.Error(err))
		return p.fallback(message)
	}

	parsed, err := decodeReply(reply)
	if err != nil {
		p.logger.Warn("Malformed completion reply, returning fallback intent",
			zap.String("reply", reply),
			zap.Error(err),
		)
		return p.fallback(message)
	}

	p.mu.Lock()
	p.ctx.MessageHistory = append(p.ctx.MessageHistory, message)
	if parsed.Parameters.Asset != "" {
		p.ctx.CurrentAsset = parsed.Parameters.Asset
	}
	if parsed.Parameters.Strategy != "" {
		p.ctx.CurrentStrategy = parsed.Parameters.Strategy
	}
	p.ctx.LastIntent = parsed.Intent
	p.mu.Unlock()

	parsed.RawMessage = message
	return parsed
}

// buildUserPrompt embeds the conversation context so follow-up messages like
// "sell half of it" resolve against the current asset.
func (p *Parser) buildUserPrompt(message string) string {
	p.mu.Lock()
	snapshot := p.snapshotLocked()
	p.mu.Unlock()

	var b strings.Builder
	if snapshot.CurrentAsset != "" {
		fmt.Fprintf(&b, "Current asset: %s\n", snapshot.CurrentAsset)
	}
	if snapshot.CurrentStrategy != "" {
		fmt.Fprintf(&b, "Current strategy: %s\n", snapshot.CurrentStrategy)
	}
	if snapshot.LastIntent != "" {
		fmt.Fprintf(&b, "Last intent: %s\n", snapshot.LastIntent)
	}
	if n := len(snapshot.MessageHistory); n > 0 {
		recent := snapshot.MessageHistory
		if n > 5 {
			recent = recent[n-5:]
		}
		fmt.Fprintf(&b, "Recent messages: %s\n", strings.Join(recent, " | "))
	}
	fmt.Fprintf(&b, "Message: %s", message)
	return b.String()
}

// decodeReply extracts and validates the JSON object from a completion reply.
// The reply is untrusted input: it may wrap the JSON in code fences or prose.
func decodeReply(reply string) (ParsedTradeMessage, error) {
	raw, ok := extractJSONObject(reply)
	if !ok {
		return ParsedTradeMessage{}, fmt.Errorf("no JSON object in reply")
	}
	if !gjson.Valid(raw) {
		return ParsedTradeMessage{}, fmt.Errorf("invalid JSON in reply")
	}
	if !gjson.Get(raw, "intent").Exists() {
		return ParsedTradeMessage{}, fmt.Errorf("reply missing intent field")
	}

	var decoded completionReply
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return ParsedTradeMessage{}, fmt.Errorf("failed to decode reply: %w", err)
	}

	intent := models.TradingIntent(strings.ToUpper(strings.TrimSpace(decoded.Intent)))
	if !validIntents[intent] {
		return ParsedTradeMessage{}, fmt.Errorf("unknown intent %q", decoded.Intent)
	}

	confidence := decoded.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return ParsedTradeMessage{
		Intent:     intent,
		Parameters: decoded.Parameters,
		Confidence: confidence,
	}, nil
}

// extractJSONObject returns the first balanced JSON object in s.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1]), true
			}
		}
	}
	return "", false
}

// fallback is the degraded result for any parse failure. Context is left
// untouched apart from reading the last known asset.
func (p *Parser) fallback(message string) ParsedTradeMessage {
	p.mu.Lock()
	asset := p.ctx.CurrentAsset
	p.mu.Unlock()

	return ParsedTradeMessage{
		Intent: models.IntentAnalyze,
		Parameters: models.TradeParameters{
			Strategy: "error_fallback",
			Asset:    asset,
		},
		Confidence: fallbackConfidence,
		RawMessage: message,
	}
}

// Context returns a read-only snapshot of the conversation context.
func (p *Parser) Context() ConversationContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Parser) snapshotLocked() ConversationContext {
	snapshot := p.ctx
	snapshot.MessageHistory = append([]string(nil), p.ctx.MessageHistory...)
	return snapshot
}

// ResetContext clears all conversation context fields.
func (p *Parser) ResetContext() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx = ConversationContext{}
}
