package batch

import "cbsent/internal/domain"

// SystemPrompt is the system message sent with every request.
const SystemPrompt = "You are an expert in central bank communication analysis."

// TruncationMarker is appended to document texts cut to the per-document budget.
const TruncationMarker = "\n\n[Speech truncated due to length]"

// BuildSentimentPrompt returns the user message asking the model to score one speech.
func BuildSentimentPrompt(doc *domain.Document, text string) string {
	return `Analyze the following central bank speech and extract monetary policy sentiment indicators used by market participants and economists.

Speech information:
- Speaker: ` + doc.Author + `
- Institution: ` + doc.Institution + `
- Date: ` + doc.Date + `

Speech text:
` + text + `

Extract the following, based only on the content of the speech:

1. hawkish_dovish_score: number from -100 (extremely dovish, favoring lower rates and more accommodation) through 0 (neutral) to +100 (extremely hawkish, favoring higher rates and less accommodation). Weigh inflation language, rate intentions, the balance of risks and the urgency of action.

2. topics: emphasis from 0 (not mentioned) to 100 (major focus) for inflation, growth, financial_stability, labor_market and international.

3. uncertainty: 0 (confident, definitive language) to 100 (highly conditional language such as "depends on", "might", "could").

4. forward_guidance_strength: 0 (describes current conditions only), 50 (hints at future direction), 100 (explicit commitment with a timeline).

5. key_sentences: two or three direct quotes that best support the score.

6. market_impact: the likely immediate reaction of stocks, bond yields and the currency (USD for the Federal Reserve, EUR for the ECB). Each value MUST be exactly "rise", "fall" or "neutral". Do not use "strengthen", "weaken", "up", "down" or any other word. Add one sentence of reasoning.

7. summary: one paragraph summarizing the main policy message and stance.

Respond ONLY with a JSON object in exactly this shape, with no markdown and no code fences:
{
  "hawkish_dovish_score": 0,
  "topics": {
    "inflation": 0,
    "growth": 0,
    "financial_stability": 0,
    "labor_market": 0,
    "international": 0
  },
  "uncertainty": 0,
  "forward_guidance_strength": 0,
  "key_sentences": ["sentence 1", "sentence 2"],
  "market_impact": {
    "stocks": "neutral",
    "bonds": "neutral",
    "currency": "neutral",
    "reasoning": "one sentence"
  },
  "summary": "one paragraph"
}`
}
