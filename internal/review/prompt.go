package review

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cardcapture/internal/model"
)

const systemPrompt = `You are a data-quality reviewer for handwritten and printed inquiry cards.
You receive the card image and the fields an OCR pass extracted from it.
For every field, compare the extracted value against what the image shows and
correct OCR mistakes, typos, and formatting problems. Never invent data that
is not on the card. Respond with a single JSON object and nothing else.`

const responseContract = `Respond with a JSON object keyed by field name. Every input field must appear.
Each value is an object with exactly these keys:
  "value": the corrected value, or the original if no change was needed
  "edit_made": boolean
  "edit_type": one of "format_correction", "ocr_correction", "typo_fix", "cross_validation_fix", "missing_data", "unclear_text", "none"
  "text_clarity": one of "clear", "mostly_clear", "unclear", "unreadable"
  "certainty": one of "certain", "mostly_certain", "uncertain"
  "notes": short explanation of any edit, or ""
  "requires_human_review": boolean, true only when a human must look at this field`

// promptField is the per-field payload shown to the model.
type promptField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// buildPrompt renders the user-turn text for a review request. Only enabled
// fields are included; the returned key set is what the response is checked
// against.
func buildPrompt(fields model.FieldRecord, vocab []string) (string, []string, error) {
	payload := make(map[string]promptField)
	var keys []string
	for key, entry := range fields {
		if entry == nil || !entry.Enabled {
			continue
		}
		payload[key] = promptField{Value: entry.Value, Confidence: entry.Confidence}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", nil, eris.Wrap(err, "review: marshal prompt fields")
	}

	var b strings.Builder
	b.WriteString("Extracted fields:\n")
	b.Write(body)
	b.WriteString("\n\n")
	if len(vocab) > 0 {
		fmt.Fprintf(&b, "When mapping a major, choose only from this list: %s\n\n", strings.Join(vocab, ", "))
	}
	b.WriteString(responseContract)
	return b.String(), keys, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON
// in one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
