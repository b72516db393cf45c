// Package review runs the AI quality pass over an extracted field record and
// decides the record's final review status.
package review

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cardcapture/internal/config"
	"github.com/sells-group/cardcapture/internal/model"
	"github.com/sells-group/cardcapture/pkg/anthropic"
)

// outcome is one field's entry in the model's response.
type outcome struct {
	Value               string `json:"value"`
	EditMade            bool   `json:"edit_made"`
	EditType            string `json:"edit_type"`
	TextClarity         string `json:"text_clarity"`
	Certainty           string `json:"certainty"`
	Notes               string `json:"notes"`
	RequiresHumanReview bool   `json:"requires_human_review"`
}

// Reviewer sends field records plus the card image to the model and applies
// the corrections it returns.
type Reviewer struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

func NewReviewer(client anthropic.Client, cfg config.ReviewConfig) *Reviewer {
	return &Reviewer{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens, timeout: cfg.Timeout()}
}

// Review mutates fields in place with the model's corrections. The error is
// a semantic failure (malformed response, missing keys) or a transport
// failure; on error fields is left unchanged and the caller falls back.
func (r *Reviewer) Review(ctx context.Context, fields model.FieldRecord, image []byte, mimeType string, vocab []string) error {
	prompt, keys, err := buildPrompt(fields, vocab)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	msg := anthropic.Message{Role: "user", Content: prompt}
	if len(image) > 0 {
		msg.Image = &anthropic.ImageBlock{
			MediaType: mimeType,
			Data:      base64.StdEncoding.EncodeToString(image),
		}
	}

	resp, err := r.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.model,
		MaxTokens: int64(r.maxTokens),
		System:    systemPrompt,
		Messages:  []anthropic.Message{msg},
	})
	if err != nil {
		return eris.Wrap(err, "review: create message")
	}
	resp.Usage.LogUsage(r.model, "review")

	outcomes, err := parseResponse(resp.Text, keys)
	if err != nil {
		return err
	}
	apply(fields, outcomes)
	return nil
}

// parseResponse decodes the model output and checks that every requested key
// is present. Both failures are hard errors.
func parseResponse(text string, keys []string) (map[string]outcome, error) {
	var outcomes map[string]outcome
	if err := json.Unmarshal([]byte(stripFences(text)), &outcomes); err != nil {
		return nil, eris.Wrap(err, "review: malformed response")
	}
	var missing []string
	for _, k := range keys {
		if _, ok := outcomes[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("review: response missing fields: %s", strings.Join(missing, ", "))
	}
	return outcomes, nil
}

func apply(fields model.FieldRecord, outcomes map[string]outcome) {
	edits := 0
	for key, out := range outcomes {
		entry, ok := fields[key]
		if !ok || entry == nil {
			continue
		}
		if out.EditMade {
			entry.Value = out.Value
			entry.Source = model.SourceAIReview
			edits++
		}
		entry.ReviewConfidence = scoreConfidence(entry.Value, out.TextClarity, out.Certainty, out.EditType)
		entry.RequiresHumanReview = out.RequiresHumanReview
		entry.ReviewNotes = out.Notes
	}
	zap.L().Debug("review applied", zap.Int("fields", len(outcomes)), zap.Int("edits", edits))
}

// Fallback grades every enabled field as unclear/uncertain without touching
// its value. Used when the review call fails so the record still carries a
// usable confidence signal.
func Fallback(fields model.FieldRecord) {
	for _, entry := range fields {
		if entry == nil || !entry.Enabled {
			continue
		}
		entry.ReviewConfidence = scoreConfidence(entry.Value, ClarityUnclear, CertaintyUncertain, "none")
		entry.RequiresHumanReview = false
		entry.ReviewNotes = "AI review did not run"
	}
}
