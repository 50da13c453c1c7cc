package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/menta2k/image-splitter/pkg/client"
	"github.com/menta2k/image-splitter/pkg/layout"
	"github.com/menta2k/image-splitter/pkg/processing"
	"github.com/menta2k/image-splitter/pkg/types"
)

// DefaultPrompt asks for split positions as fractions
const DefaultPrompt = `You are a layout assistant that cuts a sheet into separate pictures.

Return JSON only:
{"h_lines": [0.0], "v_lines": [0.0]}

HARD RULES
- h_lines are horizontal cuts, given as a fraction of the image height from the top.
- v_lines are vertical cuts, given as a fraction of the image width from the left.
- All values are normalized to [0,1] (NOT pixels).
- Place each cut in the middle of the empty gap between two pictures.
- Never cut at the outer border of the image.
- If the image is a single picture, return {"h_lines": [], "v_lines": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// mergeDistance is how close two suggested lines may be before they count as one
const mergeDistance = 0.005

// Config holds the suggestion settings
type Config struct {
	Model       string
	Prompt      string
	SendSize    int // longest side of the image sent to the model
	SendQuality int // JPEG quality of the image sent to the model
}

// DefaultConfig returns the default suggestion settings
func DefaultConfig() Config {
	return Config{
		Model:       "openbmb/minicpm-v4.5",
		Prompt:      DefaultPrompt,
		SendSize:    1536,
		SendQuality: 85,
	}
}

// Suggester proposes split lines with a vision model
type Suggester struct {
	client    client.VisionClient
	processor *processing.Processor
	config    Config
}

// New creates a Suggester backed by c
func New(c client.VisionClient, config Config) *Suggester {
	def := DefaultConfig()
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.Prompt == "" {
		config.Prompt = def.Prompt
	}
	if config.SendSize <= 0 {
		config.SendSize = def.SendSize
	}
	if config.SendQuality <= 0 || config.SendQuality > 100 {
		config.SendQuality = def.SendQuality
	}
	return &Suggester{
		client:    c,
		processor: processing.NewProcessor(),
		config:    config,
	}
}

// Suggest returns the split lines proposed for img. A reply that carries no usable
// JSON yields an empty configuration rather than an error.
func (s *Suggester) Suggest(ctx context.Context, img image.Image) (layout.SplitConfig, error) {
	imgB64, err := s.processor.PrepareImageForModel(img, "jpeg", s.config.SendSize, s.config.SendQuality)
	if err != nil {
		return layout.SplitConfig{}, fmt.Errorf("failed to prepare image: %w", err)
	}

	raw, err := s.client.Query(ctx, s.config.Model, s.config.Prompt, imgB64)
	if err != nil {
		return layout.SplitConfig{}, fmt.Errorf("suggestion query failed: %w", err)
	}
	return ParseReply(raw), nil
}

type reply struct {
	HLines []float64 `json:"h_lines"`
	VLines []float64 `json:"v_lines"`
}

// ParseReply turns a model reply into a normalized split configuration
func ParseReply(raw string) layout.SplitConfig {
	var r reply
	cleaned := sanitizeModelJSON(raw)
	if strings.HasPrefix(cleaned, "{") {
		if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
			r = reply{}
		}
	}

	cfg := layout.SplitConfig{
		HLines: cleanPositions(r.HLines),
		VLines: cleanPositions(r.VLines),
	}
	cfg.Normalize()
	return cfg
}

// cleanPositions clamps, sorts and merges near-duplicates. Lines on the border are dropped.
func cleanPositions(in []float64) []float64 {
	out := make([]float64, 0, len(in))
	for _, v := range in {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		// Models sometimes answer in percent
		if v > 1 && v <= 100 {
			v /= 100
		}
		v = types.Clamp01(v)
		if v <= 0 || v >= 1 {
			continue
		}
		out = append(out, v)
	}
	sort.Float64s(out)

	merged := out[:0]
	for _, v := range out {
		if n := len(merged); n > 0 && v-merged[n-1] < mergeDistance {
			continue
		}
		merged = append(merged, v)
	}
	if len(merged) > layout.MaxGrid-1 {
		merged = merged[:layout.MaxGrid-1]
	}
	return merged
}

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments and trailing commas from a model reply
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
