package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/property-matcher/internal/ai"
	"github.com/spigell/property-matcher/internal/estate"
	"github.com/spigell/property-matcher/internal/logger"
	"github.com/spigell/property-matcher/internal/repair"
	"github.com/spigell/property-matcher/internal/utils"
)

const (
	defaultMaxLogLength = 200

	maxPromptMatches  = 5
	maxHistoryEntries = 10
	maxHistoryRunes   = 300

	historyMarker = "[Interaction history]"
)

//go:embed prompt.md
var promptTemplate string

//go:embed insight_schema.json
var insightSchema string

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// Augmenter asks Gemini for narrative advice on an already ranked result set.
type Augmenter struct {
	generator contentGenerator
	parser    *repair.Pipeline
	logger    *zap.Logger
	maxLogLen int
}

func NewAugmenter(generator contentGenerator, maxLogLength int, log *zap.Logger) (*Augmenter, error) {
	if generator == nil {
		return nil, errors.New("gemini generator is required")
	}
	schema, err := repair.ParseSchema(insightSchema)
	if err != nil {
		return nil, fmt.Errorf("load insight schema: %w", err)
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Augmenter{
		generator: generator,
		parser:    repair.NewDefaultPipeline(schema),
		logger:    log.With(logger.AIFields("gemini", generator.Model())...),
		maxLogLen: maxLogLength,
	}, nil
}

type promptMatch struct {
	ListingID    string   `json:"listing_id"`
	Title        string   `json:"title,omitempty"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	Price        float64  `json:"price"`
	ListingType  string   `json:"listing_type"`
	PropertyType string   `json:"property_type,omitempty"`
	Score        int      `json:"score"`
	Tier         string   `json:"tier"`
	Explanation  []string `json:"explanation"`
}

func (a *Augmenter) Augment(ctx context.Context, req *ai.Request) (*ai.Insight, error) {
	if req == nil || len(req.Matches) == 0 {
		return nil, fmt.Errorf("%w: no ranked matches", ai.ErrUnavailable)
	}

	system, message, err := buildPrompt(req.Profile, req.Matches, req.History)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("gemini generate content request",
		zap.String("profile_id", req.Profile.ID),
		zap.Int("matches", len(req.Matches)),
		zap.Int("prompt_length", utf8.RuneCountInString(message)),
		zap.String("prompt_preview", utils.TruncateForLog(message, a.maxLogLen)),
	)

	raw, err := a.generator.GenerateContent(ctx, system, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrUnavailable, err)
	}

	a.logger.Debug("gemini generate content response",
		zap.String("profile_id", req.Profile.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, a.maxLogLen)),
	)

	insight, err := a.parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrUnavailable, err)
	}
	return insight, nil
}

func (a *Augmenter) parse(raw string) (*ai.Insight, error) {
	res, err := a.parser.Run(raw)
	if err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}
	if len(res.Attempts) > 1 {
		a.logger.Debug("gemini response repaired",
			zap.String("stage", res.Stage),
			zap.Int("attempts", len(res.Attempts)),
		)
	}

	var insight ai.Insight
	if err := repair.Decode(res.Data, &insight); err != nil {
		return nil, err
	}
	insight.Urgency = ai.NormalizeUrgency(insight.Urgency)
	insight.Suggestions = cleanList(insight.Suggestions)
	insight.AlternativeLocations = cleanList(insight.AlternativeLocations)
	insight.ParseStage = res.Stage
	insight.Raw = raw
	return &insight, nil
}

func buildPrompt(profile estate.RequirementProfile, matches []ai.Match, history []string) (string, string, error) {
	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal profile payload: %w", err)
	}

	if len(matches) > maxPromptMatches {
		matches = matches[:maxPromptMatches]
	}
	payload := make([]promptMatch, 0, len(matches))
	for _, m := range matches {
		payload = append(payload, promptMatch{
			ListingID:    m.Listing.ID,
			Title:        m.Listing.Title,
			City:         m.Listing.City,
			State:        m.Listing.State,
			Price:        m.Listing.Price,
			ListingType:  string(m.Listing.ListingType),
			PropertyType: string(m.Listing.PropertyType),
			Score:        m.Result.Score,
			Tier:         string(m.Result.Tier),
			Explanation:  m.Explanation,
		})
	}
	matchesJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal matches payload: %w", err)
	}

	system, message := splitPrompt(promptTemplate)
	message = strings.ReplaceAll(message, "{{HISTORY}}", formatHistory(history))
	message = strings.ReplaceAll(message, "{{PROFILE_JSON}}", string(profileJSON))
	message = strings.ReplaceAll(message, "{{MATCHES_JSON}}", string(matchesJSON))
	return system, message, nil
}

// splitPrompt keeps the instructions as the system prompt and sends the inputs as the message.
func splitPrompt(template string) (string, string) {
	if strings.TrimSpace(template) == "" {
		return "", historyMarker + "\n{{HISTORY}}\n\nProfile:\n{{PROFILE_JSON}}\n\nMatches:\n{{MATCHES_JSON}}\n\nJSON Response:"
	}
	idx := strings.Index(template, historyMarker)
	if idx == -1 {
		return "", template
	}
	return strings.TrimSpace(template[:idx]), template[idx:]
}

func formatHistory(history []string) string {
	entries := make([]string, 0, len(history))
	for _, h := range history {
		if s := sanitizeHistoryEntry(h); s != "" {
			entries = append(entries, "  - "+s)
		}
	}
	if len(entries) > maxHistoryEntries {
		entries = entries[len(entries)-maxHistoryEntries:]
	}
	if len(entries) == 0 {
		return "  - none"
	}
	return strings.Join(entries, "\n")
}

// sanitizeHistoryEntry flattens an entry to one line and neutralises section markers.
func sanitizeHistoryEntry(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.NewReplacer("[", "(", "]", ")", "{{", "(", "}}", ")").Replace(s)
	if utf8.RuneCountInString(s) > maxHistoryRunes {
		s = string([]rune(s)[:maxHistoryRunes])
	}
	return s
}

// cleanList trims entries and drops blanks and case-insensitive duplicates, keeping order.
func cleanList(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if item == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
