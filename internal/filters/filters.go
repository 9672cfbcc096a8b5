// Package filters evaluates quality filters against scored items. Filters run
// in descending priority order; the first failing filter decides the verdict
// and later filters never see the item.
package filters

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"scout/internal/services"
	"scout/internal/store"
)

// Evaluator is one compiled filter rule.
type Evaluator interface {
	// Pass reports whether the item clears the rule.
	Pass(item *store.Item, sourceName string) bool
}

// KeywordConfig is the config shape for keyword filters. The filter passes
// when the required keywords appear in the title or description and none of
// the excluded ones do.
type KeywordConfig struct {
	Keywords        []string `json:"keywords"`
	ExcludeKeywords []string `json:"exclude_keywords"`
	// MatchAll requires every keyword instead of at least one.
	MatchAll bool `json:"match_all"`
}

// RegexConfig is the config shape for regex filters.
type RegexConfig struct {
	Pattern string `json:"pattern"`
	// Negate inverts the match, turning the pattern into a blocklist.
	Negate bool `json:"negate"`
}

// ScoreThresholdConfig is the config shape for score threshold filters.
type ScoreThresholdConfig struct {
	MinScore float64 `json:"min_score"`
}

// SourceSpecificConfig is the config shape for source-specific filters: items
// from the named sources pass only when one of their tags is in the allow
// list. Items from unlisted sources pass untouched; an empty sources list
// applies the allow list to every item the filter reaches.
type SourceSpecificConfig struct {
	Sources     []string `json:"sources"`
	AllowedTags []string `json:"allowed_tags"`
}

// Compile parses a stored filter's config into an Evaluator.
func Compile(filter *store.Filter) (Evaluator, error) {
	switch filter.Kind {
	case store.FilterKeyword:
		var cfg KeywordConfig
		if err := decodeConfig(filter, &cfg); err != nil {
			return nil, err
		}
		cfg.Keywords = cleanKeywords(cfg.Keywords)
		cfg.ExcludeKeywords = cleanKeywords(cfg.ExcludeKeywords)
		return keywordEvaluator{cfg: cfg}, nil
	case store.FilterRegex:
		var cfg RegexConfig
		if err := decodeConfig(filter, &cfg); err != nil {
			return nil, err
		}
		if cfg.Pattern == "" {
			return nil, services.Wrap(services.ErrConfiguration, "filters", "compile",
				fmt.Sprintf("filter %q has no pattern", filter.Name), nil)
		}
		pattern, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "filters", "compile",
				fmt.Sprintf("filter %q has an invalid pattern", filter.Name), err)
		}
		return regexEvaluator{pattern: pattern, negate: cfg.Negate}, nil
	case store.FilterScoreThreshold:
		var cfg ScoreThresholdConfig
		if err := decodeConfig(filter, &cfg); err != nil {
			return nil, err
		}
		if cfg.MinScore < 0 || cfg.MinScore > 1 {
			return nil, services.Wrap(services.ErrConfiguration, "filters", "compile",
				fmt.Sprintf("filter %q min_score %v is outside [0, 1]", filter.Name, cfg.MinScore), nil)
		}
		return thresholdEvaluator{min: cfg.MinScore}, nil
	case store.FilterSourceSpecific:
		var cfg SourceSpecificConfig
		if err := decodeConfig(filter, &cfg); err != nil {
			return nil, err
		}
		allowed := make(map[string]struct{}, len(cfg.AllowedTags))
		for _, tag := range cleanKeywords(cfg.AllowedTags) {
			allowed[tag] = struct{}{}
		}
		if len(allowed) == 0 {
			return nil, services.Wrap(services.ErrConfiguration, "filters", "compile",
				fmt.Sprintf("filter %q allows no tags", filter.Name), nil)
		}
		sources := make(map[string]struct{}, len(cfg.Sources))
		for _, name := range cfg.Sources {
			sources[name] = struct{}{}
		}
		return sourceSpecificEvaluator{sources: sources, allowed: allowed}, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "filters", "compile",
			fmt.Sprintf("filter %q has unknown kind %q", filter.Name, filter.Kind), nil)
	}
}

// ValidateConfig checks a filter config without registering it. The CLI uses
// this so broken configs never reach the database.
func ValidateConfig(kind, config string) error {
	_, err := Compile(&store.Filter{Name: "candidate", Kind: kind, Config: config})
	return err
}

func decodeConfig(filter *store.Filter, target any) error {
	config := filter.Config
	if config == "" {
		config = "{}"
	}
	if err := json.Unmarshal([]byte(config), target); err != nil {
		return services.Wrap(services.ErrConfiguration, "filters", "compile",
			fmt.Sprintf("filter %q has invalid config", filter.Name), err)
	}
	return nil
}

type keywordEvaluator struct {
	cfg KeywordConfig
}

func (e keywordEvaluator) Pass(item *store.Item, _ string) bool {
	text := strings.ToLower(item.Title + " " + item.Description)
	for _, keyword := range e.cfg.ExcludeKeywords {
		if strings.Contains(text, keyword) {
			return false
		}
	}
	if len(e.cfg.Keywords) == 0 {
		return true
	}
	matched := 0
	for _, keyword := range e.cfg.Keywords {
		if strings.Contains(text, keyword) {
			matched++
		}
	}
	if e.cfg.MatchAll {
		return matched == len(e.cfg.Keywords)
	}
	return matched > 0
}

// cleanKeywords lowercases and trims entries, dropping blanks so they never
// count toward a match_all quota.
func cleanKeywords(keywords []string) []string {
	cleaned := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		if keyword = strings.ToLower(strings.TrimSpace(keyword)); keyword != "" {
			cleaned = append(cleaned, keyword)
		}
	}
	return cleaned
}

type regexEvaluator struct {
	pattern *regexp.Regexp
	negate  bool
}

func (e regexEvaluator) Pass(item *store.Item, _ string) bool {
	matched := e.pattern.MatchString(item.Title) ||
		e.pattern.MatchString(item.Description) ||
		e.pattern.MatchString(item.URL)
	if e.negate {
		return !matched
	}
	return matched
}

type thresholdEvaluator struct {
	min float64
}

func (e thresholdEvaluator) Pass(item *store.Item, _ string) bool {
	return item.QualityScore >= e.min
}

type sourceSpecificEvaluator struct {
	sources map[string]struct{}
	allowed map[string]struct{}
}

func (e sourceSpecificEvaluator) Pass(item *store.Item, sourceName string) bool {
	if len(e.sources) > 0 {
		if _, listed := e.sources[sourceName]; !listed {
			return true
		}
	}
	for _, tag := range item.Tags {
		if _, ok := e.allowed[strings.ToLower(strings.TrimSpace(tag))]; ok {
			return true
		}
	}
	return false
}
