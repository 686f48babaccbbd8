package rules

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/secmon/internal/errs"
	"github.com/telhawk-systems/secmon/internal/models"
)

// Rule type tags used in the YAML rule file.
const (
	typeRateThreshold = "rate_threshold"
	typePattern       = "pattern"
	typeAnomaly       = "anomaly"
)

// ruleFile is the YAML rule file shape.
type ruleFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

// ruleSpec is one rule entry. Durations are strings ("5m", "30s").
type ruleSpec struct {
	Name        string  `yaml:"name"`
	Type        string  `yaml:"type"`
	EventType   string  `yaml:"event_type"`
	Threshold   int     `yaml:"threshold"`
	Window      string  `yaml:"window"`
	Cooldown    string  `yaml:"cooldown"`
	Pattern     string  `yaml:"pattern"`
	ShortWindow string  `yaml:"short_window"`
	Multiplier  float64 `yaml:"multiplier"`
	MinEvents   int     `yaml:"min_events"`
	Severity    string  `yaml:"severity"`
	Title       string  `yaml:"title"`
	Description string  `yaml:"description"`
	Action      string  `yaml:"action"`
	BlockSource bool    `yaml:"block_source"`
}

// LoadFile parses a YAML rule file and builds the rule set. Any malformed
// entry is a ConfigurationError; the whole load fails.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigurationError{Key: "rules.file", Err: err}
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &errs.ConfigurationError{Key: "rules.file", Err: err}
	}
	if len(file.Rules) == 0 {
		return nil, &errs.ConfigurationError{Key: "rules.file", Err: fmt.Errorf("no rules defined in %s", path)}
	}

	rules := make([]Rule, 0, len(file.Rules))
	for _, spec := range file.Rules {
		rule, err := buildRule(spec)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func buildRule(spec ruleSpec) (Rule, error) {
	switch spec.Type {
	case typeRateThreshold:
		window, err := parseDuration(spec.Name, "window", spec.Window)
		if err != nil {
			return nil, err
		}
		cooldown, err := parseOptionalDuration(spec.Name, "cooldown", spec.Cooldown)
		if err != nil {
			return nil, err
		}
		return NewRateThreshold(RateThresholdSpec{
			Name:        spec.Name,
			EventType:   models.EventType(spec.EventType),
			Threshold:   spec.Threshold,
			Window:      window,
			Cooldown:    cooldown,
			Severity:    models.Severity(spec.Severity),
			Title:       spec.Title,
			Description: spec.Description,
			Action:      spec.Action,
			BlockSource: spec.BlockSource,
		})
	case typePattern:
		cooldown, err := parseOptionalDuration(spec.Name, "cooldown", spec.Cooldown)
		if err != nil {
			return nil, err
		}
		return NewPattern(PatternSpec{
			Name:      spec.Name,
			EventType: models.EventType(spec.EventType),
			Pattern:   spec.Pattern,
			Cooldown:  cooldown,
			Severity:  models.Severity(spec.Severity),
			Title:     spec.Title,
			Action:    spec.Action,
		})
	case typeAnomaly:
		shortWindow, err := parseDuration(spec.Name, "short_window", spec.ShortWindow)
		if err != nil {
			return nil, err
		}
		cooldown, err := parseOptionalDuration(spec.Name, "cooldown", spec.Cooldown)
		if err != nil {
			return nil, err
		}
		return NewAnomaly(AnomalySpec{
			Name:        spec.Name,
			ShortWindow: shortWindow,
			Multiplier:  spec.Multiplier,
			MinEvents:   spec.MinEvents,
			Cooldown:    cooldown,
			Severity:    models.Severity(spec.Severity),
			Title:       spec.Title,
			Action:      spec.Action,
		})
	default:
		return nil, &errs.ConfigurationError{Key: "rules." + spec.Name + ".type", Err: fmt.Errorf("unknown rule type %q", spec.Type)}
	}
}

func parseDuration(rule, key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &errs.ConfigurationError{Key: "rules." + rule + "." + key, Err: err}
	}
	return d, nil
}

func parseOptionalDuration(rule, key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return parseDuration(rule, key, value)
}

// Defaults returns the built-in rule set used when no rule file is
// configured: brute-force login detection, rate-limit abuse, injection
// pattern matching, and a global volume anomaly.
func Defaults() []Rule {
	bruteForce, err := NewRateThreshold(RateThresholdSpec{
		Name:        "brute-force-login",
		EventType:   models.EventLoginFailed,
		Threshold:   10,
		Window:      5 * time.Minute,
		Severity:    models.SeverityHigh,
		Title:       "Brute force attack detected",
		Description: "repeated failed logins",
		Action:      "Block the source identifier and force credential rotation for targeted accounts",
		BlockSource: true,
	})
	if err != nil {
		panic(err) // static spec, cannot fail
	}

	rateAbuse, err := NewRateThreshold(RateThresholdSpec{
		Name:        "rate-limit-abuse",
		EventType:   models.EventRateLimitExceeded,
		Threshold:   20,
		Window:      5 * time.Minute,
		Severity:    models.SeverityMedium,
		Title:       "Sustained rate limit abuse",
		Description: "repeated rate limit violations",
		Action:      "Tighten rate limits for the source or add it to the block list",
	})
	if err != nil {
		panic(err)
	}

	injection, err := NewPattern(PatternSpec{
		Name:      "injection-pattern",
		EventType: models.EventInjectionAttempt,
		Pattern:   `(?i)(union\s+select|<script|\.\./|;\s*drop\s+table)`,
		Severity:  models.SeverityCritical,
		Title:     "Injection attempt detected",
		Action:    "Block the source identifier and review WAF coverage for the targeted endpoint",
	})
	if err != nil {
		panic(err)
	}

	spike, err := NewAnomaly(AnomalySpec{
		Name:        "event-volume-spike",
		ShortWindow: time.Minute,
		Multiplier:  3,
		MinEvents:   20,
		Severity:    models.SeverityMedium,
		Title:       "Security event volume spike",
		Action:      "Inspect recent traffic for coordinated attack activity",
	})
	if err != nil {
		panic(err)
	}

	return []Rule{bruteForce, rateAbuse, injection, spike}
}
