package classifier

import (
	"sort"
	"strings"

	"wisefido-escalation/internal/models"

	"go.uber.org/zap"
)

// Thresholds are the classifier tuning parameters. They come from config,
// not from constants in this package, so each deployment can tune them and
// tests can exercise the boundaries explicitly.
type Thresholds struct {
	// IncidentThreshold is the minimum accumulated confidence for a
	// transcript to be flagged as an incident.
	IncidentThreshold float64
	// ImmediateThreshold is the minimum confidence for a high/critical
	// incident to require immediate (quiet-hours-bypassing) alerting.
	ImmediateThreshold float64
}

// Classifier scores a completed interaction transcript for incident
// likelihood, severity and category tags. Classify is deterministic for a
// given transcript and never fails: any internal scoring fault is recovered
// and degraded to the no-incident result, with the fault logged as an
// operational error so "scorer broke" is never silently equated with
// "resident is fine".
type Classifier struct {
	thresholds Thresholds
	logger     *zap.Logger
}

// NewClassifier 创建分类器
func NewClassifier(thresholds Thresholds, logger *zap.Logger) *Classifier {
	return &Classifier{
		thresholds: thresholds,
		logger:     logger,
	}
}

// match is one keyword hit, positioned for ordered reporting.
type match struct {
	rule   keywordRule
	offset int
	order  int // rule index, tie-break for equal offsets
}

// Classify scores one transcript.
func (c *Classifier) Classify(transcript string) (detection models.IncidentDetection) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Classifier scoring fault, degrading to no-incident",
				zap.Any("panic", r),
			)
			detection = models.NoIncident()
		}
	}()

	text := strings.ToLower(strings.TrimSpace(transcript))
	if text == "" {
		return models.NoIncident()
	}

	matches := c.scan(text)
	if len(matches) == 0 {
		return models.NoIncident()
	}

	confidence := 0.0
	severity := models.SeverityLow
	categorySet := make(map[models.Category]bool)
	for _, m := range matches {
		confidence += m.rule.Weight
		if m.rule.Severity.AtLeast(severity) {
			severity = m.rule.Severity
		}
		categorySet[m.rule.Category] = true
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	if confidence < c.thresholds.IncidentThreshold {
		return models.NoIncident()
	}

	// Report keywords in transcript order.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].offset != matches[j].offset {
			return matches[i].offset < matches[j].offset
		}
		return matches[i].order < matches[j].order
	})
	keywords := make([]string, 0, len(matches))
	for _, m := range matches {
		keywords = append(keywords, m.rule.Phrase)
	}

	// Stable category order for downstream comparison.
	categories := make([]models.Category, 0, len(categorySet))
	for cat := range categorySet {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	return models.IncidentDetection{
		IsIncident:             true,
		Confidence:             confidence,
		Severity:               severity,
		Categories:             categories,
		DetectedKeywords:       keywords,
		RequiresImmediateAlert: severity.IsEmergency() && confidence >= c.thresholds.ImmediateThreshold,
	}
}

// scan finds every rule phrase present in text, at its first occurrence.
func (c *Classifier) scan(text string) []match {
	var matches []match
	for i, rule := range keywordRules {
		if idx := strings.Index(text, rule.Phrase); idx >= 0 {
			matches = append(matches, match{rule: rule, offset: idx, order: i})
		}
	}
	return matches
}
