package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"novawatch/pkg/models"
)

// SigmaLoadStats tracks the number of loaded and skipped rules.
type SigmaLoadStats struct {
	TotalFiles        int
	Loaded            int
	SkippedComplex    int
	SkippedDatasource int
	SkippedInvalid    int
}

// SigmaMatch is one rule hit against an eve record.
type SigmaMatch struct {
	RuleID   string
	Title    string
	Severity models.Severity
}

type compiledSigmaRule struct {
	rule  sigma.Rule
	eval  *sigmaevaluator.RuleEvaluator
	match SigmaMatch
}

// SigmaEngine evaluates Sigma rules against individual Suricata eve records.
type SigmaEngine struct {
	rules []compiledSigmaRule
	ctx   context.Context
}

// NewSigmaEngine loads Sigma rules from a file or directory and compiles
// evaluators. Unsupported or complex rules are skipped and counted in stats.
func NewSigmaEngine(path string) (*SigmaEngine, SigmaLoadStats, error) {
	var stats SigmaLoadStats

	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, stats, fmt.Errorf("resolve rule path: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, stats, fmt.Errorf("stat rule path: %w", err)
	}

	files := make([]string, 0, 64)
	if info.IsDir() {
		err = filepath.WalkDir(resolved, func(filePath string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				return nil
			}
			if isYAMLFile(filePath) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk rule directory: %w", err)
		}
	} else {
		if !isYAMLFile(resolved) {
			return nil, stats, fmt.Errorf("rule file must end with .yml or .yaml: %s", resolved)
		}
		files = append(files, resolved)
	}

	stats.TotalFiles = len(files)
	compiled := make([]compiledSigmaRule, 0, len(files))
	for _, ruleFile := range files {
		raw, err := os.ReadFile(ruleFile)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		rule, err := sigma.ParseRule(raw)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}

		if !isNetworkCompatible(rule) {
			stats.SkippedDatasource++
			continue
		}
		if !isSimpleSingleEventRule(rule) {
			stats.SkippedComplex++
			continue
		}

		compiled = append(compiled, compiledSigmaRule{
			rule:  rule,
			eval:  sigmaevaluator.ForRule(rule),
			match: matchFromRule(rule),
		})
		stats.Loaded++
	}

	return &SigmaEngine{rules: compiled, ctx: context.Background()}, stats, nil
}

// Apply evaluates all loaded rules against a decoded eve document and returns
// the matches.
func (e *SigmaEngine) Apply(event map[string]interface{}) []SigmaMatch {
	if e == nil || len(event) == 0 || len(e.rules) == 0 {
		return nil
	}

	flattened := flattenEve(event)
	var out []SigmaMatch
	for _, rule := range e.rules {
		res, err := rule.eval.Matches(e.ctx, flattened)
		if err != nil {
			continue
		}
		if res.Match {
			out = append(out, rule.match)
		}
	}
	return out
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

// isNetworkCompatible keeps rules written for network/IDS telemetry; host and
// Windows log rules can never match an eve record.
func isNetworkCompatible(rule sigma.Rule) bool {
	product := strings.ToLower(strings.TrimSpace(rule.Logsource.Product))
	service := strings.ToLower(strings.TrimSpace(rule.Logsource.Service))

	if product != "" && product != "network" && product != "suricata" {
		return false
	}
	if service != "" && service != "suricata" && service != "eve" {
		return false
	}
	return true
}

// isSimpleSingleEventRule rejects rules the single-record evaluator cannot
// honor: timeframes, aggregations, keyword searches.
func isSimpleSingleEventRule(rule sigma.Rule) bool {
	if rule.Detection.Timeframe > 0 {
		return false
	}
	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil {
			return false
		}
		if !isSimpleSearchExpression(cond.Search) {
			return false
		}
	}
	for _, search := range rule.Detection.Searches {
		if len(search.Keywords) > 0 {
			return false
		}
		if len(search.EventMatchers) == 0 {
			return false
		}
	}
	return true
}

func isSimpleSearchExpression(expr sigma.SearchExpr) bool {
	switch e := expr.(type) {
	case sigma.SearchIdentifier:
		return true
	case sigma.And:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Or:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Not:
		return isSimpleSearchExpression(e.Expr)
	default:
		return false
	}
}

// flattenEve lifts the nested alert object to both dotted and bare keys so
// rules can reference either alert.signature or signature.
func flattenEve(event map[string]interface{}) map[string]interface{} {
	buf := make(map[string]interface{}, len(event)+8)
	for k, v := range event {
		buf[k] = v
	}
	if nested, ok := event["alert"].(map[string]interface{}); ok {
		for k, v := range nested {
			buf["alert."+k] = v
			if _, exists := buf[k]; !exists {
				buf[k] = v
			}
		}
	}
	return buf
}

func matchFromRule(rule sigma.Rule) SigmaMatch {
	id := strings.TrimSpace(rule.ID)
	if id == "" {
		id = strings.TrimSpace(rule.Title)
	}
	return SigmaMatch{
		RuleID:   id,
		Title:    strings.TrimSpace(rule.Title),
		Severity: models.SeverityFromSigmaLevel(rule.Level),
	}
}
