// Package codereview is a small looping workflow that reviews Python-style
// source held in the "code" state key.
//
// The graph runs extract → check_complexity → detect_issues →
// suggest_improvements and loops back to check_complexity while
// quality_score stays below threshold. Every node delegates the analysis to
// a tool from the tools package.
package codereview

import (
	"fmt"

	"github.com/randalmurphal/runflow/pkg/runflow"
	"github.com/randalmurphal/runflow/pkg/runflow/expr"
	"github.com/randalmurphal/runflow/pkg/runflow/tools"
)

// Function names referenced by the graph's NodeSpecs.
const (
	FnExtract             = "node_extract"
	FnCheckComplexity     = "node_check_complexity"
	FnDetectIssues        = "node_detect_issues"
	FnSuggestImprovements = "node_suggest_improvements"
)

// DefaultThreshold is the quality score the loop aims for when the
// initial state carries no threshold.
const DefaultThreshold = 80

// LoopCondition keeps the review looping until the score reaches the
// threshold.
const LoopCondition = "(quality_score ?? 0) < (threshold ?? 80)"

const (
	issuePenalty   = 5
	suggestionGain = 5
	maxScore       = 100
)

// Register installs the four node functions into funcs. The nodes call
// their tools through tr; a nil tr uses tools.Default().
func Register(funcs *runflow.Functions, tr *tools.Registry) {
	if tr == nil {
		tr = tools.Default()
	}
	n := &nodes{tools: tr}
	funcs.Register(FnExtract, runflow.Blocking(n.extract))
	funcs.Register(FnCheckComplexity, runflow.Blocking(n.checkComplexity))
	funcs.Register(FnDetectIssues, runflow.Blocking(n.detectIssues))
	funcs.Register(FnSuggestImprovements, runflow.Inline(n.suggestImprovements))
}

// Graph returns the review loop.
func Graph() *runflow.GraphSpec {
	return runflow.NewGraph().
		AddNode("extract", FnExtract, nil).
		AddNode("check_complexity", FnCheckComplexity, nil).
		AddNode("detect_issues", FnDetectIssues, nil).
		AddNode("suggest_improvements", FnSuggestImprovements, nil).
		AddEdge("extract", "check_complexity").
		AddEdge("check_complexity", "detect_issues").
		AddEdge("detect_issues", "suggest_improvements").
		AddBranch("suggest_improvements", LoopCondition, "check_complexity", "").
		MustBuild()
}

// RegisterGraph saves Graph into gs and returns its ID.
func RegisterGraph(gs runflow.GraphStore) (string, error) {
	id, err := gs.SaveGraph(Graph())
	if err != nil {
		return "", fmt.Errorf("save code review graph: %w", err)
	}
	return id, nil
}

type nodes struct {
	tools *tools.Registry
}

func (n *nodes) extract(ctx runflow.Context, s runflow.State, _ map[string]any) (runflow.State, error) {
	out, err := n.tools.Call(ctx, tools.ExtractFunctionsTool, map[string]any{"code": s["code"]})
	if err != nil {
		return nil, err
	}
	update := runflow.State{
		"functions":      out["functions"],
		"function_count": out["count"],
	}
	if _, ok := s["quality_score"]; !ok {
		update["quality_score"] = 0
	}
	if _, ok := s["threshold"]; !ok {
		update["threshold"] = DefaultThreshold
	}
	return update, nil
}

// checkComplexity averages the per-function scores and blends the average
// with the previous quality score when there is one.
func (n *nodes) checkComplexity(ctx runflow.Context, s runflow.State, _ map[string]any) (runflow.State, error) {
	funcs, err := records(s["functions"])
	if err != nil {
		return nil, err
	}
	details := make([]any, 0, len(funcs))
	total := 0
	for _, f := range funcs {
		out, err := n.tools.Call(ctx, tools.CheckComplexityTool, map[string]any{"code": f["code"]})
		if err != nil {
			return nil, err
		}
		score := number(out["complexity_score"])
		total += score
		details = append(details, map[string]any{
			"name":       f["name"],
			"score":      score,
			"line_count": number(out["line_count"]),
		})
	}

	avg := total / max(len(funcs), 1)
	quality := avg
	if prev := number(s["quality_score"]); prev != 0 {
		quality = (prev + avg) / 2
	}
	return runflow.State{
		"complexity_details": details,
		"quality_score":      quality,
	}, nil
}

func (n *nodes) detectIssues(ctx runflow.Context, s runflow.State, _ map[string]any) (runflow.State, error) {
	funcs, err := records(s["functions"])
	if err != nil {
		return nil, err
	}
	var found []any
	for _, f := range funcs {
		out, err := n.tools.Call(ctx, tools.DetectIssuesTool, map[string]any{"code": f["code"]})
		if err != nil {
			return nil, err
		}
		if number(out["issue_count"]) > 0 {
			found = append(found, map[string]any{"name": f["name"], "issues": out["issues"]})
		}
	}

	quality := number(s["quality_score"])
	if len(found) > 0 {
		quality = max(0, quality-issuePenalty*len(found))
	}
	ctx.Logger().Debug("issues detected", "functions", len(funcs), "with_issues", len(found))
	return runflow.State{
		"issues":        nonNil(found),
		"quality_score": quality,
	}, nil
}

func (n *nodes) suggestImprovements(ctx runflow.Context, s runflow.State, _ map[string]any) (runflow.State, error) {
	found, err := records(s["issues"])
	if err != nil {
		return nil, err
	}
	var suggestions []any
	for _, item := range found {
		out, err := n.tools.Call(ctx, tools.SuggestImprovementsTool, map[string]any{"issues": item["issues"]})
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, map[string]any{"name": item["name"], "suggestions": out["suggestions"]})
	}

	quality := number(s["quality_score"])
	if len(suggestions) > 0 {
		quality = min(maxScore, quality+suggestionGain)
	}
	return runflow.State{
		"suggestions":   nonNil(suggestions),
		"quality_score": quality,
	}, nil
}

// records reads a list of objects from state. Both []map[string]any and
// []any of maps are accepted since state decoded from JSON only carries the
// latter.
func records(v any) ([]map[string]any, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		return list, nil
	case []any:
		out := make([]map[string]any, 0, len(list))
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("item %d: expected object, got %T", i, item)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list of objects, got %T", v)
	}
}

// number reads an integer from any numeric state value. Non-numbers read
// as zero.
func number(v any) int {
	f, ok := expr.ToFloat64(v)
	if !ok {
		return 0
	}
	return int(f)
}

func nonNil(items []any) []any {
	if items == nil {
		return []any{}
	}
	return items
}
