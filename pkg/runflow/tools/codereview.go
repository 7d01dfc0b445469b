package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Tool names installed by RegisterCodeReview.
const (
	ExtractFunctionsTool    = "extract_functions"
	CheckComplexityTool     = "check_complexity"
	DetectIssuesTool        = "detect_issues"
	SuggestImprovementsTool = "suggest_improvements"
)

// Issue messages reported by DetectIssues.
const (
	IssueTodo          = "contains TODO/FIXME"
	IssueDebugPrints   = "debug prints present"
	IssueTooLong       = "function too long"
	IssueTooManyParams = "too many parameters"
)

const (
	maxFunctionLength = 500
	maxParams         = 5
	indentWidth       = 4
	unknownFunction   = "unknown"
	noSuggestions     = "No suggestions; looks fine"
)

var defPattern = regexp.MustCompile(`^def\s+([a-zA-Z0-9_]+)\s*\(`)

// suggestionRules pairs issue substrings with the suggestion they trigger.
var suggestionRules = []struct {
	match      []string
	suggestion string
}{
	{[]string{"TODO", "FIXME"}, "Resolve TODOs or create tasks"},
	{[]string{"debug prints"}, "Remove debug prints or use logging"},
	{[]string{IssueTooLong}, "Split the function into smaller helpers"},
	{[]string{IssueTooManyParams}, "Use dataclass or group params into an object"},
}

// Function is one top-level function found in a source snippet.
type Function struct {
	Name string
	Code string
}

// Complexity summarizes how hard a function is to read.
type Complexity struct {
	LineCount    int
	IndentLevels int
	Score        int
}

// RegisterCodeReview installs the four code-review tools into r.
func RegisterCodeReview(r *Registry) {
	r.Register(ExtractFunctionsTool, extractFunctionsTool)
	r.Register(CheckComplexityTool, checkComplexityTool)
	r.Register(DetectIssuesTool, detectIssuesTool)
	r.Register(SuggestImprovementsTool, suggestImprovementsTool)
}

// ExtractFunctions splits Python-style source into functions. Every line
// starting with "def " opens a new function; lines before the first def are
// ignored. A def line that does not parse yields the name "unknown".
func ExtractFunctions(code string) []Function {
	var (
		funcs   []Function
		current []string
		name    string
	)
	flush := func() {
		if current != nil {
			funcs = append(funcs, Function{Name: name, Code: strings.Join(current, "\n")})
		}
	}
	for _, line := range splitLines(code) {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "def ") {
			flush()
			current = []string{line}
			name = unknownFunction
			if m := defPattern.FindStringSubmatch(trimmed); m != nil {
				name = m[1]
			}
			continue
		}
		if current != nil {
			current = append(current, line)
		}
	}
	flush()
	return funcs
}

// CheckComplexity scores code between 0 and 100. Each non-blank line costs
// two points and each level of the deepest indentation costs five.
func CheckComplexity(code string) Complexity {
	var c Complexity
	for _, line := range splitLines(code) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		c.LineCount++
		indent := (len(line) - len(strings.TrimLeft(line, " \t"))) / indentWidth
		c.IndentLevels = max(c.IndentLevels, indent)
	}
	c.Score = max(0, 100-(c.LineCount*2+c.IndentLevels*5))
	return c
}

// DetectIssues reports simple smells in a function body.
func DetectIssues(code string) []string {
	var issues []string
	if strings.Contains(code, "TODO") || strings.Contains(code, "FIXME") {
		issues = append(issues, IssueTodo)
	}
	if strings.Contains(code, "print(") {
		issues = append(issues, IssueDebugPrints)
	}
	if len(code) > maxFunctionLength {
		issues = append(issues, IssueTooLong)
	}
	if countParams(firstLine(code)) > maxParams {
		issues = append(issues, IssueTooManyParams)
	}
	return issues
}

// SuggestImprovements maps issues to suggestions by substring. Unknown
// issues are skipped; when nothing applies a single "looks fine" note is
// returned.
func SuggestImprovements(issues []string) []string {
	var out []string
	for _, issue := range issues {
		for _, rule := range suggestionRules {
			if containsAny(issue, rule.match) {
				out = append(out, rule.suggestion)
			}
		}
	}
	if len(out) == 0 {
		out = []string{noSuggestions}
	}
	return out
}

func extractFunctionsTool(_ context.Context, args map[string]any) (map[string]any, error) {
	code, err := stringArg(args, "code")
	if err != nil {
		return nil, err
	}
	funcs := ExtractFunctions(code)
	out := make([]any, 0, len(funcs))
	for _, f := range funcs {
		out = append(out, map[string]any{"name": f.Name, "code": f.Code})
	}
	return map[string]any{"functions": out, "count": len(funcs)}, nil
}

func checkComplexityTool(_ context.Context, args map[string]any) (map[string]any, error) {
	code, err := stringArg(args, "code")
	if err != nil {
		return nil, err
	}
	c := CheckComplexity(code)
	return map[string]any{
		"line_count":       c.LineCount,
		"indent_levels":    c.IndentLevels,
		"complexity_score": c.Score,
	}, nil
}

func detectIssuesTool(_ context.Context, args map[string]any) (map[string]any, error) {
	code, err := stringArg(args, "code")
	if err != nil {
		return nil, err
	}
	issues := DetectIssues(code)
	return map[string]any{"issues": toAnySlice(issues), "issue_count": len(issues)}, nil
}

func suggestImprovementsTool(_ context.Context, args map[string]any) (map[string]any, error) {
	issues, err := StringsArg(args, "issues")
	if err != nil {
		return nil, err
	}
	return map[string]any{"suggestions": toAnySlice(SuggestImprovements(issues))}, nil
}

// stringArg reads an optional string argument. A missing key reads as "".
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %s: expected string, got %T", key, v)
	}
	return s, nil
}

// StringsArg reads a list of strings from args. It accepts []string and
// []any holding strings, the latter being what JSON-backed state yields.
func StringsArg(args map[string]any, key string) ([]string, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("argument %s[%d]: expected string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %s: expected list of strings, got %T", key, v)
	}
}

func toAnySlice(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstLine(code string) string {
	if lines := splitLines(code); len(lines) > 0 {
		return lines[0]
	}
	return ""
}

// countParams counts the non-blank comma separated entries between the
// first "(" and the following ")" of a def line.
func countParams(line string) int {
	if !strings.Contains(line, "(") || !strings.Contains(line, ")") {
		return 0
	}
	_, rest, _ := strings.Cut(line, "(")
	params, _, _ := strings.Cut(rest, ")")
	n := 0
	for _, p := range strings.Split(params, ",") {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

// splitLines splits on newlines without producing a trailing empty line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
