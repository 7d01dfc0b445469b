// Package tools holds named helper functions that node functions call
// through a Registry.
//
// The built-in set analyses Python-style source for the code-review
// workflow: extract_functions, check_complexity, detect_issues and
// suggest_improvements. The heuristics are line based.
package tools
