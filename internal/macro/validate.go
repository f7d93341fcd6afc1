package macro

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationResult represents program validation results
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"`
}

// ValidationError represents a validation error or warning
type ValidationError struct {
	Function   string `json:"function"`
	Step       int    `json:"step,omitempty"` // 1-based, 0 for function-level findings
	Type       string `json:"type"`           // "error" or "warning"
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (v ValidationError) String() string {
	loc := v.Function
	if v.Step > 0 {
		loc = fmt.Sprintf("%s[%d]", v.Function, v.Step)
	}
	if v.Suggestion != "" {
		return fmt.Sprintf("%s: %s (%s)", loc, v.Message, v.Suggestion)
	}
	return fmt.Sprintf("%s: %s", loc, v.Message)
}

// PatternChecker reports whether a pattern reference resolves to a usable image.
// A nil checker skips the check.
type PatternChecker func(pattern string) bool

// Validate inspects a program without running it. Findings that the engine
// would silently degrade (bad branch targets, unknown callees) are warnings;
// steps that can never succeed are errors.
func Validate(p *Program, patternOK PatternChecker) ValidationResult {
	snap := p.Snapshot()
	result := ValidationResult{}

	errorf := func(fn string, step int, suggestion, format string, args ...any) {
		result.Errors = append(result.Errors, ValidationError{
			Function: fn, Step: step, Type: "error",
			Message: fmt.Sprintf(format, args...), Suggestion: suggestion,
		})
	}
	warnf := func(fn string, step int, suggestion, format string, args ...any) {
		result.Warnings = append(result.Warnings, ValidationError{
			Function: fn, Step: step, Type: "warning",
			Message: fmt.Sprintf(format, args...), Suggestion: suggestion,
		})
	}

	for _, name := range snap.order {
		steps := snap.functions[name].Steps
		if len(steps) == 0 {
			warnf(name, 0, "", "function has no steps")
		}
		for i, s := range steps {
			idx := i + 1
			checkTarget(s.NextOnSuccess, "next_ok", len(steps), func(sugg, msg string) { warnf(name, idx, sugg, "%s", msg) })
			checkTarget(s.NextOnFailure, "next_fail", len(steps), func(sugg, msg string) { warnf(name, idx, sugg, "%s", msg) })

			switch a := s.Action.(type) {
			case Unknown:
				errorf(name, idx, "use one of "+kindList(), "unrecognized op %q always fails", a.Op)
			case ClickImage, WaitAppear, WaitDisappear:
				t := imageOf(a)
				if err := t.validate(); err != nil {
					errorf(name, idx, "", "%v", err)
				} else if patternOK != nil && !patternOK(t.Pattern) {
					warnf(name, idx, "capture it with the capture command", "pattern %q not found", t.Pattern)
				}
			case CallFunction:
				if _, ok := snap.functions[a.Callee]; !ok {
					warnf(name, idx, "", "call to unknown function %q always fails", a.Callee)
				}
			case SetVariable:
				if strings.TrimSpace(a.Name) == "" {
					warnf(name, idx, "", "variable name is empty; the step always fails")
				}
			case IfCondition:
				if strings.TrimSpace(a.Name) == "" {
					warnf(name, idx, "", "condition has no variable name")
				}
				if err := s.Validate(); err != nil {
					warnf(name, idx, "", "%v; treated as !=", err)
				}
			}
		}
	}

	for _, cycle := range callCycles(snap) {
		warnf(cycle[0], 0, "the call depth limit stops the recursion",
			"recursive call chain %s", strings.Join(cycle, " -> "))
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func checkTarget(t Target, field string, n int, warn func(suggestion, msg string)) {
	if t == NoTarget {
		return
	}
	idx, ok := t.Index()
	switch {
	case !ok:
		warn("use a step number between 1 and "+fmt.Sprint(n), fmt.Sprintf("%s %q is not a step number; execution falls through", field, string(t)))
	case idx > n:
		warn("", fmt.Sprintf("%s %d is past the last step; the function ends there", field, idx))
	}
}

func imageOf(a Action) ImageTarget {
	switch v := a.(type) {
	case ClickImage:
		return v.ImageTarget
	case WaitAppear:
		return v.ImageTarget
	case WaitDisappear:
		return v.ImageTarget
	}
	return ImageTarget{}
}

func kindList() string {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// callCycles finds call chains that lead back to a function already on the chain
func callCycles(p *Program) [][]string {
	edges := make(map[string][]string)
	for _, name := range p.order {
		for _, s := range p.functions[name].Steps {
			if c, ok := s.Action.(CallFunction); ok {
				if _, exists := p.functions[c.Callee]; exists {
					edges[name] = append(edges[name], c.Callee)
				}
			}
		}
	}

	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int)
	seen := make(map[string]bool)
	var cycles [][]string
	var stack []string

	var visit func(string)
	visit = func(n string) {
		state[n] = onStack
		stack = append(stack, n)
		for _, next := range edges[n] {
			switch state[next] {
			case unvisited:
				visit(next)
			case onStack:
				start := 0
				for i, s := range stack {
					if s == next {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), stack[start:]...), next)
				key := canonicalCycle(cycle)
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
	}

	for _, name := range p.order {
		if state[name] == unvisited {
			visit(name)
		}
	}
	return cycles
}

func canonicalCycle(cycle []string) string {
	members := append([]string(nil), cycle[:len(cycle)-1]...)
	sort.Strings(members)
	return strings.Join(members, "\x00")
}
