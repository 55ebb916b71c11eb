package core

import (
	"regexp"
	"strings"
)

var exprPattern = regexp.MustCompile(`\$\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// ExprContext holds the values available to ${{ ... }} expressions.
type ExprContext map[string]string

// NewExprContext builds the github.* context for a run of wf on event.
func NewExprContext(wf *Workflow, event Event, runID string) ExprContext {
	return ExprContext{
		"github.event_name": event.Name,
		"github.ref":        event.Ref,
		"github.ref_name":   event.RefName(),
		"github.sha":        event.SHA,
		"github.workflow":   wf.Name,
		"github.run_id":     runID,
	}
}

// Env exposes the context as GITHUB_* environment variables.
func (c ExprContext) Env() map[string]string {
	env := map[string]string{"CI": "true"}
	for key, value := range c {
		name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		env[name] = value
	}
	return env
}

// Expand substitutes ${{ name }} with values from ctx. Unknown names expand
// to the empty string.
func Expand(s string, ctx ExprContext) string {
	if !strings.Contains(s, "${{") {
		return s
	}
	return exprPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := exprPattern.FindStringSubmatch(match)[1]
		return ctx[name]
	})
}
