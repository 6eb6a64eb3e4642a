// Package cel provides the CEL evaluator for route policy conditions.
package cel

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

// maxExpressionLength is the maximum allowed length for condition expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit, bounding pathological expressions.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single condition evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context cancellation is checked.
const interruptCheckFreq = 100

// Input carries the request attributes visible to condition expressions.
// Conditions are pure over these fields; no clock or request body is
// exposed, which keeps decisions cacheable.
type Input struct {
	// Path is the concrete request path (no query string).
	Path string
	// Roles are the identity's role names.
	Roles []string
	// Authenticated is the identity's auth flag.
	Authenticated bool
	// SubjectID is the identity's opaque subject identifier.
	SubjectID string
}

// Evaluator compiles and evaluates condition expressions for route policies.
type Evaluator struct {
	env *cel.Env
}

// NewRouteEnvironment creates a CEL environment for route conditions.
// Variables: path (string), roles (list<string>), authenticated (bool),
// subject_id (string). Custom function: path_glob(pattern, segment).
func NewRouteEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("path", cel.StringType),
		cel.Variable("roles", cel.ListType(cel.StringType)),
		cel.Variable("authenticated", cel.BoolType),
		cel.Variable("subject_id", cel.StringType),

		// path_glob: shell-style glob match for a path segment.
		// Usage: path_glob("*.json", path)
		cel.Function("path_glob",
			cel.Overload("path_glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),
	)
}

// NewEvaluator creates an evaluator with the route environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewRouteEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create route environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks an expression, returning a compiled program.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return prg, nil
}

// validateNesting checks the expression against the nesting depth limit.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that a condition is syntactically valid and
// within the safety limits. Called at config load so a bad condition is a
// startup failure, not a per-request one.
func (e *Evaluator) ValidateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}
	return nil
}

// Evaluate runs a compiled program against the input. Returns the boolean
// result; a non-boolean result is an error. ContextEval with a timeout
// prevents indefinite evaluation hangs.
func (e *Evaluator) Evaluate(prg cel.Program, in Input) (bool, error) {
	roles := in.Roles
	if roles == nil {
		roles = []string{}
	}
	activation := map[string]any{
		"path":          in.Path,
		"roles":         roles,
		"authenticated": in.Authenticated,
		"subject_id":    in.SubjectID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return a boolean, got %T", result.Value())
	}

	return boolResult, nil
}

// quoteForError trims an expression for inclusion in error messages,
// cutting on a rune boundary so the excerpt stays valid UTF-8.
func quoteForError(expr string) string {
	const max = 60
	if len(expr) <= max {
		return expr
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(expr[cut]) {
		cut--
	}
	return strings.TrimSpace(expr[:cut]) + "..."
}

// CompileCondition compiles a policy condition, treating the empty string
// as "true" (no condition).
func (e *Evaluator) CompileCondition(expr string) (cel.Program, error) {
	if expr == "" {
		expr = "true"
	}
	prg, err := e.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", quoteForError(expr), err)
	}
	return prg, nil
}
