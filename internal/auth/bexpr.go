package auth

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-bexpr"
	lru "github.com/hashicorp/golang-lru/v2"
)

// bexprCacheSize bounds the number of compiled expressions kept around.
// Filters arrive from query strings, so the set is open-ended.
const bexprCacheSize = 256

var bexprCache = mustEvaluatorCache()

func mustEvaluatorCache() *lru.Cache[string, *bexpr.Evaluator] {
	cache, err := lru.New[string, *bexpr.Evaluator](bexprCacheSize)
	if err != nil {
		panic(err)
	}
	return cache
}

// CompileBexpr returns the compiled evaluator for expr, reusing a cached one
// when available. Syntax errors are returned to the caller.
func CompileBexpr(expr string) (*bexpr.Evaluator, error) {
	expr = strings.TrimSpace(expr)
	if evaluator, ok := bexprCache.Get(expr); ok {
		return evaluator, nil
	}
	evaluator, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression %q: %w", expr, err)
	}
	bexprCache.Add(expr, evaluator)
	return evaluator, nil
}

// BexprMatchFunction returns the bexprMatch function for Casbin.
// It evaluates a grant's scope expression against the app's labels.
func BexprMatchFunction() func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		if len(args) != 2 {
			return false, fmt.Errorf("bexprMatch requires 2 arguments: scopeExpr, labels")
		}

		scopeExpr, ok := args[0].(string)
		if !ok {
			return false, fmt.Errorf("bexprMatch: first argument must be string (scopeExpr)")
		}

		labels, ok := args[1].(map[string]any)
		if !ok {
			return false, fmt.Errorf("bexprMatch: second argument must be map[string]any (labels)")
		}

		return EvaluateBexpr(scopeExpr, labels), nil
	}
}

// EvaluateBexpr evaluates a go-bexpr expression against data.
// An empty expression is no constraint. Invalid expressions and evaluation
// errors (a missing key, say) never match.
func EvaluateBexpr(expr string, data any) bool {
	if strings.TrimSpace(expr) == "" {
		return true
	}
	evaluator, err := CompileBexpr(expr)
	if err != nil {
		return false
	}
	matches, err := evaluator.Evaluate(data)
	if err != nil {
		return false
	}
	return matches
}
