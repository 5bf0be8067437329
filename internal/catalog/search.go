package catalog

import (
	"strings"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/auth"
)

// Search keeps the apps whose name or URL contains q, ignoring case.
// An empty query keeps everything.
func Search(apps []App, q string) []App {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return apps
	}
	out := make([]App, 0, len(apps))
	for _, app := range apps {
		if strings.Contains(strings.ToLower(app.Name), q) || strings.Contains(strings.ToLower(app.URL), q) {
			out = append(out, app)
		}
	}
	return out
}

// Filter keeps the apps matching a go-bexpr expression evaluated against
// name, slug, url, host, required_role and labels. An invalid expression is
// returned as an error so callers can reject the request.
func Filter(apps []App, expr string) ([]App, error) {
	if strings.TrimSpace(expr) == "" {
		return apps, nil
	}
	evaluator, err := auth.CompileBexpr(expr)
	if err != nil {
		return nil, err
	}

	out := make([]App, 0, len(apps))
	for _, app := range apps {
		// Evaluation errors, e.g. a label the app does not carry, are a non-match.
		if ok, err := evaluator.Evaluate(app.document()); err == nil && ok {
			out = append(out, app)
		}
	}
	return out, nil
}

func (a App) document() map[string]any {
	labels := make(map[string]any, len(a.Labels))
	for k, v := range a.Labels {
		labels[k] = v
	}
	return map[string]any{
		"name":          a.Name,
		"slug":          a.Slug,
		"url":           a.URL,
		"host":          a.Host,
		"required_role": a.RequiredRole,
		"labels":        labels,
	}
}
