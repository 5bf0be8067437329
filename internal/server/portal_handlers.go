package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/auth"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/catalog"
	portalmw "github.com/MarioNunes35/Portal-de-aplicativos/internal/middleware"
)

// AppsResponse is returned by GET /api/apps
type AppsResponse struct {
	Title string        `json:"title"`
	Count int           `json:"count"`
	Apps  []catalog.App `json:"apps"`
}

// HandleApps lists the apps the caller may open, narrowed by the optional
// q (substring search) and filter (go-bexpr) query parameters.
func (p *Portal) HandleApps(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.GetPrincipalFromContext(r.Context())
	if !ok || !principal.Decision.Allowed() {
		portalmw.RespondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	snap := p.deps.Store.Get()
	cat, err := p.catalogs.Get(snap)
	if err != nil {
		p.log.Error("build catalog", zap.Uint64("config_version", snap.Version), zap.Error(err))
		portalmw.RespondError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}

	apps, err := cat.Visible(principal.Decision.Email)
	if err != nil {
		p.log.Error("catalog visibility", zap.String("email", principal.Decision.Email), zap.Error(err))
		portalmw.RespondError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}

	query := r.URL.Query()
	apps = catalog.Search(apps, query.Get("q"))
	apps, err = catalog.Filter(apps, query.Get("filter"))
	if err != nil {
		portalmw.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	portalmw.RespondJSON(w, http.StatusOK, AppsResponse{
		Title: snap.Portal.Title,
		Count: len(apps),
		Apps:  apps,
	})
}
