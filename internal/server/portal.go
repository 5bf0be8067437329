package server

import (
	"errors"

	"go.uber.org/zap"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/auth"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/catalog"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
	portalmw "github.com/MarioNunes35/Portal-de-aplicativos/internal/middleware"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/repository"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/telemetry"
)

// Deps are the collaborators the HTTP handlers need.
type Deps struct {
	portalmw.Dependencies

	Parties *auth.RelyingParties
	// Users backs database accounts for local login. Optional.
	Users repository.UserRepository
	// Metrics is optional.
	Metrics *telemetry.Metrics
}

// Portal owns the handlers and the values they derive from each config snapshot.
type Portal struct {
	deps        Deps
	log         *zap.Logger
	catalogs    *snapshotCache[*catalog.Catalog]
	credentials *snapshotCache[access.CredentialStore]
	newState    func() (string, error)
}

// NewPortal wires the handlers. Store, Resolver, Sessions and Parties are required.
func NewPortal(deps Deps) (*Portal, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("portal requires a config store")
	case deps.Resolver == nil:
		return nil, errors.New("portal requires a resolver")
	case deps.Sessions == nil:
		return nil, errors.New("portal requires a session manager")
	case deps.Parties == nil:
		return nil, errors.New("portal requires a relying party cache")
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Metrics != nil && deps.Dependencies.Metrics == nil {
		deps.Dependencies.Metrics = deps.Metrics.Access
	}

	p := &Portal{deps: deps, log: deps.Log, newState: auth.GenerateNonce}
	p.catalogs = newSnapshotCache(func(snap *config.Snapshot) (*catalog.Catalog, error) {
		return catalog.New(snap.Portal, access.RoleTableFrom(snap.Auth))
	})
	p.credentials = newSnapshotCache(p.buildCredentials)
	return p, nil
}

// Catalog returns the catalog of the current snapshot.
func (p *Portal) Catalog() (*catalog.Catalog, error) {
	return p.catalogs.Get(p.deps.Store.Get())
}

// buildCredentials chains accounts declared in config with database accounts.
// The built-in admin is layered on top only when explicitly allowed.
func (p *Portal) buildCredentials(snap *config.Snapshot) (access.CredentialStore, error) {
	chain := access.ChainStore{}
	if snap.Auth != nil && len(snap.Auth.Local.Users) > 0 {
		chain = append(chain, access.StaticCredentialStore(snap.Auth.Local.Users))
	}
	if p.deps.Users != nil {
		chain = append(chain, repository.NewUserCredentialStore(p.deps.Users))
	}
	if snap.Auth != nil && snap.Auth.Local.AllowDefaultAdmin {
		return access.WithDefaultAdmin(chain, p.log)
	}
	return chain, nil
}
