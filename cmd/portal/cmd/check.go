package cmd

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/catalog"
	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
	portalmw "github.com/MarioNunes35/Portal-de-aplicativos/internal/middleware"
)

// ErrNoLoginMechanism is returned by check when neither OIDC nor local login can work.
var ErrNoLoginMechanism = errors.New("configuration leaves no usable login mechanism")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration",
	Long: `Validates the configuration against the schema, resolves the OIDC provider,
builds the catalog and reports what a user would experience.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := rt.Config
		if cfg.File != "" {
			pterm.Info.Printf("Configuration file: %s\n", cfg.File)
		} else {
			pterm.Info.Println("No configuration file; using defaults and environment only.")
		}

		pterm.DefaultSection.Println("Schema")
		problems, err := config.ValidateTree(cfg.Settings)
		if err != nil {
			return fmt.Errorf("validate schema: %w", err)
		}
		if len(problems) == 0 {
			pterm.Success.Println("Configuration matches the schema.")
		}
		for _, p := range problems {
			pterm.Warning.Println(p)
		}

		pterm.DefaultSection.Println("OIDC provider")
		oidcUsable := reportProvider(cfg)

		pterm.DefaultSection.Println("Access policy")
		caps := portalmw.Capabilities(cfg)
		reportPolicy(cfg, caps)

		pterm.DefaultSection.Println("Catalog")
		cat, err := catalog.New(cfg.Portal, access.RoleTableFrom(cfg.Auth))
		if err != nil {
			pterm.Error.Printf("Catalog is invalid: %v\n", err)
			return err
		}
		reportCatalog(cfg, cat)

		if !oidcUsable && !caps.LocalLogin {
			pterm.Error.Println("Neither OIDC nor local login is usable.")
			return ErrNoLoginMechanism
		}
		return nil
	},
}

func reportProvider(cfg *config.Config) bool {
	res := access.ResolveProvider(cfg.Auth)
	name := res.Provider
	if res.Default() {
		name = "(default)"
	}

	var validation []string
	if res.Found {
		pterm.Printf("Resolved provider: %s\n", name)
		if settings, ok := cfg.Auth.CallbackSettings(res.Ref()); ok {
			validation = access.ValidateProvider(settings)
		}
	} else {
		pterm.Warning.Println("No OIDC provider candidate found.")
	}
	for _, p := range res.Problems {
		pterm.Warning.Println(p)
	}
	for _, p := range validation {
		pterm.Warning.Println(p)
	}

	usable := res.Usable() && len(validation) == 0
	if usable {
		pterm.Success.Printf("OIDC login is usable with provider %s.\n", name)
	}
	return usable
}

func reportPolicy(cfg *config.Config, caps access.Capabilities) {
	a := cfg.Auth
	if a == nil {
		a = &config.AuthConfig{}
	}

	table := pterm.TableData{{"SETTING", "VALUE"}}
	table = append(table,
		[]string{"allowed_emails", joinOrDash(a.AllowedEmails)},
		[]string{"allowed_domains", joinOrDash(a.AllowedDomains)},
		[]string{"empty_allowlist", orDefault(a.EmptyAllowlist, config.EmptyAllowlistAllow)},
		[]string{"require_verified_email", fmt.Sprint(a.RequireVerifiedEmail)},
		[]string{"local login", fmt.Sprint(caps.LocalLogin)},
		[]string{"required_role", orDefault(cfg.Portal.RequiredRole, "-")},
	)
	_ = pterm.DefaultTable.WithHasHeader().WithData(table).Render()

	if access.AllowlistFrom(a).Empty() && a.EmptyAllowlist != config.EmptyAllowlistDeny {
		pterm.Warning.Println("The allowlist is empty: every authenticated email passes it.")
	}
	if caps.LocalLogin && a.Local.AllowDefaultAdmin {
		pterm.Warning.Println("The built-in admin account is enabled until a local user exists.")
	}

	if len(a.Roles) > 0 {
		roles := pterm.TableData{{"ROLE", "MEMBERS"}}
		for _, role := range sortedKeys(a.Roles) {
			roles = append(roles, []string{role, joinOrDash(a.Roles[role])})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithData(roles).Render()
	}
}

func reportCatalog(cfg *config.Config, cat *catalog.Catalog) {
	pterm.Printf("Apps: %d, grants: %d\n", cat.Len(), len(cfg.Portal.Grants))
	if cat.Len() == 0 {
		return
	}
	table := pterm.TableData{{"NAME", "HOST", "REQUIRED ROLE", "LABELS"}}
	for _, app := range cat.All() {
		table = append(table, []string{app.Name, app.Host, orDefault(app.RequiredRole, "-"), formatLabels(app.Labels)})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(table).Render()
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return "-"
	}
	keys := sortedKeys(labels)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + labels[k]
	}
	return strings.Join(parts, ",")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
