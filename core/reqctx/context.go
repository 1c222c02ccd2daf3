package reqctx

import (
	"context"
	"sort"
	"strings"

	"idm-reconciler/core/clienterr"

	"golang.org/x/text/language"
)

// RootRealm is the full path of the root realm.
const RootRealm = "/"

// AnyEntitlement grants every entitlement.
const AnyEntitlement = "*"

// Context is the request-scoped caller identity.
type Context struct {
	Domain   string
	Username string
	Locale   language.Tag

	entitlements map[string][]string
}

// New creates a caller context without entitlements.
func New(domain, username string, locale language.Tag) *Context {
	return &Context{
		Domain:       domain,
		Username:     username,
		Locale:       locale,
		entitlements: make(map[string][]string),
	}
}

// Admin creates a context owning every entitlement on the root realm.
func Admin(domain string) *Context {
	return New(domain, "admin", language.English).Grant(AnyEntitlement, RootRealm)
}

// Grant adds realms to an entitlement and returns the context for chaining.
func (c *Context) Grant(entitlement string, realms ...string) *Context {
	c.entitlements[entitlement] = append(c.entitlements[entitlement], realms...)
	return c
}

// EffectiveRealms returns the realms where entitlement is owned, sorted.
func (c *Context) EffectiveRealms(entitlement string) []string {
	set := make(map[string]struct{})
	for _, r := range c.entitlements[entitlement] {
		set[r] = struct{}{}
	}
	for _, r := range c.entitlements[AnyEntitlement] {
		set[r] = struct{}{}
	}
	realms := make([]string, 0, len(set))
	for r := range set {
		realms = append(realms, r)
	}
	sort.Strings(realms)
	return realms
}

// Authorize fails unless entitlement is owned on realmPath or one of its ancestors.
func (c *Context) Authorize(entitlement, realmPath string) error {
	for _, r := range c.EffectiveRealms(entitlement) {
		if RealmContains(r, realmPath) {
			return nil
		}
	}
	return clienterr.Newf(clienterr.DelegatedAdministration, "%s not allowed on %s for %s", entitlement, realmPath, c.Username)
}

// RealmContains reports whether child equals parent or lives below it.
func RealmContains(parent, child string) bool {
	if parent == RootRealm || parent == child {
		return true
	}
	return strings.HasPrefix(child, strings.TrimSuffix(parent, "/")+"/")
}

// ParseLocale picks the preferred tag of an Accept-Language header, English by default.
func ParseLocale(header string) language.Tag {
	if header == "" {
		return language.English
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	return tags[0]
}

type ctxKey struct{}

// Acquire binds rc to a child of parent. The returned release func tears the binding
// down by cancelling the child context; it is safe to call more than once.
func Acquire(parent context.Context, rc *Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	return context.WithValue(ctx, ctxKey{}, rc), cancel
}

// From returns the caller context bound to ctx.
func From(ctx context.Context) (*Context, error) {
	if ctx.Err() != nil {
		return nil, clienterr.New(clienterr.Unauthorized, "request context released")
	}
	rc, ok := ctx.Value(ctxKey{}).(*Context)
	if !ok || rc == nil {
		return nil, clienterr.New(clienterr.Unauthorized, "no caller bound to request")
	}
	return rc, nil
}

// Authorize is a shorthand resolving the caller from ctx first.
func Authorize(ctx context.Context, entitlement, realmPath string) error {
	rc, err := From(ctx)
	if err != nil {
		return err
	}
	return rc.Authorize(entitlement, realmPath)
}
