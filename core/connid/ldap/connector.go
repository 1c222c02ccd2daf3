package ldap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"idm-reconciler/core/connid"

	goldap "github.com/go-ldap/ldap/v3"
)

// BundleName is the registry name of this bundle.
const BundleName = "ldap"

// Info describes the bundle for registry listings.
var Info = connid.BundleInfo{
	Name:          BundleName,
	Version:       "1.0",
	ConnectorName: "LdapConnector",
	Properties: []string{
		"url", "bindDn", "bindPassword", "baseContexts", "uidAttribute",
		"accountObjectClasses", "groupObjectClasses", "pageSize",
	},
}

const passwordAttribute = "userPassword"

type config struct {
	url                  string
	bindDN               string
	bindPassword         string
	baseContexts         []string
	uidAttribute         string
	accountObjectClasses []string
	groupObjectClasses   []string
	pageSize             int
}

// Connector talks to one directory.
type Connector struct {
	cfg config
}

// Factory validates the configuration and builds a connector. No connection is opened.
func Factory(conf connid.Configuration) (connid.Connector, error) {
	cfg := config{
		url:                  conf.String("url", ""),
		bindDN:               conf.String("bindDn", ""),
		bindPassword:         conf.String("bindPassword", ""),
		baseContexts:         conf.Strings("baseContexts"),
		uidAttribute:         conf.String("uidAttribute", "entryUUID"),
		accountObjectClasses: conf.Strings("accountObjectClasses"),
		groupObjectClasses:   conf.Strings("groupObjectClasses"),
		pageSize:             conf.Int("pageSize", 500),
	}
	if cfg.url == "" {
		return nil, errors.New("url is required")
	}
	if len(cfg.baseContexts) == 0 {
		return nil, errors.New("at least one base context is required")
	}
	if len(cfg.accountObjectClasses) == 0 {
		cfg.accountObjectClasses = []string{"top", "person", "organizationalPerson", "inetOrgPerson"}
	}
	if len(cfg.groupObjectClasses) == 0 {
		cfg.groupObjectClasses = []string{"top", "groupOfUniqueNames"}
	}
	return &Connector{cfg: cfg}, nil
}

func (c *Connector) Capabilities() connid.Capabilities {
	return connid.NewCapabilities(
		connid.CapCreate, connid.CapUpdate, connid.CapDelete,
		connid.CapSearch, connid.CapPagedSearch, connid.CapTest, connid.CapAuth,
	)
}

func (c *Connector) withConn(ctx context.Context, fn func(conn *goldap.Conn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dialer := &net.Dialer{}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	conn, err := goldap.DialURL(c.cfg.url, goldap.DialWithDialer(dialer))
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.url, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	}
	if c.cfg.bindDN != "" {
		if err := conn.Bind(c.cfg.bindDN, c.cfg.bindPassword); err != nil {
			return fmt.Errorf("bind %s: %w", c.cfg.bindDN, err)
		}
	}
	return fn(conn)
}

func (c *Connector) Test(ctx context.Context) error {
	return c.withConn(ctx, func(*goldap.Conn) error { return nil })
}

func (c *Connector) objectClasses(oc connid.ObjectClass) []string {
	switch oc {
	case connid.ObjectClassAccount:
		return c.cfg.accountObjectClasses
	case connid.ObjectClassGroup:
		return c.cfg.groupObjectClasses
	default:
		return []string{string(oc)}
	}
}

// structural is the most specific objectClass, used to scope searches.
func (c *Connector) structural(oc connid.ObjectClass) string {
	classes := c.objectClasses(oc)
	return classes[len(classes)-1]
}

func (c *Connector) attributesToGet(opts connid.OperationOptions) []string {
	if len(opts.AttributesToGet) == 0 {
		return []string{"*", c.cfg.uidAttribute}
	}
	attrs := []string{c.cfg.uidAttribute}
	for _, a := range opts.AttributesToGet {
		if a == connid.AttrUID || a == connid.AttrName || a == connid.AttrPassword {
			continue
		}
		attrs = append(attrs, a)
	}
	return attrs
}

func (c *Connector) Search(ctx context.Context, oc connid.ObjectClass, filter *connid.Filter, handler connid.ResultsHandler, opts connid.OperationOptions) (connid.SearchResult, error) {
	ldapFilter, err := c.translate(oc, filter)
	if err != nil {
		return connid.SearchResult{}, err
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = c.cfg.pageSize
	}

	var result connid.SearchResult
	err = c.withConn(ctx, func(conn *goldap.Conn) error {
		for _, base := range c.cfg.baseContexts {
			paging := goldap.NewControlPaging(uint32(pageSize))
			if opts.PagedResultsCookie != "" {
				paging.SetCookie([]byte(opts.PagedResultsCookie))
			}
			for {
				req := goldap.NewSearchRequest(base, goldap.ScopeWholeSubtree, goldap.NeverDerefAliases,
					0, 0, false, ldapFilter, c.attributesToGet(opts), []goldap.Control{paging})
				res, err := conn.Search(req)
				if err != nil {
					if goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject) {
						break
					}
					return err
				}
				for _, entry := range res.Entries {
					if !handler(c.toObject(oc, entry)) {
						return nil
					}
				}

				var cookie []byte
				if ctrl, ok := goldap.FindControl(res.Controls, goldap.ControlTypePaging).(*goldap.ControlPaging); ok {
					cookie = ctrl.Cookie
				}
				if len(cookie) == 0 {
					break
				}
				if opts.PageSize > 0 {
					// caller drives paging through the returned cookie
					result.PagedResultsCookie = string(cookie)
					return nil
				}
				paging.SetCookie(cookie)
			}
		}
		return nil
	})
	return result, err
}

func (c *Connector) GetObject(ctx context.Context, oc connid.ObjectClass, uid string, opts connid.OperationOptions) (*connid.ConnectorObject, error) {
	var found *connid.ConnectorObject
	_, err := c.Search(ctx, oc, connid.Equals(connid.AttrUID, uid), func(obj *connid.ConnectorObject) bool {
		found = obj
		return false
	}, opts)
	return found, err
}

func (c *Connector) Create(ctx context.Context, oc connid.ObjectClass, attrs connid.AttributeSet, opts connid.OperationOptions) (string, error) {
	dn := attrs.First(connid.AttrName)
	if dn == "" {
		return "", fmt.Errorf("missing %s", connid.AttrName)
	}

	req := goldap.NewAddRequest(dn, nil)
	req.Attribute("objectClass", c.objectClasses(oc))
	for _, a := range attrs {
		name, skip := c.ldapAttr(a.Name)
		if skip || len(a.Values) == 0 {
			continue
		}
		req.Attribute(name, a.Strings())
	}

	var uid string
	err := c.withConn(ctx, func(conn *goldap.Conn) error {
		if err := conn.Add(req); err != nil {
			if goldap.IsErrorWithCode(err, goldap.LDAPResultEntryAlreadyExists) {
				return fmt.Errorf("%s: %w", dn, connid.ErrAlreadyExists)
			}
			return err
		}
		var err error
		uid, err = c.readUID(conn, dn)
		return err
	})
	return uid, err
}

func (c *Connector) Update(ctx context.Context, oc connid.ObjectClass, uid string, attrs connid.AttributeSet, opts connid.OperationOptions) (string, error) {
	err := c.withConn(ctx, func(conn *goldap.Conn) error {
		dn, err := c.resolveDN(conn, oc, uid)
		if err != nil {
			return err
		}

		if newDN := attrs.First(connid.AttrName); newDN != "" && !strings.EqualFold(newDN, dn) {
			rdn, parent, _ := strings.Cut(newDN, ",")
			if err := conn.ModifyDN(goldap.NewModifyDNRequest(dn, rdn, true, parent)); err != nil {
				return err
			}
			dn = newDN
		}

		mod := goldap.NewModifyRequest(dn, nil)
		for _, a := range attrs {
			name, skip := c.ldapAttr(a.Name)
			if skip {
				continue
			}
			mod.Replace(name, a.Strings())
		}
		if len(mod.Changes) == 0 {
			return nil
		}
		return conn.Modify(mod)
	})
	return uid, err
}

func (c *Connector) Delete(ctx context.Context, oc connid.ObjectClass, uid string, opts connid.OperationOptions) error {
	return c.withConn(ctx, func(conn *goldap.Conn) error {
		dn, err := c.resolveDN(conn, oc, uid)
		if err != nil {
			return err
		}
		return conn.Del(goldap.NewDelRequest(dn, nil))
	})
}

func (c *Connector) Sync(ctx context.Context, oc connid.ObjectClass, token connid.SyncToken, handler connid.SyncResultsHandler, opts connid.OperationOptions) (connid.SyncToken, error) {
	return token, errors.New("sync is not supported by the ldap bundle")
}

func (c *Connector) LatestSyncToken(ctx context.Context, oc connid.ObjectClass) (connid.SyncToken, error) {
	return "", errors.New("sync is not supported by the ldap bundle")
}

func (c *Connector) resolveDN(conn *goldap.Conn, oc connid.ObjectClass, uid string) (string, error) {
	filter, err := c.translate(oc, connid.Equals(connid.AttrUID, uid))
	if err != nil {
		return "", err
	}
	for _, base := range c.cfg.baseContexts {
		req := goldap.NewSearchRequest(base, goldap.ScopeWholeSubtree, goldap.NeverDerefAliases,
			1, 0, false, filter, []string{"dn"}, nil)
		res, err := conn.Search(req)
		if err != nil {
			if goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject) {
				continue
			}
			return "", err
		}
		if len(res.Entries) > 0 {
			return res.Entries[0].DN, nil
		}
	}
	return "", fmt.Errorf("%s %s: %w", oc, uid, connid.ErrUnknownUID)
}

func (c *Connector) readUID(conn *goldap.Conn, dn string) (string, error) {
	req := goldap.NewSearchRequest(dn, goldap.ScopeBaseObject, goldap.NeverDerefAliases,
		1, 0, false, "(objectClass=*)", []string{c.cfg.uidAttribute}, nil)
	res, err := conn.Search(req)
	if err != nil {
		return "", err
	}
	if len(res.Entries) == 0 {
		return dn, nil
	}
	if uid := res.Entries[0].GetAttributeValue(c.cfg.uidAttribute); uid != "" {
		return uid, nil
	}
	return dn, nil
}

// ldapAttr maps a connector attribute name onto the directory, skipping the ones
// carried elsewhere.
func (c *Connector) ldapAttr(name string) (string, bool) {
	switch {
	case strings.EqualFold(name, connid.AttrName), strings.EqualFold(name, connid.AttrUID),
		strings.EqualFold(name, connid.AttrEnable), strings.EqualFold(name, c.cfg.uidAttribute):
		return "", true
	case strings.EqualFold(name, connid.AttrPassword):
		return passwordAttribute, false
	case strings.HasPrefix(name, "__"):
		return "", true
	default:
		return name, false
	}
}

func (c *Connector) toObject(oc connid.ObjectClass, entry *goldap.Entry) *connid.ConnectorObject {
	obj := &connid.ConnectorObject{ObjectClass: oc, Name: entry.DN, UID: entry.DN}
	for _, a := range entry.Attributes {
		switch {
		case strings.EqualFold(a.Name, c.cfg.uidAttribute):
			if len(a.Values) > 0 {
				obj.UID = a.Values[0]
			}
		case strings.EqualFold(a.Name, passwordAttribute):
			continue
		default:
			values := make([]any, len(a.Values))
			for i, v := range a.Values {
				values[i] = v
			}
			obj.Attrs = append(obj.Attrs, connid.Attribute{Name: a.Name, Values: values})
		}
	}
	return obj
}

// translate renders f as an LDAP filter scoped to the object class.
func (c *Connector) translate(oc connid.ObjectClass, f *connid.Filter) (string, error) {
	scope := "(objectClass=" + goldap.EscapeFilter(c.structural(oc)) + ")"
	if f == nil {
		return scope, nil
	}
	inner, err := c.translateFilter(f)
	if err != nil {
		return "", err
	}
	return "(&" + scope + inner + ")", nil
}

func (c *Connector) translateFilter(f *connid.Filter) (string, error) {
	switch f.Op {
	case connid.OpEquals, connid.OpEqualsIgnoreCase:
		attr := f.Attr
		switch {
		case strings.EqualFold(attr, connid.AttrUID):
			attr = c.cfg.uidAttribute
		case strings.EqualFold(attr, connid.AttrName):
			// entryDN is the operational attribute exposing the DN to filters
			attr = "entryDN"
		}
		return "(" + attr + "=" + goldap.EscapeFilter(f.Value) + ")", nil
	case connid.OpAnd, connid.OpOr:
		op := "&"
		if f.Op == connid.OpOr {
			op = "|"
		}
		var b strings.Builder
		b.WriteString("(" + op)
		for _, child := range f.Children {
			s, err := c.translateFilter(child)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		}
		b.WriteString(")")
		return b.String(), nil
	default:
		return "", fmt.Errorf("unsupported filter operator %s", f.Op)
	}
}
