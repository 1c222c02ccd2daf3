package ldap

import (
	"context"
	"testing"

	"idm-reconciler/core/connid"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnector(t *testing.T) *Connector {
	t.Helper()
	c, err := Factory(connid.Configuration{
		"url":          {"ldap://127.0.0.1:1"},
		"baseContexts": {"ou=people,o=isp"},
	})
	require.NoError(t, err)
	return c.(*Connector)
}

func TestFactory_Validation(t *testing.T) {
	_, err := Factory(connid.Configuration{})
	assert.ErrorContains(t, err, "url is required")

	_, err = Factory(connid.Configuration{"url": {"ldap://x"}})
	assert.ErrorContains(t, err, "base context")

	c := newTestConnector(t)
	assert.Equal(t, "entryUUID", c.cfg.uidAttribute)
	assert.Equal(t, 500, c.cfg.pageSize)
	assert.Equal(t, "inetOrgPerson", c.structural(connid.ObjectClassAccount))
	assert.Equal(t, "groupOfUniqueNames", c.structural(connid.ObjectClassGroup))
}

func TestTranslate(t *testing.T) {
	c := newTestConnector(t)

	tests := []struct {
		name   string
		filter *connid.Filter
		want   string
	}{
		{"nil", nil, "(objectClass=inetOrgPerson)"},
		{"uid", connid.Equals(connid.AttrUID, "42"), "(&(objectClass=inetOrgPerson)(entryUUID=42))"},
		{"escaped", connid.Equals("cn", "a*b(c)"), "(&(objectClass=inetOrgPerson)(cn=a\\2ab\\28c\\29))"},
		{"or", connid.Or(connid.Equals("uid", "x"), connid.EqualsIgnoreCase("mail", "y")),
			"(&(objectClass=inetOrgPerson)(|(uid=x)(mail=y)))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.translate(connid.ObjectClassAccount, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLdapAttr(t *testing.T) {
	c := newTestConnector(t)

	name, skip := c.ldapAttr(connid.AttrPassword)
	assert.False(t, skip)
	assert.Equal(t, "userPassword", name)

	for _, special := range []string{connid.AttrName, connid.AttrUID, connid.AttrEnable, "__MANDATORY_MISSING__", "entryUUID"} {
		_, skip := c.ldapAttr(special)
		assert.True(t, skip, special)
	}

	name, skip = c.ldapAttr("mail")
	assert.False(t, skip)
	assert.Equal(t, "mail", name)
}

func TestToObject(t *testing.T) {
	c := newTestConnector(t)
	entry := goldap.NewEntry("uid=rossini,ou=people,o=isp", map[string][]string{
		"entryUUID":    {"8f1d"},
		"mail":         {"rossini@example.org"},
		"userPassword": {"{SSHA}x"},
	})

	obj := c.toObject(connid.ObjectClassAccount, entry)
	assert.Equal(t, "8f1d", obj.UID)
	assert.Equal(t, "uid=rossini,ou=people,o=isp", obj.Name)
	assert.Equal(t, "rossini@example.org", obj.Attrs.First("mail"))
	_, hasPwd := obj.Attrs.Find("userPassword")
	assert.False(t, hasPwd)
}

func TestTest_Unreachable(t *testing.T) {
	c := newTestConnector(t)
	err := c.Test(context.Background())
	assert.Error(t, err)
}

func TestSyncUnsupported(t *testing.T) {
	c := newTestConnector(t)
	assert.False(t, c.Capabilities()[connid.CapSync])
	_, err := c.LatestSyncToken(context.Background(), connid.ObjectClassAccount)
	assert.Error(t, err)
}
