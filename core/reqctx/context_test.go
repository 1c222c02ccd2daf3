package reqctx

import (
	"context"
	"testing"

	"idm-reconciler/core/clienterr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestRealmContains(t *testing.T) {
	tests := []struct {
		parent, child string
		want          bool
	}{
		{"/", "/even/two", true},
		{"/even", "/even", true},
		{"/even", "/even/two", true},
		{"/even", "/evenmore", false},
		{"/odd", "/even", false},
	}
	for _, tt := range tests {
		t.Run(tt.parent+"->"+tt.child, func(t *testing.T) {
			assert.Equal(t, tt.want, RealmContains(tt.parent, tt.child))
		})
	}
}

func TestAuthorize(t *testing.T) {
	rc := New("Master", "rossini", language.Italian).Grant(ResourceRead, "/even")

	assert.NoError(t, rc.Authorize(ResourceRead, "/even/two"))

	err := rc.Authorize(ResourceRead, "/odd")
	assert.True(t, clienterr.Is(err, clienterr.DelegatedAdministration))

	err = rc.Authorize(ResourceDelete, "/even")
	assert.True(t, clienterr.Is(err, clienterr.DelegatedAdministration))

	assert.NoError(t, Admin("Master").Authorize(ResourceDelete, "/odd"))
}

func TestEffectiveRealms(t *testing.T) {
	rc := New("Master", "bellini", language.English).
		Grant(AnyTypeEntitlement("USER", "READ"), "/odd", "/even").
		Grant(AnyEntitlement, "/even")
	assert.Equal(t, []string{"/even", "/odd"}, rc.EffectiveRealms("USER_READ"))
}

func TestAcquireRelease(t *testing.T) {
	_, err := From(context.Background())
	assert.True(t, clienterr.Is(err, clienterr.Unauthorized))

	ctx, release := Acquire(context.Background(), Admin("Master"))
	rc, err := From(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Master", rc.Domain)

	release()
	release()
	_, err = From(ctx)
	assert.True(t, clienterr.Is(err, clienterr.Unauthorized))
}

func TestParseLocale(t *testing.T) {
	assert.Equal(t, language.English, ParseLocale(""))
	assert.Equal(t, language.English, ParseLocale("!!"))
	assert.Equal(t, "it-IT", ParseLocale("it-IT,it;q=0.9,en;q=0.8").String())
}
