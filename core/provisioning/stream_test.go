package provisioning

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid/csvstream"
	"idm-reconciler/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func (f *fixture) streamer(workers int) *Streamer {
	return NewStreamer(f.pusher, f.puller, workers, zap.NewNop())
}

var userType = &model.AnyType{Key: "USER", Kind: model.KindUser}

func TestPushStream(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer

	reports, err := f.streamer(1).PushStream(context.Background(), userType,
		[]*model.Any{f.entity(t, "u-1"), f.entity(t, "u-2")},
		csvstream.Spec{Columns: []string{"username", "email"}},
		DefaultPushTask(), &out)
	require.NoError(t, err)

	require.Len(t, reports, 2)
	for i, key := range []string{"u-1", "u-2"} {
		assert.Equal(t, key, reports[i].Key)
		assert.Equal(t, OperationCreate, reports[i].Operation)
		assert.Equal(t, StatusSuccess, reports[i].Status, reports[i].Message)
	}
	assert.Equal(t, "rossini", reports[0].UIDValue)
	assert.Equal(t, "username,email\nrossini,rossini@example.org\nverdi,\n", out.String())
	assert.False(t, f.entity(t, "u-1").HasResource(StreamResource))
}

func TestPushStreamKeepsOrderWithWorkers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	anys := []*model.Any{f.entity(t, "u-1"), f.entity(t, "u-2")}
	for _, name := range []string{"bellini", "donizetti", "puccini", "mascagni"} {
		a := &model.Any{Kind: model.KindUser, Type: "USER", Name: name, RealmPath: "/"}
		logic, err := NewLogicTable(f.store).For(model.KindUser)
		require.NoError(t, err)
		require.NoError(t, logic.Create(ctx, a))
		anys = append(anys, a)
	}
	var out bytes.Buffer
	task := DefaultPushTask()
	task.UnmatchingRule = UnmatchingAssign

	reports, err := f.streamer(3).PushStream(ctx, userType, anys,
		csvstream.Spec{Columns: []string{"email", "username"}, KeyColumn: "username"}, task, &out)
	require.NoError(t, err)

	require.Len(t, reports, len(anys))
	for i, a := range anys {
		assert.Equal(t, a.Key, reports[i].Key)
		assert.Equal(t, a.Name, reports[i].UIDValue)
		assert.Equal(t, StatusSuccess, reports[i].Status, reports[i].Message)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, len(anys)+1)
	assert.Equal(t, "email,username", lines[0])
	for i, a := range anys {
		assert.True(t, strings.HasSuffix(lines[i+1], ","+a.Name), lines[i+1])
	}
	assert.False(t, f.entity(t, "u-1").HasResource(StreamResource))
}

func TestPushStreamRejects(t *testing.T) {
	f := newFixture(t)
	anys := []*model.Any{f.entity(t, "u-1")}

	t.Run("unlink", func(t *testing.T) {
		task := DefaultPushTask()
		task.UnmatchingRule = UnmatchingUnlink
		_, err := f.streamer(1).PushStream(context.Background(), userType, anys,
			csvstream.Spec{Columns: []string{"username"}}, task, &bytes.Buffer{})
		assert.True(t, clienterr.Is(err, clienterr.InvalidValues))
	})

	t.Run("no columns", func(t *testing.T) {
		_, err := f.streamer(1).PushStream(context.Background(), userType, anys,
			csvstream.Spec{}, DefaultPushTask(), &bytes.Buffer{})
		assert.True(t, clienterr.Is(err, clienterr.InvalidValues))
	})

	t.Run("unsupported quote", func(t *testing.T) {
		_, err := f.streamer(1).PushStream(context.Background(), userType, anys,
			csvstream.Spec{Columns: []string{"username"}, QuoteChar: "'"}, DefaultPushTask(), &bytes.Buffer{})
		assert.True(t, clienterr.Is(err, clienterr.InvalidValues))
	})
}

func TestPullStream(t *testing.T) {
	f := newFixture(t)
	input := "username,email,ignored\nmascagni,mascagni@example.org,x\nrossini,new@example.org,y\n"

	reports, err := f.streamer(1).PullStream(context.Background(), userType, strings.NewReader(input),
		csvstream.Spec{KeyColumn: "username", IgnoreColumns: []string{"ignored"}}, DefaultPullTask("/"))
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, OperationCreate, reports[0].Operation)
	assert.Equal(t, StatusSuccess, reports[0].Status, reports[0].Message)
	assert.Equal(t, OperationUpdate, reports[1].Operation)
	assert.Equal(t, StatusSuccess, reports[1].Status, reports[1].Message)

	found := f.byName(t, "mascagni")
	require.Len(t, found, 1)
	assert.Equal(t, []string{"mascagni@example.org"}, found[0].PlainAttrs["email"])
	assert.NotContains(t, found[0].PlainAttrs, "ignored")
	assert.False(t, found[0].HasResource(StreamResource))
	assert.Equal(t, []string{"new@example.org"}, f.entity(t, "u-1").PlainAttrs["email"])
}

func TestPullStreamAssignBecomesProvision(t *testing.T) {
	f := newFixture(t)
	task := DefaultPullTask("/")
	task.UnmatchingRule = UnmatchingAssign

	reports, err := f.streamer(1).PullStream(context.Background(), userType,
		strings.NewReader("\ufeffusername\nbellini\n"), csvstream.Spec{KeyColumn: "username"}, task)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, StatusSuccess, reports[0].Status, reports[0].Message)

	found := f.byName(t, "bellini")
	require.Len(t, found, 1)
	assert.Empty(t, found[0].Resources)
}

func TestPullStreamRejects(t *testing.T) {
	f := newFixture(t)

	t.Run("missing key column", func(t *testing.T) {
		_, err := f.streamer(1).PullStream(context.Background(), userType,
			strings.NewReader("username,email\n"), csvstream.Spec{KeyColumn: "uid"}, DefaultPullTask("/"))
		assert.True(t, clienterr.Is(err, clienterr.NotFound))
	})

	t.Run("ignored key column", func(t *testing.T) {
		_, err := f.streamer(1).PullStream(context.Background(), userType,
			strings.NewReader("username,email\n"),
			csvstream.Spec{KeyColumn: "username", IgnoreColumns: []string{"username"}}, DefaultPullTask("/"))
		assert.True(t, clienterr.Is(err, clienterr.NotFound))
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := f.streamer(1).PullStream(context.Background(), userType,
			strings.NewReader(""), csvstream.Spec{KeyColumn: "username"}, DefaultPullTask("/"))
		assert.True(t, clienterr.Is(err, clienterr.InvalidValues))
	})

	for _, rule := range []MatchingRule{MatchingLink, MatchingUnlink, MatchingUnassign, MatchingDeprovision} {
		t.Run(string(rule), func(t *testing.T) {
			task := DefaultPullTask("/")
			task.MatchingRule = rule
			_, err := f.streamer(1).PullStream(context.Background(), userType,
				strings.NewReader("username\nrossini\n"), csvstream.Spec{KeyColumn: "username"}, task)
			assert.True(t, clienterr.Is(err, clienterr.InvalidValues))
		})
	}
}
