package provisioning

import (
	"context"
	"testing"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushUnmatched(t *testing.T) {
	tests := []struct {
		name     string
		task     func(*PushTask)
		op       Operation
		status   Status
		message  string
		remote   bool
		assigned bool
	}{
		{
			name:   "provision creates the remote object",
			task:   func(*PushTask) {},
			op:     OperationCreate,
			status: StatusSuccess,
			remote: true,
		},
		{
			name:     "assign also assigns the resource",
			task:     func(task *PushTask) { task.UnmatchingRule = UnmatchingAssign },
			op:       OperationCreate,
			status:   StatusSuccess,
			remote:   true,
			assigned: true,
		},
		{
			name:    "ignore",
			task:    func(task *PushTask) { task.UnmatchingRule = UnmatchingIgnore },
			op:      OperationNone,
			status:  StatusIgnore,
			message: "no remote object, unmatching rule IGNORE",
		},
		{
			name:    "create not allowed",
			task:    func(task *PushTask) { task.PerformCreate = false },
			op:      OperationCreate,
			status:  StatusIgnore,
			message: "create not allowed",
		},
		{
			name:    "dry run",
			task:    func(task *PushTask) { task.DryRun = true },
			op:      OperationCreate,
			status:  StatusIgnore,
			message: "dry run",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			task := DefaultPushTask()
			tt.task(&task)

			report := f.pusher.Push(context.Background(), f.binding, f.conn, Target{Any: f.entity(t, "u-1")}, task)

			assert.Equal(t, tt.op, report.Operation)
			assert.Equal(t, tt.status, report.Status)
			assert.Equal(t, tt.message, report.Message)
			assert.Equal(t, "u-1", report.Key)
			assert.Equal(t, "USER", report.AnyType)

			obj := f.remoteObject(t, "rossini")
			if tt.remote {
				require.NotNil(t, obj)
				assert.Equal(t, []string{"rossini@example.org"}, obj.Value("mail"))
				assert.Equal(t, "rossini", report.UIDValue)
			} else {
				assert.Nil(t, obj)
			}
			assert.Equal(t, tt.assigned, f.entity(t, "u-1").HasResource("ws-target"))
		})
	}
}

func TestPushUpdate(t *testing.T) {
	t.Run("unchanged", func(t *testing.T) {
		f := newFixture(t)
		f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "rossini"), attr("mail", "rossini@example.org"))

		report := f.pusher.Push(context.Background(), f.binding, f.conn, Target{Any: f.entity(t, "u-1")}, DefaultPushTask())

		assert.Equal(t, OperationNone, report.Operation)
		assert.Equal(t, StatusIgnore, report.Status)
		assert.Equal(t, "unchanged", report.Message)
	})

	t.Run("changed", func(t *testing.T) {
		f := newFixture(t)
		f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "rossini"), attr("mail", "old@example.org"))

		report := f.pusher.Push(context.Background(), f.binding, f.conn, Target{Any: f.entity(t, "u-1")}, DefaultPushTask())

		assert.Equal(t, OperationUpdate, report.Operation)
		assert.Equal(t, StatusSuccess, report.Status)
		assert.Equal(t, []string{"rossini@example.org"}, f.remoteObject(t, "rossini").Value("mail"))
	})

	t.Run("update not allowed", func(t *testing.T) {
		f := newFixture(t)
		f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "rossini"), attr("mail", "old@example.org"))
		task := DefaultPushTask()
		task.PerformUpdate = false

		report := f.pusher.Push(context.Background(), f.binding, f.conn, Target{Any: f.entity(t, "u-1")}, task)

		assert.Equal(t, StatusIgnore, report.Status)
		assert.Equal(t, "update not allowed", report.Message)
		assert.Equal(t, []string{"old@example.org"}, f.remoteObject(t, "rossini").Value("mail"))
	})

	t.Run("explicit password counts as a change", func(t *testing.T) {
		f := newFixture(t)
		f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "rossini"), attr("mail", "rossini@example.org"))

		report := f.pusher.Push(context.Background(), f.binding, f.conn,
			Target{Any: f.entity(t, "u-1"), Password: "Password123"}, DefaultPushTask())

		assert.Equal(t, OperationUpdate, report.Operation)
		assert.Equal(t, StatusSuccess, report.Status)
	})
}

func TestPushMatchedRules(t *testing.T) {
	tests := []struct {
		name     string
		rule     MatchingRule
		op       Operation
		remote   bool
		assigned bool
	}{
		{name: "deprovision keeps the assignment", rule: MatchingDeprovision, op: OperationDelete, assigned: true},
		{name: "unassign removes the assignment", rule: MatchingUnassign, op: OperationDelete},
		{name: "link", rule: MatchingLink, op: OperationNone, remote: true, assigned: true},
		{name: "unlink", rule: MatchingUnlink, op: OperationNone, remote: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "rossini"))

			a := f.entity(t, "u-1")
			if tt.rule != MatchingLink {
				a.AssignResource("ws-target")
				require.NoError(t, f.store.SaveAny(ctx, a))
			}

			task := DefaultPushTask()
			task.MatchingRule = tt.rule
			report := f.pusher.Push(ctx, f.binding, f.conn, Target{Any: a}, task)

			assert.Equal(t, StatusSuccess, report.Status, report.Message)
			assert.Equal(t, tt.op, report.Operation)
			assert.Equal(t, tt.remote, f.remoteObject(t, "rossini") != nil)
			assert.Equal(t, tt.assigned, f.entity(t, "u-1").HasResource("ws-target"))
		})
	}
}

func TestPushDeleteNotAllowed(t *testing.T) {
	f := newFixture(t)
	f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "rossini"))
	task := DefaultPushTask()
	task.MatchingRule = MatchingDeprovision
	task.PerformDelete = false

	report := f.pusher.Push(context.Background(), f.binding, f.conn, Target{Any: f.entity(t, "u-1")}, task)

	assert.Equal(t, OperationDelete, report.Operation)
	assert.Equal(t, StatusIgnore, report.Status)
	assert.NotNil(t, f.remoteObject(t, "rossini"))
}

func TestPushFailureIsReported(t *testing.T) {
	f := newFixture(t)
	spy := &spyPush{}
	f.actions.RegisterPush("Spy", spy)

	// same __NAME__, different uid attribute: no match, then a clashing create
	f.remote(t, attr(connid.AttrName, "rossini"), attr("uid", "unrelated"))
	a := f.entity(t, "u-1")
	task := DefaultPushTask()
	task.Actions = []string{"Spy"}

	report := f.pusher.Push(context.Background(), f.binding, f.conn, Target{Any: a}, task)

	assert.Equal(t, StatusFailure, report.Status)
	assert.Contains(t, report.Message, "already exists")
	require.Len(t, spy.errs, 1)
	require.Len(t, spy.reports, 1)
	assert.Equal(t, StatusFailure, spy.reports[0].Status)
}

func TestPushUnknownAction(t *testing.T) {
	f := newFixture(t)
	task := DefaultPushTask()
	task.Actions = []string{"Nope"}

	report := f.pusher.Push(context.Background(), f.binding, f.conn, Target{Any: f.entity(t, "u-1")}, task)

	assert.Equal(t, StatusFailure, report.Status)
	assert.Contains(t, report.Message, "push action Nope")
	assert.Nil(t, f.remoteObject(t, "rossini"))
}

func TestPushUidOnCreate(t *testing.T) {
	f := newFixture(t)
	f.binding.Provision.UidOnCreate = "remoteUid"

	report := f.pusher.Push(context.Background(), f.binding, f.conn, Target{Any: f.entity(t, "u-1")}, DefaultPushTask())

	require.Equal(t, StatusSuccess, report.Status, report.Message)
	assert.Equal(t, []string{"rossini"}, f.entity(t, "u-1").PlainAttrs["remoteUid"])
}

func TestPushRandomPassword(t *testing.T) {
	t.Run("resource flag", func(t *testing.T) {
		f := newFixture(t)
		spy := &spyPush{}
		f.actions.RegisterPush("Spy", spy)
		f.binding.Resource.RandomPwdIfNotProvided = true
		task := DefaultPushTask()
		task.Actions = []string{"Spy"}

		report := f.pusher.Push(context.Background(), f.binding, f.conn, Target{Any: f.entity(t, "u-2")}, task)

		require.Equal(t, StatusSuccess, report.Status, report.Message)
		assert.Len(t, spy.password, 32)
	})

	t.Run("action", func(t *testing.T) {
		f := newFixture(t)
		spy := &spyPush{}
		f.actions.RegisterPush("Spy", spy)
		task := DefaultPushTask()
		task.Actions = []string{"GenerateRandomPassword", "Spy"}

		report := f.pusher.Push(context.Background(), f.binding, f.conn, Target{Any: f.entity(t, "u-2")}, task)

		require.Equal(t, StatusSuccess, report.Status, report.Message)
		assert.NotEmpty(t, spy.password)
	})

	t.Run("explicit password wins", func(t *testing.T) {
		f := newFixture(t)
		spy := &spyPush{}
		f.actions.RegisterPush("Spy", spy)
		f.binding.Resource.RandomPwdIfNotProvided = true
		task := DefaultPushTask()
		task.Actions = []string{"Spy"}

		report := f.pusher.Push(context.Background(), f.binding, f.conn,
			Target{Any: f.entity(t, "u-2"), Password: "Password123"}, task)

		require.Equal(t, StatusSuccess, report.Status, report.Message)
		assert.Equal(t, "Password123", spy.password)
	})
}

func TestPushSyncStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.entity(t, "u-1")
	a.Status = "suspended"
	require.NoError(t, f.store.SaveAny(ctx, a))

	task := DefaultPushTask()
	task.SyncStatus = true
	report := f.pusher.Push(ctx, f.binding, f.conn, Target{Any: a}, task)

	require.Equal(t, StatusSuccess, report.Status, report.Message)
	assert.Equal(t, []string{"false"}, f.remoteObject(t, "rossini").Value(connid.AttrEnable))
}

func TestPushLinkedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveLinkedAccount(ctx, &model.LinkedAccount{
		Key: "la-1", OwnerKey: "u-1", ResourceKey: "ws-target", ConnObjectKeyValue: "rossini-alt",
	}))
	accounts, err := f.store.LinkedAccountsOf(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	report := f.pusher.Push(ctx, f.binding, f.conn, Target{Any: f.entity(t, "u-1"), Account: &accounts[0]}, DefaultPushTask())

	require.Equal(t, StatusSuccess, report.Status, report.Message)
	assert.Equal(t, OperationCreate, report.Operation)
	assert.Equal(t, "la-1", report.Key)
	obj := f.remoteObject(t, "rossini-alt")
	require.NotNil(t, obj)
	assert.Equal(t, []string{"rossini-alt"}, obj.Value("uid"))

	task := DefaultPushTask()
	task.MatchingRule = MatchingUnassign
	report = f.pusher.Push(ctx, f.binding, f.conn, Target{Any: f.entity(t, "u-1"), Account: &accounts[0]}, task)

	require.Equal(t, StatusSuccess, report.Status, report.Message)
	assert.Nil(t, f.remoteObject(t, "rossini-alt"))
	accounts, err = f.store.LinkedAccountsOf(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestChanged(t *testing.T) {
	remote := &connid.ConnectorObject{
		UID:   "rossini",
		Name:  "rossini",
		Attrs: connid.AttributeSet{attr("mail", "a@example.org", "b@example.org")},
	}

	assert.False(t, Changed(connid.AttributeSet{
		attr(connid.AttrName, "rossini"),
		attr("mail", "b@example.org", "a@example.org"),
	}, remote))
	assert.True(t, Changed(connid.AttributeSet{attr("mail", "a@example.org")}, remote))
	assert.True(t, Changed(connid.AttributeSet{attr(connid.AttrPassword, "secret")}, remote))
	assert.True(t, Changed(connid.AttributeSet{attr(connid.AttrName, "verdi")}, remote))
}
