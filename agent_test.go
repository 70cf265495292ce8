package corofleet_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozanturksever/corofleet"
	"github.com/ozanturksever/corofleet/testutil"
)

type agentFixture struct {
	client   *corofleet.NATSClient
	store    *testutil.FakeStore
	services *testutil.FakeServices
	runner   *testutil.FakeRunner
}

// startAgent runs an agent for node on an embedded NATS server and returns a
// client talking to it.
func startAgent(t *testing.T, node, config string) *agentFixture {
	t.Helper()

	srv := testutil.StartNATS(t)
	f := &agentFixture{
		store:    testutil.NewFakeStore(config),
		services: testutil.NewFakeServices(),
		runner:   testutil.NewFakeRunner(),
	}

	agent, err := corofleet.NewAgent(node, srv.Connect(t), nil,
		corofleet.WithAgentStore(f.store),
		corofleet.WithAgentServices(f.services),
		corofleet.WithAgentRunner(f.runner))
	require.NoError(t, err)
	require.NoError(t, agent.Start(context.Background()))
	t.Cleanup(agent.Stop)

	f.client = corofleet.NewNATSClient(srv.Connect(t), nil)
	return f
}

func demoConfig(t *testing.T, nodes ...string) string {
	t.Helper()
	cfg, _, err := corofleet.NewClusterConfig("demo", nodes, corofleet.SetupOptions{})
	require.NoError(t, err)
	return cfg.CorosyncConf().String()
}

func TestAgentConfigRoundTrip(t *testing.T) {
	f := startAgent(t, "node-a", "")
	ctx := context.Background()

	require.NoError(t, f.client.CheckAuth(ctx, "node-a"))
	require.NoError(t, f.client.CanJoin(ctx, "node-a"))

	text := demoConfig(t, "node-a", "node-b")
	require.NoError(t, f.client.PushConfig(ctx, "node-a", text))

	got, err := f.client.PullConfig(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, text, got)

	// an occupied node refuses to join another cluster
	err = f.client.CanJoin(ctx, "node-a")
	require.ErrorIs(t, err, corofleet.ErrClusterExists)
}

func TestAgentMembershipEdits(t *testing.T) {
	f := startAgent(t, "node-a", demoConfig(t, "node-a", "node-b"))
	ctx := context.Background()

	err := f.client.AddMember(ctx, "node-a", corofleet.NodeEntry{ID: 3, Ring0Addr: "node-c"})
	require.NoError(t, err)
	assert.Contains(t, f.store.Config, "ring0_addr: node-c")
	assert.Contains(t, f.store.Config, "nodeid: 3")

	require.NoError(t, f.client.RemoveMember(ctx, "node-a", "node-c"))
	assert.NotContains(t, f.store.Config, "node-c")

	// duplicate adds and unknown removals surface as errors
	err = f.client.AddMember(ctx, "node-a", corofleet.NodeEntry{Ring0Addr: "node-b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	err = f.client.RemoveMember(ctx, "node-a", "node-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not appear to exist")
}

func TestAgentAuxConfig(t *testing.T) {
	f := startAgent(t, "node-a", demoConfig(t, "node-a", "node-b"))
	ctx := context.Background()

	require.NoError(t, f.client.PushAux(ctx, "node-a", corofleet.AuxWatchdog, "SBD_DEVICE=/dev/sdx\n"))
	assert.Equal(t, "SBD_DEVICE=/dev/sdx\n", f.store.Aux[corofleet.AuxWatchdog])

	err := f.client.PushAux(ctx, "node-a", "", "payload")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing auxiliary config kind")
}

func TestAgentServiceActions(t *testing.T) {
	f := startAgent(t, "node-a", demoConfig(t, "node-a", "node-b"))
	ctx := context.Background()

	require.NoError(t, f.client.RunAction(ctx, "node-a", corofleet.ActionStart))
	assert.True(t, f.services.Running["corosync"])
	assert.True(t, f.services.Running["pacemaker"])

	status, err := f.client.Status(ctx, "node-a")
	require.NoError(t, err)
	assert.True(t, status.CorosyncRunning)
	assert.True(t, status.ConfigPresent)
	assert.Equal(t, "node-a", status.Node)

	require.NoError(t, f.client.RunAction(ctx, "node-a", corofleet.ActionStop))
	assert.False(t, f.services.Running["corosync"])

	// stop order is the reverse of start order
	calls := f.services.CallLog()
	assert.Less(t, indexOf(calls, "start corosync"), indexOf(calls, "start pacemaker"))
	assert.Less(t, indexOf(calls, "stop pacemaker"), indexOf(calls, "stop corosync"))

	require.NoError(t, f.client.RunAction(ctx, "node-a", corofleet.ActionEnable))
	assert.True(t, f.services.Enabled["corosync"])

	err = f.client.RunAction(ctx, "node-a", "reboot")
	require.ErrorIs(t, err, corofleet.ErrBadEndpoint)
}

func TestAgentStatusPending(t *testing.T) {
	f := startAgent(t, "node-a", demoConfig(t, "node-a", "node-b"))
	ctx := context.Background()
	f.services.Running["corosync"] = true

	status, err := f.client.Status(ctx, "node-a")
	require.NoError(t, err)
	assert.True(t, status.CorosyncRunning)
	assert.True(t, status.Pending, "a node without its resource manager is still joining")

	f.services.Running["pacemaker"] = true
	status, err = f.client.Status(ctx, "node-a")
	require.NoError(t, err)
	assert.False(t, status.Pending)
}

func TestAgentDestroy(t *testing.T) {
	f := startAgent(t, "node-a", demoConfig(t, "node-a", "node-b"))
	ctx := context.Background()
	f.services.Running["corosync"] = true

	require.NoError(t, f.client.RunAction(ctx, "node-a", corofleet.ActionDestroy))
	assert.False(t, f.store.Present)
	assert.True(t, f.store.StatePurged)
	assert.Contains(t, f.services.CallLog(), "kill")
}

func TestAgentQuorumTool(t *testing.T) {
	f := startAgent(t, "node-a", demoConfig(t, "node-a", "node-b"))
	ctx := context.Background()
	f.runner.Outputs["corosync-quorumtool"] = quorateTwoNodes

	out, err := f.client.QuorumTool(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, quorateTwoNodes, out)
}

func TestClientAgentNotRunning(t *testing.T) {
	f := startAgent(t, "node-a", "")
	ctx := context.Background()

	// nobody listens for node-z
	err := f.client.CheckAuth(ctx, "node-z")
	require.ErrorIs(t, err, corofleet.ErrAgentNotRunning)

	err = f.client.PushConfig(ctx, "", "text")
	require.ErrorIs(t, err, corofleet.ErrBadEndpoint)
}
