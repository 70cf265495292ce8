package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/ozanturksever/corofleet"
)

// FakeStore is an in-memory ConfigStore.
type FakeStore struct {
	mu      sync.Mutex
	Config  string
	Present bool
	CIB     bool

	// Aux holds auxiliary configs by kind.
	Aux map[string]string

	// StatePurged records whether RemoveStateFiles ran.
	StatePurged bool
}

// NewFakeStore returns a store preloaded with config text. An empty string
// leaves the store empty.
func NewFakeStore(config string) *FakeStore {
	return &FakeStore{Config: config, Present: config != "", Aux: make(map[string]string)}
}

func (s *FakeStore) Path() string { return "/etc/corosync/corosync.conf" }

func (s *FakeStore) Read() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Present {
		return "", fmt.Errorf("no such file")
	}
	return s.Config, nil
}

func (s *FakeStore) Write(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Config = text
	s.Present = true
	return nil
}

func (s *FakeStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Config = ""
	s.Present = false
	return nil
}

func (s *FakeStore) Exists() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Present
}

func (s *FakeStore) CIBExists() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CIB
}

func (s *FakeStore) ReadAux(kind string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.Aux[kind]
	if !ok {
		return "", fmt.Errorf("no such file")
	}
	return text, nil
}

func (s *FakeStore) WriteAux(kind, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Aux[kind] = text
	return nil
}

func (s *FakeStore) RemoveStateFiles() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StatePurged = true
	return nil
}

// FakeServices is a ServiceManager that records every call.
type FakeServices struct {
	mu      sync.Mutex
	Running map[string]bool
	Enabled map[string]bool
	Calls   []string

	// FailOn makes the named verb+service combination fail, e.g.
	// "start corosync".
	FailOn map[string]error
}

func NewFakeServices() *FakeServices {
	return &FakeServices{
		Running: make(map[string]bool),
		Enabled: make(map[string]bool),
		FailOn:  make(map[string]error),
	}
}

func (f *FakeServices) record(verb, service string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := verb + " " + service
	f.Calls = append(f.Calls, key)
	if err, ok := f.FailOn[key]; ok {
		return err
	}
	switch verb {
	case "start":
		f.Running[service] = true
	case "stop":
		f.Running[service] = false
	case "enable":
		f.Enabled[service] = true
	case "disable":
		f.Enabled[service] = false
	}
	return nil
}

func (f *FakeServices) Start(_ context.Context, service string) error {
	return f.record("start", service)
}

func (f *FakeServices) Stop(_ context.Context, service string) error {
	return f.record("stop", service)
}

func (f *FakeServices) Enable(_ context.Context, service string) error {
	return f.record("enable", service)
}

func (f *FakeServices) Disable(_ context.Context, service string) error {
	return f.record("disable", service)
}

func (f *FakeServices) Kill(_ context.Context, daemons ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "kill")
	for _, d := range daemons {
		f.Running[d] = false
	}
	return nil
}

func (f *FakeServices) IsRunning(_ context.Context, service string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Running[service]
}

// CallLog returns the recorded calls in order.
func (f *FakeServices) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// FakeRunner is a CommandRunner returning scripted output per command name.
type FakeRunner struct {
	mu sync.Mutex

	// Outputs maps a command name to its output.
	Outputs map[string]string
	// Errors maps a command name to its error.
	Errors map[string]error
	// Commands records every invocation as name plus args.
	Commands [][]string
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Outputs: make(map[string]string),
		Errors:  make(map[string]error),
	}
}

func (r *FakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Commands = append(r.Commands, append([]string{name}, args...))
	return r.Outputs[name], r.Errors[name]
}

// fakeNode is the per-node state tracked by FakeRemote.
type fakeNode struct {
	config  string
	aux     map[string]string
	running bool
	pending bool
}

// FakeRemote is an in-memory RemoteClient. Each node carries its own
// configuration copy so membership transactions can be asserted per node.
type FakeRemote struct {
	mu    sync.Mutex
	nodes map[string]*fakeNode

	// Fail maps "node verb" to an error, e.g. "node2 add_member".
	Fail map[string]error
	// Down lists nodes that reject everything as unreachable.
	Down map[string]bool
	// QuorumOutput is returned by QuorumTool for every node.
	QuorumOutput string
	// Actions records every RunAction call as "node action".
	Actions []string
}

func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		nodes: make(map[string]*fakeNode),
		Fail:  make(map[string]error),
		Down:  make(map[string]bool),
	}
}

// SetNodeConfig seeds a node with configuration text.
func (f *FakeRemote) SetNodeConfig(node, config string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.node(node).config = config
}

// NodeConfig returns the configuration a node currently holds.
func (f *FakeRemote) NodeConfig(node string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.node(node).config
}

// SetRunning marks a node's cluster stack up or down.
func (f *FakeRemote) SetRunning(node string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.node(node).running = running
}

// SetPending marks a node as still joining the resource manager.
func (f *FakeRemote) SetPending(node string, pending bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.node(node).pending = pending
}

// ActionLog returns the recorded RunAction calls in order.
func (f *FakeRemote) ActionLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Actions...)
}

// NodeAux returns the auxiliary config a node currently holds for kind.
func (f *FakeRemote) NodeAux(node, kind string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.node(node).aux[kind]
}

func (f *FakeRemote) node(name string) *fakeNode {
	n, ok := f.nodes[name]
	if !ok {
		n = &fakeNode{aux: make(map[string]string)}
		f.nodes[name] = n
	}
	return n
}

func (f *FakeRemote) check(node, verb string) error {
	if f.Down[node] {
		return fmt.Errorf("%s: %w", node, corofleet.ErrUnreachable)
	}
	if err, ok := f.Fail[node+" "+verb]; ok {
		return err
	}
	return nil
}

func (f *FakeRemote) CheckAuth(_ context.Context, node string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.check(node, "check_auth")
}

func (f *FakeRemote) CanJoin(_ context.Context, node string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(node, "node_available"); err != nil {
		return err
	}
	if f.node(node).config != "" {
		return fmt.Errorf("%s: %w", node, corofleet.ErrClusterExists)
	}
	return nil
}

func (f *FakeRemote) PushConfig(_ context.Context, node, config string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(node, "set_config"); err != nil {
		return err
	}
	f.node(node).config = config
	return nil
}

func (f *FakeRemote) PushAux(_ context.Context, node, kind, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(node, "set_aux"); err != nil {
		return err
	}
	f.node(node).aux[kind] = payload
	return nil
}

func (f *FakeRemote) PullConfig(_ context.Context, node string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(node, "get_config"); err != nil {
		return "", err
	}
	return f.node(node).config, nil
}

func (f *FakeRemote) AddMember(_ context.Context, node string, entry corofleet.NodeEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(node, "add_member"); err != nil {
		return err
	}
	cfg, err := corofleet.ParseClusterConfig(f.node(node).config)
	if err != nil {
		return err
	}
	added, err := cfg.AddNode(entry.Ring0Addr, entry.Ring1Addr)
	if err != nil {
		return err
	}
	if entry.ID != 0 && entry.ID != added.ID {
		cfg.Nodes[len(cfg.Nodes)-1].ID = entry.ID
	}
	f.node(node).config = cfg.CorosyncConf().String()
	return nil
}

func (f *FakeRemote) RemoveMember(_ context.Context, node, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(node, "remove_member"); err != nil {
		return err
	}
	cfg, err := corofleet.ParseClusterConfig(f.node(node).config)
	if err != nil {
		return err
	}
	if err := cfg.RemoveNode(member); err != nil {
		return err
	}
	f.node(node).config = cfg.CorosyncConf().String()
	return nil
}

func (f *FakeRemote) RunAction(_ context.Context, node, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Actions = append(f.Actions, node+" "+action)
	if err := f.check(node, action); err != nil {
		return err
	}
	switch action {
	case corofleet.ActionStart:
		f.node(node).running = true
	case corofleet.ActionStop, corofleet.ActionKill:
		f.node(node).running = false
	case corofleet.ActionDestroy:
		f.node(node).running = false
		f.node(node).config = ""
	}
	return nil
}

func (f *FakeRemote) Status(_ context.Context, node string) (corofleet.NodeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(node, "status"); err != nil {
		return corofleet.NodeStatus{}, err
	}
	n := f.node(node)
	return corofleet.NodeStatus{
		Node:            node,
		CorosyncRunning: n.running,
		Pending:         n.pending,
		ConfigPresent:   n.config != "",
	}, nil
}

func (f *FakeRemote) QuorumTool(_ context.Context, node string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(node, "quorumtool"); err != nil {
		return "", err
	}
	return f.QuorumOutput, nil
}
