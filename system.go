package corofleet

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Default locations of the persisted cluster state on a node.
const (
	DefaultConfPath = "/etc/corosync/corosync.conf"
	DefaultCIBPath  = "/var/lib/pacemaker/cib/cib.xml"
	DefaultStateDir = "/var/lib"
)

// Cluster services in start order; stop order is the reverse.
var clusterServices = []string{"corosync", "pacemaker"}

// daemonKillList is every daemon a teardown must be able to get rid of, even
// ones from older stacks that may linger on a partially broken host.
var daemonKillList = []string{
	"crmd", "pengine", "attrd", "lrmd", "stonithd", "cib",
	"pacemakerd", "pacemaker_remoted", "corosync-qdevice", "corosync",
}

// stateFileGlobs are the persisted state files removed by a destroy.
var stateFileGlobs = []string{
	"cib.xml*", "cib-*", "core.*", "hostcache", "cts.*", "pe*.bz2", "cib.*",
}

// Auxiliary subsystem configs distributed alongside the transport config.
// They are opaque payloads here; owning them is someone else's job.
const (
	AuxWatchdog = "watchdog"
	AuxTicket   = "ticket"
)

// auxPaths maps an auxiliary config kind to its location on a node.
var auxPaths = map[string]string{
	AuxWatchdog: "/etc/sysconfig/sbd",
	AuxTicket:   "/etc/booth/booth.conf",
}

// CommandRunner executes an external tool and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands on the local host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

// ServiceManager controls the lifecycle of local cluster services.
type ServiceManager interface {
	Start(ctx context.Context, service string) error
	Stop(ctx context.Context, service string) error
	Enable(ctx context.Context, service string) error
	Disable(ctx context.Context, service string) error
	Kill(ctx context.Context, daemons ...string) error
	IsRunning(ctx context.Context, service string) bool
}

// SysVServiceManager drives services through the service(8) and
// chkconfig/systemctl compatible tooling via a CommandRunner.
type SysVServiceManager struct {
	Runner CommandRunner
}

func (m *SysVServiceManager) Start(ctx context.Context, service string) error {
	return m.action(ctx, service, "start")
}

func (m *SysVServiceManager) Stop(ctx context.Context, service string) error {
	return m.action(ctx, service, "stop")
}

func (m *SysVServiceManager) Enable(ctx context.Context, service string) error {
	out, err := m.Runner.Run(ctx, "systemctl", "enable", service+".service")
	if err != nil {
		return fmt.Errorf("unable to enable %s: %s", service, strings.TrimSpace(out))
	}
	return nil
}

func (m *SysVServiceManager) Disable(ctx context.Context, service string) error {
	out, err := m.Runner.Run(ctx, "systemctl", "disable", service+".service")
	if err != nil {
		return fmt.Errorf("unable to disable %s: %s", service, strings.TrimSpace(out))
	}
	return nil
}

func (m *SysVServiceManager) Kill(ctx context.Context, daemons ...string) error {
	args := append([]string{"-q", "-9"}, daemons...)
	// killall fails when nothing matched, which is the desired end state
	_, _ = m.Runner.Run(ctx, "killall", args...)
	return nil
}

func (m *SysVServiceManager) IsRunning(ctx context.Context, service string) bool {
	_, err := m.Runner.Run(ctx, "service", service, "status")
	return err == nil
}

func (m *SysVServiceManager) action(ctx context.Context, service, verb string) error {
	out, err := m.Runner.Run(ctx, "service", service, verb)
	if err != nil {
		return fmt.Errorf("unable to %s %s: %s", verb, service, strings.TrimSpace(out))
	}
	return nil
}

// ConfigStore persists the transport configuration and knows where the rest
// of the cluster state lives on disk.
type ConfigStore interface {
	Read() (string, error)
	Write(text string) error
	Remove() error
	Exists() bool
	Path() string
	CIBExists() bool
	ReadAux(kind string) (string, error)
	WriteAux(kind, text string) error
	RemoveStateFiles() error
}

// FileStore is the on-disk ConfigStore.
type FileStore struct {
	ConfPath string
	CIBPath  string
	StateDir string

	// QdeviceDir holds the quorum device client certificates; purged with
	// the rest of the state on destroy.
	QdeviceDir string

	AuxPaths map[string]string
}

// NewFileStore returns a FileStore rooted at the default system paths.
func NewFileStore() *FileStore {
	return &FileStore{
		ConfPath:   DefaultConfPath,
		CIBPath:    DefaultCIBPath,
		StateDir:   DefaultStateDir,
		QdeviceDir: "/etc/corosync/qdevice",
		AuxPaths:   auxPaths,
	}
}

func (s *FileStore) Path() string { return s.ConfPath }

func (s *FileStore) Read() (string, error) {
	data, err := os.ReadFile(s.ConfPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *FileStore) Write(text string) error {
	if err := os.MkdirAll(filepath.Dir(s.ConfPath), 0o755); err != nil {
		return &ConfigWriteError{Path: s.ConfPath, Err: err}
	}
	if err := os.WriteFile(s.ConfPath, []byte(text), 0o644); err != nil {
		return &ConfigWriteError{Path: s.ConfPath, Err: err}
	}
	return nil
}

func (s *FileStore) Remove() error {
	err := os.Remove(s.ConfPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.ConfPath)
	return err == nil
}

func (s *FileStore) CIBExists() bool {
	_, err := os.Stat(s.CIBPath)
	return err == nil
}

func (s *FileStore) auxPath(kind string) (string, error) {
	path, ok := s.AuxPaths[kind]
	if !ok {
		return "", fmt.Errorf("unknown auxiliary config kind %q", kind)
	}
	return path, nil
}

func (s *FileStore) ReadAux(kind string) (string, error) {
	path, err := s.auxPath(kind)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *FileStore) WriteAux(kind, text string) error {
	path, err := s.auxPath(kind)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &ConfigWriteError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return &ConfigWriteError{Path: path, Err: err}
	}
	return nil
}

// RemoveStateFiles purges persisted cluster state under StateDir, along with
// the quorum device client certificates. Individual removal errors are
// ignored; a destroy must leave as clean a slate as it can.
func (s *FileStore) RemoveStateFiles() error {
	var matches []string
	filepath.Walk(s.StateDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		for _, pattern := range stateFileGlobs {
			if ok, _ := filepath.Match(pattern, info.Name()); ok {
				matches = append(matches, path)
				break
			}
		}
		return nil
	})
	for _, path := range matches {
		_ = os.Remove(path)
	}
	if s.QdeviceDir != "" {
		_ = os.RemoveAll(s.QdeviceDir)
	}
	return nil
}
