// Package options provides a set of options that configure the behavior of the clusterflow program.
package options

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/queue"
	"github.com/gruntwork-io/clusterflow/internal/telemetry"
	"github.com/gruntwork-io/clusterflow/pkg/log"
	"github.com/gruntwork-io/clusterflow/util"
	"github.com/kballard/go-shellquote"
)

const (
	// DefaultStateDir holds the registry, lock files and local clusters.
	DefaultStateDir = "~/.clusterflow"

	DefaultBackend               = "local"
	DefaultOptimizeTarget        = "cost"
	DefaultOversubscriptionRatio = 4
	DefaultControllerName        = "clusterflow-controller"
	DefaultControllerIdleMinutes = 10
	DefaultControllerInstance    = "m5.large"
	DefaultDynamoDBTable         = "clusterflow-queues"

	QueueBackendFile     = "file"
	QueueBackendDynamoDB = "dynamodb"

	lockDirName      = "locks"
	registryFileName = "state.db"

	defaultLogLevel = log.InfoLevel
)

// Options represents options that configure the behavior of the clusterflow program.
type Options struct {
	// Writer is where task output and command results are written.
	Writer io.Writer
	// ErrWriter is where logs and diagnostics are written.
	ErrWriter io.Writer
	Logger    log.Logger
	LogLevel  log.Level

	// StateDir is the root of all local state. A leading `~` is expanded.
	StateDir string
	// LockDir holds the exec-or-launch locks and the controller queue ledgers. Defaults to <StateDir>/locks.
	LockDir string
	// RegistryPath is the sqlite cluster registry. Defaults to <StateDir>/state.db.
	RegistryPath string

	// Backend names the backend clusters are provisioned with.
	Backend        string
	OptimizeTarget string

	// QueueBackend is either `file` (ledgers under LockDir) or `dynamodb`.
	QueueBackend          string
	QueueLeaseTTL         time.Duration
	OversubscriptionRatio int
	DynamoDBTable         string
	AWSRegion             string

	ControllerName         string
	ControllerIdleMinutes  int
	ControllerInstanceType string

	// StatusCommand is the clusterflow binary invoked to report cluster state after a failure and
	// by controller tasks. It is split into words the way a shell would.
	StatusCommand string

	Telemetry *telemetry.Options
}

// NewOptions creates a new Options object with reasonable defaults for real usage.
func NewOptions() *Options {
	return NewOptionsWithWriters(os.Stdout, os.Stderr)
}

// NewOptionsWithWriters creates a new Options object writing to the given writers.
func NewOptionsWithWriters(stdout, stderr io.Writer) *Options {
	return &Options{
		Writer:                 stdout,
		ErrWriter:              stderr,
		Logger:                 log.New(log.WithOutput(stderr), log.WithLevel(defaultLogLevel), log.WithFormatter(log.NewTextFormatter())),
		LogLevel:               defaultLogLevel,
		StateDir:               DefaultStateDir,
		Backend:                DefaultBackend,
		OptimizeTarget:         DefaultOptimizeTarget,
		QueueBackend:           QueueBackendFile,
		QueueLeaseTTL:          queue.DefaultLeaseTTL,
		OversubscriptionRatio:  DefaultOversubscriptionRatio,
		DynamoDBTable:          DefaultDynamoDBTable,
		ControllerName:         DefaultControllerName,
		ControllerIdleMinutes:  DefaultControllerIdleMinutes,
		ControllerInstanceType: DefaultControllerInstance,
		StatusCommand:          defaultStatusCommand(),
		Telemetry:              &telemetry.Options{TraceExporter: "none", MetricExporter: "none"},
	}
}

// Clone returns a copy of opts that can be modified without affecting opts.
func (opts *Options) Clone() *Options {
	cloned := *opts

	if opts.Telemetry != nil {
		telemetryOpts := *opts.Telemetry
		cloned.Telemetry = &telemetryOpts
	}

	if opts.Logger != nil {
		cloned.Logger = opts.Logger.Clone()
	}

	return &cloned
}

// ResolvePaths expands StateDir and derives LockDir and RegistryPath from it when unset.
func (opts *Options) ResolvePaths() error {
	stateDir, err := util.ExpandHome(opts.StateDir)
	if err != nil {
		return err
	}

	if stateDir, err = filepath.Abs(stateDir); err != nil {
		return errors.New(err)
	}

	opts.StateDir = stateDir

	if opts.LockDir == "" {
		opts.LockDir = filepath.Join(stateDir, lockDirName)
	}

	if opts.RegistryPath == "" {
		opts.RegistryPath = filepath.Join(stateDir, registryFileName)
	}

	for _, path := range []*string{&opts.LockDir, &opts.RegistryPath} {
		if *path, err = util.ExpandHome(*path); err != nil {
			return err
		}
	}

	return nil
}

// QueueCapacity is the number of submissions admitted per controller shard.
func (opts *Options) QueueCapacity() int {
	return queue.Capacity(opts.OversubscriptionRatio)
}

// Validate checks option values that flags cannot constrain.
func (opts *Options) Validate() error {
	switch opts.QueueBackend {
	case QueueBackendFile, QueueBackendDynamoDB:
	default:
		return errors.Errorf("invalid queue backend %q, expected %q or %q", opts.QueueBackend, QueueBackendFile, QueueBackendDynamoDB)
	}

	if opts.QueueLeaseTTL < time.Second {
		return errors.Errorf("queue lease TTL must be at least 1s, got %s", opts.QueueLeaseTTL)
	}

	if opts.OversubscriptionRatio < 1 {
		return errors.Errorf("oversubscription ratio must be at least 1, got %d", opts.OversubscriptionRatio)
	}

	return nil
}

func defaultStatusCommand() string {
	if executable, err := os.Executable(); err == nil {
		return shellquote.Join(executable)
	}

	return "clusterflow"
}
