// Package flags declares the clusterflow command line flags. Every flag can also be set through
// a `CLUSTERFLOW_<FLAG_NAME>` environment variable.
package flags

import (
	"strings"

	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/options"
	"github.com/gruntwork-io/clusterflow/pkg/log"
	"github.com/urfave/cli/v2"
)

// EnvVarPrefix prefixes the environment variable of every flag.
const EnvVarPrefix = "CLUSTERFLOW_"

const (
	LogLevelFlagName              = "log-level"
	NoColorFlagName               = "no-color"
	StateDirFlagName              = "state-dir"
	LockDirFlagName               = "lock-dir"
	RegistryPathFlagName          = "registry-path"
	BackendFlagName               = "backend"
	StatusCommandFlagName         = "status-command"
	QueueBackendFlagName          = "queue-backend"
	QueueLeaseTTLFlagName         = "queue-lease-ttl"
	OversubscriptionRatioFlagName = "oversubscription-ratio"
	DynamoDBTableFlagName         = "dynamodb-table"
	AWSRegionFlagName             = "aws-region"
	ControllerNameFlagName        = "controller-name"
	ControllerIdleFlagName        = "controller-idle-minutes"
	ControllerInstanceFlagName    = "controller-instance-type"

	TraceExporterFlagName                 = "telemetry-trace-exporter"
	TraceExporterHTTPEndpointFlagName     = "telemetry-trace-exporter-http-endpoint"
	TraceExporterInsecureEndpointFlagName = "telemetry-trace-exporter-insecure-endpoint"
	MetricExporterFlagName                = "telemetry-metric-exporter"
	MetricExporterInsecureFlagName        = "telemetry-metric-exporter-insecure-endpoint"
)

// EnvVars returns the environment variables bound to the flag name, e.g. `CLUSTERFLOW_STATE_DIR` for `state-dir`.
func EnvVars(name string) []string {
	return []string{EnvVarPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))}
}

// NewGlobalFlags returns the flags accepted by every command.
func NewGlobalFlags(opts *options.Options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    LogLevelFlagName,
			EnvVars: EnvVars(LogLevelFlagName),
			Value:   opts.LogLevel.String(),
			Usage:   "Sets the logging level: " + log.AllLevels.String() + ".",
			Action: func(_ *cli.Context, val string) error {
				level, err := log.ParseLevel(val)
				if err != nil {
					return errors.WithStackTraceAndPrefix(err, "flag --%s", LogLevelFlagName)
				}

				opts.LogLevel = level
				opts.Logger.SetOptions(log.WithLevel(level))

				return nil
			},
		},
		&cli.BoolFlag{
			Name:    NoColorFlagName,
			EnvVars: EnvVars(NoColorFlagName),
			Usage:   "Disables colored log output.",
			Action: func(_ *cli.Context, val bool) error {
				opts.Logger.SetOptions(log.WithColors(!val))
				return nil
			},
		},
		&cli.StringFlag{
			Name:        StateDirFlagName,
			EnvVars:     EnvVars(StateDirFlagName),
			Destination: &opts.StateDir,
			Value:       opts.StateDir,
			Usage:       "The directory holding the cluster registry, lock files and local clusters.",
		},
		&cli.StringFlag{
			Name:        LockDirFlagName,
			EnvVars:     EnvVars(LockDirFlagName),
			Destination: &opts.LockDir,
			Usage:       "The directory holding lock files and controller queues. Point it at a shared filesystem to coordinate several hosts. Defaults to <state-dir>/locks.",
		},
		&cli.StringFlag{
			Name:        RegistryPathFlagName,
			EnvVars:     EnvVars(RegistryPathFlagName),
			Destination: &opts.RegistryPath,
			Usage:       "The sqlite database recording clusters. Defaults to <state-dir>/state.db.",
		},
		&cli.StringFlag{
			Name:        BackendFlagName,
			EnvVars:     EnvVars(BackendFlagName),
			Destination: &opts.Backend,
			Value:       opts.Backend,
			Usage:       "The backend clusters are provisioned with.",
		},
		&cli.StringFlag{
			Name:        StatusCommandFlagName,
			EnvVars:     EnvVars(StatusCommandFlagName),
			Destination: &opts.StatusCommand,
			Value:       opts.StatusCommand,
			Usage:       "The clusterflow command run to report cluster state after a failure, and on controllers. Shell quoting applies.",
		},
		&cli.StringFlag{
			Name:        QueueBackendFlagName,
			EnvVars:     EnvVars(QueueBackendFlagName),
			Destination: &opts.QueueBackend,
			Value:       opts.QueueBackend,
			Usage:       "Where controller admission queues live: file or dynamodb.",
		},
		&cli.DurationFlag{
			Name:        QueueLeaseTTLFlagName,
			EnvVars:     EnvVars(QueueLeaseTTLFlagName),
			Destination: &opts.QueueLeaseTTL,
			Value:       opts.QueueLeaseTTL,
			Usage:       "How long a controller queue slot outlives a submitter that stopped refreshing it.",
		},
		&cli.IntFlag{
			Name:        OversubscriptionRatioFlagName,
			EnvVars:     EnvVars(OversubscriptionRatioFlagName),
			Destination: &opts.OversubscriptionRatio,
			Value:       opts.OversubscriptionRatio,
			Usage:       "Each controller admits this many times 8 concurrent submissions.",
		},
		&cli.StringFlag{
			Name:        DynamoDBTableFlagName,
			EnvVars:     EnvVars(DynamoDBTableFlagName),
			Destination: &opts.DynamoDBTable,
			Value:       opts.DynamoDBTable,
			Usage:       "The DynamoDB table holding controller queues when --queue-backend=dynamodb.",
		},
		&cli.StringFlag{
			Name:        AWSRegionFlagName,
			EnvVars:     append(EnvVars(AWSRegionFlagName), "AWS_REGION"),
			Destination: &opts.AWSRegion,
			Usage:       "The AWS region of the DynamoDB table.",
		},
		&cli.StringFlag{
			Name:        ControllerNameFlagName,
			EnvVars:     EnvVars(ControllerNameFlagName),
			Destination: &opts.ControllerName,
			Value:       opts.ControllerName,
			Usage:       "The name of the first controller. Further controllers are named <name>-<shard>.",
		},
		&cli.IntFlag{
			Name:        ControllerIdleFlagName,
			EnvVars:     EnvVars(ControllerIdleFlagName),
			Destination: &opts.ControllerIdleMinutes,
			Value:       opts.ControllerIdleMinutes,
			Usage:       "Controllers stop after this many idle minutes.",
		},
		&cli.StringFlag{
			Name:        ControllerInstanceFlagName,
			EnvVars:     EnvVars(ControllerInstanceFlagName),
			Destination: &opts.ControllerInstanceType,
			Value:       opts.ControllerInstanceType,
			Usage:       "The instance type controllers run on.",
		},
		&cli.StringFlag{
			Name:        TraceExporterFlagName,
			EnvVars:     EnvVars(TraceExporterFlagName),
			Destination: &opts.Telemetry.TraceExporter,
			Value:       opts.Telemetry.TraceExporter,
			Usage:       "Trace exporter: none, console, otlpHttp, otlpGrpc or http.",
		},
		&cli.StringFlag{
			Name:        TraceExporterHTTPEndpointFlagName,
			EnvVars:     EnvVars(TraceExporterHTTPEndpointFlagName),
			Destination: &opts.Telemetry.TraceExporterHTTPEndpoint,
			Usage:       "The endpoint of the http trace exporter.",
		},
		&cli.BoolFlag{
			Name:        TraceExporterInsecureEndpointFlagName,
			EnvVars:     EnvVars(TraceExporterInsecureEndpointFlagName),
			Destination: &opts.Telemetry.TraceExporterInsecureEndpoint,
			Usage:       "Send traces over an insecure connection.",
		},
		&cli.StringFlag{
			Name:        "traceparent",
			EnvVars:     []string{"TRACEPARENT"},
			Destination: &opts.Telemetry.TraceParent,
			Hidden:      true,
		},
		&cli.StringFlag{
			Name:        MetricExporterFlagName,
			EnvVars:     EnvVars(MetricExporterFlagName),
			Destination: &opts.Telemetry.MetricExporter,
			Value:       opts.Telemetry.MetricExporter,
			Usage:       "Metric exporter: none, console, otlpHttp or grpcHttp.",
		},
		&cli.BoolFlag{
			Name:        MetricExporterInsecureFlagName,
			EnvVars:     EnvVars(MetricExporterInsecureFlagName),
			Destination: &opts.Telemetry.MetricExporterInsecureEndpoint,
			Usage:       "Send metrics over an insecure connection.",
		},
	}
}
