package execution

import (
	"strings"

	"github.com/gruntwork-io/clusterflow/internal/errors"
)

// Stage is one step of the pipeline. Stages always run in the order they are declared here.
type Stage int

const (
	StageOptimize Stage = iota
	StageProvision
	StageSyncWorkdir
	StageSyncFileMounts
	StageSetup
	StagePreExec
	StageExec
	StageTeardown
)

// AllStages lists every stage in pipeline order.
var AllStages = Stages{
	StageOptimize,
	StageProvision,
	StageSyncWorkdir,
	StageSyncFileMounts,
	StageSetup,
	StagePreExec,
	StageExec,
	StageTeardown,
}

var stageNames = map[Stage]string{
	StageOptimize:       "OPTIMIZE",
	StageProvision:      "PROVISION",
	StageSyncWorkdir:    "SYNC_WORKDIR",
	StageSyncFileMounts: "SYNC_FILE_MOUNTS",
	StageSetup:          "SETUP",
	StagePreExec:        "PRE_EXEC",
	StageExec:           "EXEC",
	StageTeardown:       "TEARDOWN",
}

func (stage Stage) String() string {
	if name, ok := stageNames[stage]; ok {
		return name
	}

	return "UNKNOWN"
}

// metricName is the name telemetry records the stage under, e.g. `stage_sync_workdir`.
func (stage Stage) metricName() string {
	return "stage_" + strings.ToLower(stage.String())
}

// ParseStage parses a stage name such as `sync_workdir` or `SYNC-WORKDIR`.
func ParseStage(str string) (Stage, error) {
	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(str), "-", "_"))

	for stage, stageName := range stageNames {
		if stageName == name {
			return stage, nil
		}
	}

	return 0, errors.Errorf("unknown stage %q, expected one of %s", str, AllStages)
}

// Stages is a subset of the pipeline. A nil Stages means every stage.
type Stages []Stage

// ParseStages parses a list of stage names. An empty list yields nil, i.e. every stage.
func ParseStages(names []string) (Stages, error) {
	if len(names) == 0 {
		return nil, nil
	}

	stages := make(Stages, 0, len(names))

	for _, name := range names {
		stage, err := ParseStage(name)
		if err != nil {
			return nil, err
		}

		stages = append(stages, stage)
	}

	return stages, nil
}

// Contains returns true if stage should run.
func (stages Stages) Contains(stage Stage) bool {
	if stages == nil {
		return true
	}

	for _, s := range stages {
		if s == stage {
			return true
		}
	}

	return false
}

func (stages Stages) String() string {
	names := make([]string, len(stages))
	for i, stage := range stages {
		names[i] = stage.String()
	}

	return strings.Join(names, ", ")
}
