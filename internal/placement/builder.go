package placement

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/task"
	"github.com/kballard/go-shellquote"
	"github.com/mattn/go-shellwords"
)

// ErrNoControllerCommand is returned when the controller command has no words.
var ErrNoControllerCommand = errors.New("controller command is empty")

// controllerTasksDir is where submitted task files are mounted on a controller.
const controllerTasksDir = "clusterflow/tasks"

// ControllerTaskBuilder builds a controller task that launches the submitted task file from
// the controller through `clusterflow controller run`, the entry point that accepts tasks
// needing spot recovery.
type ControllerTaskBuilder struct {
	// Command is the clusterflow binary on the controller. It may carry leading arguments.
	Command string
	// Resources is what controllers run on.
	Resources *task.Resources
}

// NewControllerTaskBuilder returns a builder for controllers running command on res.
func NewControllerTaskBuilder(command string, res *task.Resources) *ControllerTaskBuilder {
	return &ControllerTaskBuilder{Command: command, Resources: res}
}

func (builder *ControllerTaskBuilder) Build(_ context.Context, req *Request, controllerName string) (*task.Dag, error) {
	// Fail on the submitting host rather than on the controller.
	if _, err := task.ParseFile(req.TaskPath); err != nil {
		return nil, err
	}

	source, err := filepath.Abs(req.TaskPath)
	if err != nil {
		return nil, errors.New(err)
	}

	if err := cluster.CheckNameValid(req.ClusterName); err != nil {
		return nil, err
	}

	run, err := builder.runCommand(req)
	if err != nil {
		return nil, err
	}

	target := controllerTaskPath(req.ClusterName)

	controllerTask := &task.Task{
		Name:          controllerName,
		Run:           run,
		FileMounts:    map[string]string{target: source},
		Envs:          map[string]string{"CLUSTERFLOW_CONTROLLER": controllerName},
		Resources:     []*task.Resources{builder.Resources},
		BestResources: builder.Resources,
	}

	return task.NewDag(controllerTask), nil
}

func controllerTaskPath(clusterName string) string {
	return filepath.ToSlash(filepath.Join(controllerTasksDir, clusterName+".hcl"))
}

// runCommand is the shell line the controller task runs. Every word except the mounts dir
// variable is quoted.
func (builder *ControllerTaskBuilder) runCommand(req *Request) (string, error) {
	command, err := shellwords.Parse(builder.Command)
	if err != nil {
		return "", errors.Errorf("parsing controller command %q: %w", builder.Command, err)
	}

	if len(command) == 0 {
		return "", ErrNoControllerCommand
	}

	args := []string{"--cluster", req.ClusterName}
	if req.Detach {
		args = append(args, "--detach")
	}

	parts := []string{
		shellquote.Join(append(command, "controller", "run")...),
		`"$CLUSTERFLOW_MOUNTS_DIR"/` + shellquote.Join(controllerTaskPath(req.ClusterName)),
		shellquote.Join(args...),
	}

	return strings.Join(parts, " "), nil
}
