package cluster

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gruntwork-io/clusterflow/internal/errors"
)

// ReservedNameError is returned when a user targets a cluster name reserved for controllers.
type ReservedNameError struct {
	Name      string
	Operation string
}

func (err ReservedNameError) Error() string {
	return fmt.Sprintf("Cluster name %q is reserved for internal use. Please use a different cluster name for %s.", err.Name, err.Operation)
}

// MaxNameLength is the longest accepted cluster name.
const MaxNameLength = 63

// validName allows the names that are safe as path elements and shell words.
var validName = regexp.MustCompile(`^[a-zA-Z]([-_.a-zA-Z0-9]*[a-zA-Z0-9])?$`)

// InvalidNameError is returned for a cluster name that cannot be used.
type InvalidNameError struct {
	Name string
}

func (err InvalidNameError) Error() string {
	return fmt.Sprintf("Cluster name %q is invalid: it must start with a letter, end with a letter or digit, "+
		"contain only letters, digits, '-', '_' or '.', and be at most %d characters long.", err.Name, MaxNameLength)
}

// CheckNameValid fails for names that could escape the state directories or break the
// controller's command line.
func CheckNameValid(name string) error {
	if len(name) > MaxNameLength || !validName.MatchString(name) {
		return errors.New(InvalidNameError{Name: name})
	}

	return nil
}

// ReservedNames recognizes controller cluster names: the base name and its shard
// variants `<base>-<n>`.
type ReservedNames struct {
	ControllerBase string
}

// NewReservedNames returns a checker for the given controller base name.
func NewReservedNames(controllerBase string) *ReservedNames {
	return &ReservedNames{ControllerBase: controllerBase}
}

// IsController returns true if name belongs to a controller shard.
func (names *ReservedNames) IsController(name string) bool {
	if names == nil || names.ControllerBase == "" || name == "" {
		return false
	}

	if name == names.ControllerBase {
		return true
	}

	suffix, ok := strings.CutPrefix(name, names.ControllerBase+"-")
	if !ok {
		return false
	}

	index, err := strconv.Atoi(suffix)

	return err == nil && index > 1
}

// CheckNameNotReserved fails if name is a controller name. An empty name is never reserved.
func (names *ReservedNames) CheckNameNotReserved(name, operation string) error {
	if names.IsController(name) {
		return errors.New(ReservedNameError{Name: name, Operation: operation})
	}

	return nil
}

// GenerateName returns a fresh cluster name for launches that did not name their cluster.
func GenerateName() string {
	return "clusterflow-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// ControllerIndex returns the shard served by the named controller, or 0 if name is not a
// controller name.
func (names *ReservedNames) ControllerIndex(name string) int {
	if !names.IsController(name) {
		return 0
	}

	if name == names.ControllerBase {
		return 1
	}

	index, _ := strconv.Atoi(strings.TrimPrefix(name, names.ControllerBase+"-"))

	return index
}
