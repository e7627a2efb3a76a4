// Package cluster holds the identity types shared by backends, the registry and the
// execution pipeline.
package cluster

import (
	"time"
)

// Status is the persisted state of a cluster.
type Status string

const (
	// StatusInit means the cluster is being provisioned or its state is unknown.
	StatusInit Status = "INIT"
	// StatusUp means the cluster is provisioned and usable.
	StatusUp Status = "UP"
	// StatusStopped means the cluster exists but is not running.
	StatusStopped Status = "STOPPED"
	// StatusAbsent means there is no such cluster.
	StatusAbsent Status = ""
)

func (status Status) String() string {
	if status == StatusAbsent {
		return "ABSENT"
	}

	return string(status)
}

// Handle is a backend-issued reference to a provisioned cluster. The pipeline treats it as
// opaque and only passes it back to the backend that issued it.
type Handle struct {
	ClusterName string            `json:"cluster_name"`
	Backend     string            `json:"backend"`
	Resources   string            `json:"resources,omitempty"`
	Head        string            `json:"head,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Record is one row of the cluster registry.
type Record struct {
	Name             string
	Status           Status
	Handle           *Handle
	LaunchedAt       time.Time
	LastUse          time.Time
	AutostopMinutes  int
	IsControllerRole bool
}
