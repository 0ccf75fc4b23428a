package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a demo. Besides the states owned by the
// deployment workflow, a reconciled demo carries the runtime-reported
// container status verbatim (e.g. "exited", "paused").
type Status string

const (
	StatusEmpty       Status = "empty"
	StatusDeploying   Status = "deploying"
	StatusRedeploying Status = "redeploying"
	StatusRunning     Status = "running"
	StatusError       Status = "error"
)

// Demo is a user-submitted workload whose container lifecycle is managed by
// origamid.
//
// ContainerID, ImageID and Port are empty (zero) when absent. A non-empty
// ContainerID only means the runtime was once told to run that container; it
// may be gone since. Port is assigned on first launch and kept across
// redeploys. LogID is assigned at creation and never changes.
type Demo struct {
	DemoID      string `json:"demo_id"`
	LogID       string `json:"log_id"`
	Status      Status `json:"status"`
	ContainerID string `json:"container_id,omitempty"`
	ImageID     string `json:"image_id,omitempty"`
	Port        int    `json:"port,omitempty"`
}

// NewDemo returns an unsaved demo in the deploying state with a fresh log id.
func NewDemo(demoID string) *Demo {
	return &Demo{
		DemoID: demoID,
		LogID:  strings.ReplaceAll(uuid.NewString(), "-", ""),
		Status: StatusDeploying,
	}
}

// HasContainer reports whether a runtime container is associated with the demo.
func (d *Demo) HasContainer() bool {
	return d.ContainerID != ""
}

// Settled reports whether the demo is not in the middle of a deployment.
func (d *Demo) Settled() bool {
	return d.Status != StatusDeploying && d.Status != StatusRedeploying
}
