package domain

// Container represents a container as reported by the runtime daemon.
type Container struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Status string `json:"status"` // created, running, exited, etc.
}

// RunSpec describes a container to start from a built image.
type RunSpec struct {
	ImageID string
	Name    string
	Detach  bool
	// PortMap binds container ports ("9000/tcp") to host ports.
	PortMap map[string]int
	// AutoRemove asks the runtime to delete the container once it stops.
	AutoRemove bool
}
