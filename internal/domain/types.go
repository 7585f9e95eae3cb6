// Package domain holds the core data model shared across the detection,
// build, and deployment pipeline: Project, Deployment, Config, and the
// queued Job message. These are plain records (§9 "dynamic configuration
// objects" design note) — unknown fields are rejected at the queue boundary,
// not tolerated as loose maps.
package domain

import "time"

// TechClass is the normalized technology a bundle was detected as.
type TechClass string

const (
	TechNodeJS   TechClass = "nodejs"
	TechPython   TechClass = "python"
	TechGo       TechClass = "go"
	TechStatic   TechClass = "static"
	TechUnknown  TechClass = "unknown"
)

// Config is the output of detection: everything the synthesizer and runtime
// adapter need to build and run a bundle.
type Config struct {
	Tech        TechClass         `json:"tech"`
	BuildCmd    string            `json:"build_command,omitempty"`
	RunCmd      string            `json:"run_command"`
	Port        int               `json:"port"`
	Environment map[string]string `json:"environment"`
	InstallPath string            `json:"install_path"`
}

// ProjectStatus tracks the lifecycle of a Project record.
type ProjectStatus string

const (
	ProjectStatusPending ProjectStatus = "pending"
	ProjectStatusActive  ProjectStatus = "active"
	ProjectStatusDeleted ProjectStatus = "deleted"
)

// Project is the identity of an application: its owner, its subdomain, and
// the technology class detection last assigned it.
type Project struct {
	ID          string
	OwnerUserID string
	DisplayName string
	Slug        string // unique subdomain base; collisions get a "-N" suffix
	Tech        TechClass
	Status      ProjectStatus
	URL         string
	CreatedAt   time.Time
}

// DeploymentStatus is one of the states in the lifecycle table of §4.6.
type DeploymentStatus string

const (
	StatusQueued    DeploymentStatus = "queued"
	StatusBuilding  DeploymentStatus = "building"
	StatusDeploying DeploymentStatus = "deploying"
	StatusRunning   DeploymentStatus = "running"
	StatusFailed    DeploymentStatus = "failed"
	StatusStopped   DeploymentStatus = "stopped"
)

// IsTerminal reports whether no further transitions occur from this status.
func (s DeploymentStatus) IsTerminal() bool {
	switch s {
	case StatusRunning, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// BuildLogEntry is one append-only line of a deployment's aggregated build
// log.
type BuildLogEntry struct {
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	WorkerID  string    `json:"worker_id"`
}

// Deployment is one attempt to bring a specific source bundle live.
type Deployment struct {
	ID              string
	ProjectID       string
	Status          DeploymentStatus
	ContainerID     string // empty until deploying/running
	ImageID         string // empty until built
	URL             string // empty until running
	FailureReason   string // empty unless failed
	WorkerID        string
	AttemptCount    int
	Logs            []BuildLogEntry
	CreatedAt       time.Time
	BuildStartedAt  *time.Time
	BuildCompleteAt *time.Time
	DeployedAt      *time.Time
	FailedAt        *time.Time
	StoppedAt       *time.Time
}

// PortBinding request/allocation pair: container-internal port -> host port.
type PortBinding struct {
	Container int
	Host      int
}

// JobMessage is the self-contained unit of queued work (§6). A worker can
// process it without talking back to the control plane for inputs.
type JobMessage struct {
	DeploymentID      string            `json:"deployment_id"`
	ProjectName       string            `json:"project_name"`
	ProjectFiles      map[string][]byte `json:"project_files"` // path -> raw bytes (base64 on the wire)
	DockerfileContent *string           `json:"dockerfile_content"`
	Environment       map[string]string `json:"environment"`
	Ports             map[int]int       `json:"ports"`
	Config            *Config           `json:"config"`
	AIVerified        bool              `json:"ai_verified"`
	DecisionID        *string           `json:"decision_id"`
	WorkerPublicIP    *string           `json:"worker_public_ip"`
}

// ContainerRecord is the in-memory, non-persistent view C6/C8 hold of a
// live deployment's container. It is re-derived from the runtime adapter on
// worker restart; the runtime adapter remains the authoritative source.
type ContainerRecord struct {
	ProjectID   string
	ContainerID string
	ImageID     string
	Status      string
	Ports       []PortBinding
	CreatedAt   time.Time
	Config      Config
}
