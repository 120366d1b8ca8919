package event

// PermissionRequiredData is published when a consent decision is needed.
type PermissionRequiredData struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	Operation   string `json:"operation"`
	Description string `json:"description"`
}

// PermissionResolvedData is published when a consent request is answered.
type PermissionResolvedData struct {
	ID      string `json:"id"`
	Granted bool   `json:"granted"`
}

// PermissionGrantedData is published when a grant is stored.
type PermissionGrantedData struct {
	Path       string   `json:"path"`
	Operations []string `json:"operations"`
	GrantedBy  string   `json:"grantedBy"`
}

// PermissionRevokedData is published when a grant is removed or reduced.
type PermissionRevokedData struct {
	Path       string   `json:"path"`
	Operations []string `json:"operations,omitempty"`
}

// ProcessData is published for background process lifecycle events.
type ProcessData struct {
	ID       string `json:"id"`
	Command  string `json:"command"`
	ExitCode int    `json:"exitCode,omitempty"`
}

// OperationData is published when a reversible operation is recorded or undone.
type OperationData struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// ElevationRequestedData is published when privilege elevation is requested.
type ElevationRequestedData struct {
	Reason  string `json:"reason"`
	Granted bool   `json:"granted"`
}
