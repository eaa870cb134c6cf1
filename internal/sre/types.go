// Package sre implements the operational pipeline that runs after a patch
// lands: manifest generation, docker configuration, container testing,
// security scanning, and version-control readiness, sequenced by the Lead.
package sre

// Module describes one deployable part of the project.
type Module struct {
	Languages []string `json:"languages"`
}

// ArchContext is the architectural context SRE agents operate from.
type ArchContext struct {
	SystemType string            `json:"system_type"` // fullstack_web_app, backend_service, frontend_app, unknown
	Modules    map[string]Module `json:"modules"`     // keys: backend, frontend
}

// HasBackend reports whether the project carries a backend module.
func (a ArchContext) HasBackend() bool {
	_, ok := a.Modules["backend"]
	return ok
}

// HasFrontend reports whether the project carries a frontend module.
func (a ArchContext) HasFrontend() bool {
	_, ok := a.Modules["frontend"]
	return ok
}

// PhaseResult is one operational phase's outcome.
type PhaseResult struct {
	Passed       bool     `json:"passed"`
	FilesCreated []string `json:"files_created"`
	Issues       []string `json:"issues"`
}

// Summary aggregates the phase outcomes.
type Summary struct {
	TotalIssues      int    `json:"total_issues"`
	DeploymentReady  bool   `json:"deployment_ready"`
	DockerReady      bool   `json:"docker_ready"`
	OperationalScore string `json:"operational_score"` // "k/n"
}

// DockerPipeline records what the container pipeline actually did.
type DockerPipeline struct {
	ManifestsGenerated       []string `json:"manifests_generated"`
	DockerConfigsCreated     []string `json:"docker_configs_created"`
	ContainerTestsRun        bool     `json:"container_tests_run"`
	ContainerSecurityScanned bool     `json:"container_security_scanned"`
}

// Report is the Lead's aggregated operational report.
type Report struct {
	Passed         bool                   `json:"passed"`
	Issues         []string               `json:"issues"`
	CheckResults   map[string]PhaseResult `json:"check_results"`
	Summary        Summary                `json:"summary"`
	DockerPipeline DockerPipeline         `json:"docker_pipeline"`
}
