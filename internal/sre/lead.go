package sre

import (
	"context"
	"errors"
	"fmt"

	git "github.com/go-git/go-git/v5"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Phase names, in execution order.
var phaseOrder = []string{
	"manifest_generation",
	"docker_configuration",
	"container_testing",
	"container_security",
	"version_control",
}

// Lead sequences the operational phases and aggregates the report. The Lead
// owns its agents; agents hold no back-pointer to the Lead.
type Lead struct {
	fs         afero.Fs
	root       string
	dependency *DependencyAgent
	docker     *DockerConfigAgent
	sandbox    *SandboxAgent
	logger     *zap.Logger
}

// NewLead wires the SRE team for a project root.
func NewLead(fs afero.Fs, root string, dockerCLI DockerCLI, logger *zap.Logger) *Lead {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lead{
		fs:         fs,
		root:       root,
		dependency: NewDependencyAgent(fs, root, dockerCLI, logger),
		docker:     NewDockerConfigAgent(fs, root, logger),
		sandbox:    NewSandboxAgent(fs, root, dockerCLI, logger),
		logger:     logger,
	}
}

// Run executes manifests → docker configs → container tests → container
// security → version control, and aggregates the operational report.
func (l *Lead) Run(ctx context.Context) *Report {
	arch := AnalyzeArchitecture(l.fs, l.root)
	l.logger.Info("sre pipeline starting",
		zap.String("system_type", arch.SystemType))

	report := &Report{
		CheckResults: map[string]PhaseResult{},
	}

	// Phase 1: manifests.
	manifests := l.dependency.GenerateManifests(arch)
	report.CheckResults["manifest_generation"] = manifests
	report.DockerPipeline.ManifestsGenerated = manifests.FilesCreated

	// Phase 2: docker configuration.
	dockerCfg := l.docker.Generate(arch)
	report.CheckResults["docker_configuration"] = dockerCfg
	report.DockerPipeline.DockerConfigsCreated = dockerCfg.FilesCreated

	// Phase 3: container testing.
	sandboxResult := l.sandbox.Execute(ctx)
	testing := PhaseResult{Passed: sandboxResult.OK}
	if !sandboxResult.OK {
		testing.Issues = append(testing.Issues, sandboxResult.Message)
	}
	testing.Issues = append(testing.Issues, sandboxResult.PatternIssues...)
	if len(sandboxResult.PatternIssues) > 0 {
		testing.Passed = false
	}
	report.CheckResults["container_testing"] = testing
	report.DockerPipeline.ContainerTestsRun = sandboxResult.ContainerBased

	// Phase 4: container security scanning.
	securityIssues, containerScanned := l.dependency.SecurityScan(ctx)
	security := PhaseResult{Passed: len(securityIssues) == 0, Issues: securityIssues}
	report.CheckResults["container_security"] = security
	report.DockerPipeline.ContainerSecurityScanned = containerScanned

	// Phase 5: version-control readiness.
	report.CheckResults["version_control"] = l.versionControlReadiness()

	// Aggregate.
	passedCount := 0
	for _, phase := range phaseOrder {
		result := report.CheckResults[phase]
		if result.Passed {
			passedCount++
		}
		report.Issues = append(report.Issues, result.Issues...)
	}

	report.Passed = passedCount == len(phaseOrder)
	report.Summary = Summary{
		TotalIssues:      len(report.Issues),
		DeploymentReady:  passedCount == len(phaseOrder),
		DockerReady:      report.CheckResults["manifest_generation"].Passed && report.CheckResults["docker_configuration"].Passed,
		OperationalScore: fmt.Sprintf("%d/%d", passedCount, len(phaseOrder)),
	}

	l.logger.Info("sre pipeline complete",
		zap.String("score", report.Summary.OperationalScore),
		zap.Bool("deployment_ready", report.Summary.DeploymentReady),
		zap.Int("issues", report.Summary.TotalIssues))
	return report
}

// versionControlReadiness checks the repository state: a repo exists (or can
// be initialised), and a .gitignore is present.
func (l *Lead) versionControlReadiness() PhaseResult {
	result := PhaseResult{Passed: true}

	repo, err := git.PlainOpen(l.root)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(l.root, false)
		if err != nil {
			result.Passed = false
			result.Issues = append(result.Issues, fmt.Sprintf("git init failed: %v", err))
			return result
		}
		result.FilesCreated = append(result.FilesCreated, ".git")
	} else if err != nil {
		result.Passed = false
		result.Issues = append(result.Issues, fmt.Sprintf("git open failed: %v", err))
		return result
	}

	if _, err := repo.Worktree(); err != nil {
		result.Passed = false
		result.Issues = append(result.Issues, fmt.Sprintf("git worktree unavailable: %v", err))
		return result
	}

	if ok, _ := afero.Exists(l.fs, l.root+"/.gitignore"); !ok {
		result.Issues = append(result.Issues, ".gitignore missing")
	}
	return result
}
