package sre

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	"go.uber.org/zap"
)

// localTestTimeout bounds the local unittest run.
const localTestTimeout = 60 * time.Second

// SandboxResult is the sandbox agent's outcome.
type SandboxResult struct {
	OK             bool
	Message        string
	ContainerBased bool
	PatternIssues  []string
}

// SandboxAgent runs syntax checks and tests, in containers when the project
// has docker configuration and a runtime is available, locally otherwise.
type SandboxAgent struct {
	fs     afero.Fs
	root   string
	docker DockerCLI
	logger *zap.Logger
}

// NewSandboxAgent creates the agent.
func NewSandboxAgent(fs afero.Fs, root string, docker DockerCLI, logger *zap.Logger) *SandboxAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SandboxAgent{fs: fs, root: root, docker: docker, logger: logger}
}

// Execute picks the mode and runs the checks. Compose services and
// ephemeral containers are cleaned up on success and failure alike.
func (a *SandboxAgent) Execute(ctx context.Context) SandboxResult {
	if a.docker != nil && a.docker.Available() && a.hasComposeFile() {
		result := a.executeInContainers(ctx)
		result.PatternIssues = a.professionalPatternIssues(ctx)
		return result
	}
	return a.executeLocally(ctx)
}

func (a *SandboxAgent) hasComposeFile() bool {
	ok, _ := afero.Exists(a.fs, filepath.Join(a.root, "docker-compose.yml"))
	return ok
}

// executeInContainers builds the compose services and runs each service's
// test command in a fresh ephemeral container.
func (a *SandboxAgent) executeInContainers(ctx context.Context) SandboxResult {
	defer func() {
		_, _ = a.docker.Compose(ctx, a.root, composeShortTimeout, "down", "--remove-orphans")
	}()

	if out, err := a.docker.Compose(ctx, a.root, composeBuildTimeout, "build", "--parallel"); err != nil {
		return SandboxResult{
			OK:             false,
			Message:        fmt.Sprintf("compose build failed: %v: %s", err, tail(out, 400)),
			ContainerBased: true,
		}
	}

	serviceTests := []struct {
		service string
		command []string
	}{
		{"backend", []string{"python", "-m", "pytest", "-v", "--tb=short"}},
		{"frontend", []string{"npm", "test", "--", "--watchAll=false"}},
	}

	var messages []string
	allPassed := true
	for _, st := range serviceTests {
		if !a.serviceInCompose(st.service) {
			continue
		}
		containerName := fmt.Sprintf("test-%s-%d", st.service, time.Now().Unix())
		args := append([]string{"run", "--rm", "--name", containerName, st.service}, st.command...)
		out, err := a.docker.Compose(ctx, a.root, composeTestTimeout, args...)
		if err != nil {
			allPassed = false
			messages = append(messages, fmt.Sprintf("%s tests failed: %s", st.service, tail(out, 200)))
		} else {
			messages = append(messages, fmt.Sprintf("%s tests passed", st.service))
		}
	}

	return SandboxResult{
		OK:             allPassed,
		Message:        strings.Join(messages, "; "),
		ContainerBased: true,
	}
}

func (a *SandboxAgent) serviceInCompose(service string) bool {
	data, err := afero.ReadFile(a.fs, filepath.Join(a.root, "docker-compose.yml"))
	if err != nil {
		return false
	}
	return strings.Contains(string(data), service+":")
}

// executeLocally sweeps python sources for syntax errors, then discovers and
// runs unit tests with a hard timeout. Projects without python sources are
// reported as skipped, passing.
func (a *SandboxAgent) executeLocally(ctx context.Context) SandboxResult {
	pyFiles := a.pythonFiles()
	if len(pyFiles) == 0 {
		return SandboxResult{OK: true, Message: "no python sources; local tests skipped"}
	}

	// Phase 1: syntax sweep.
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(sitter.NewLanguage(python.Language())); err != nil {
		return SandboxResult{OK: false, Message: fmt.Sprintf("python grammar unavailable: %v", err)}
	}
	for _, rel := range pyFiles {
		data, err := afero.ReadFile(a.fs, filepath.Join(a.root, rel))
		if err != nil {
			continue
		}
		tree := parser.Parse(data, nil)
		if tree == nil {
			return SandboxResult{OK: false, Message: fmt.Sprintf("unparseable python file: %s", rel)}
		}
		hasError := tree.RootNode().HasError()
		tree.Close()
		if hasError {
			return SandboxResult{OK: false, Message: fmt.Sprintf("syntax error in %s", rel)}
		}
	}

	// Phase 2: unittest discovery, time-bounded.
	pythonBin, err := exec.LookPath("python3")
	if err != nil {
		if pythonBin, err = exec.LookPath("python"); err != nil {
			return SandboxResult{OK: true, Message: "syntax sweep passed; python interpreter not installed, tests skipped"}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, localTestTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, pythonBin, "-m", "unittest", "discover", "-v")
	cmd.Dir = a.root
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return SandboxResult{OK: false, Message: fmt.Sprintf("local tests timed out after %s", localTestTimeout)}
		}
		return SandboxResult{OK: false, Message: "local tests failed: " + tail(output.String(), 400)}
	}
	return SandboxResult{OK: true, Message: "syntax sweep and local tests passed"}
}

func (a *SandboxAgent) pythonFiles() []string {
	var files []string
	afero.Walk(a.fs, a.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		if info.IsDir() {
			if skipArchDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) == ".py" {
			if rel, relErr := filepath.Rel(a.root, path); relErr == nil {
				files = append(files, rel)
			}
		}
		return nil
	})
	return files
}

// professionalPatternIssues validates the production-readiness checklist:
// file layout, compose validity, health checks, CORS, and API wiring.
func (a *SandboxAgent) professionalPatternIssues(ctx context.Context) []string {
	var issues []string

	// No simultaneous App.js and App.jsx.
	appJS, _ := afero.Exists(a.fs, filepath.Join(a.root, "frontend", "src", "App.js"))
	appJSX, _ := afero.Exists(a.fs, filepath.Join(a.root, "frontend", "src", "App.jsx"))
	if appJS && appJSX {
		issues = append(issues, "both App.js and App.jsx present; keep exactly one")
	}

	// Required layout.
	for _, rel := range []string{"backend/main.py", "frontend/package.json", "docker-compose.yml"} {
		if ok, _ := afero.Exists(a.fs, filepath.Join(a.root, rel)); !ok {
			issues = append(issues, fmt.Sprintf("missing %s", rel))
		}
	}

	// Compose file must validate and carry health checks and dependencies.
	if data, err := afero.ReadFile(a.fs, filepath.Join(a.root, "docker-compose.yml")); err == nil {
		content := string(data)
		if !strings.Contains(content, "healthcheck") {
			issues = append(issues, "compose services define no health checks")
		}
		if !strings.Contains(content, "depends_on") {
			issues = append(issues, "compose services define no depends_on ordering")
		}
		if a.docker != nil && a.docker.Available() {
			if _, err := a.docker.Compose(ctx, a.root, composeShortTimeout, "config", "--quiet"); err != nil {
				issues = append(issues, fmt.Sprintf("docker compose config rejects the file: %v", err))
			}
		}
	}

	// CORS middleware in the backend.
	if data, err := afero.ReadFile(a.fs, filepath.Join(a.root, "backend", "main.py")); err == nil {
		if !strings.Contains(string(data), "CORSMiddleware") && !strings.Contains(string(data), "cors") {
			issues = append(issues, "backend/main.py has no CORS middleware")
		}
	}

	// Frontend must call the backend through /api/.
	if !a.frontendCallsAPI() {
		issues = append(issues, "frontend has no fetch calls to /api/")
	}

	return issues
}

func (a *SandboxAgent) frontendCallsAPI() bool {
	found := false
	frontendDir := filepath.Join(a.root, "frontend")
	if ok, _ := afero.DirExists(a.fs, frontendDir); !ok {
		return false
	}
	afero.Walk(a.fs, frontendDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() || found {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".js" && ext != ".jsx" && ext != ".ts" && ext != ".tsx" {
			return nil
		}
		if data, readErr := afero.ReadFile(a.fs, path); readErr == nil {
			content := string(data)
			if strings.Contains(content, "fetch('/api/") || strings.Contains(content, `fetch("/api/`) ||
				strings.Contains(content, "axios.get('/api/") || strings.Contains(content, "'/api/") {
				found = true
			}
		}
		return nil
	})
	return found
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
