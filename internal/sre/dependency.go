package sre

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Pinned versions for known backend packages.
var backendVersions = map[string]string{
	"fastapi":           "0.109.1",
	"uvicorn[standard]": "0.24.0",
	"python-multipart":  "0.0.18",
	"pydantic":          "2.5.0",
	"sqlalchemy":        "2.0.23",
	"bcrypt":            "4.1.2",
	"pytest":            "7.4.3",
	"httpx":             "0.25.2",
	"starlette":         "0.40.0",
	"flask":             "3.0.0",
	"django":            "4.2.7",
}

// Pinned versions for known frontend packages.
var frontendVersions = map[string]string{
	"react":                "^18.2.0",
	"react-dom":            "^18.2.0",
	"axios":                "^1.6.0",
	"react-router-dom":     "^6.18.0",
	"@vitejs/plugin-react": "^4.1.0",
	"vite":                 "^4.5.0",
}

// Framework detection by substring over python sources.
var pythonFrameworkMarkers = map[string]string{
	"fastapi":    "fastapi",
	"flask":      "flask",
	"django":     "django",
	"sqlalchemy": "sqlalchemy",
	"pydantic":   "pydantic",
}

// DependencyAgent generates dependency manifests and runs security scans,
// container-first with a local fallback.
type DependencyAgent struct {
	fs     afero.Fs
	root   string
	docker DockerCLI
	logger *zap.Logger
}

// NewDependencyAgent creates the agent over the given filesystem and root.
func NewDependencyAgent(fs afero.Fs, root string, docker DockerCLI, logger *zap.Logger) *DependencyAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DependencyAgent{fs: fs, root: root, docker: docker, logger: logger}
}

// GenerateManifests emits backend/requirements.txt and frontend/package.json
// as the architecture demands. Existing manifests are never overwritten.
func (a *DependencyAgent) GenerateManifests(arch ArchContext) PhaseResult {
	result := PhaseResult{Passed: true}

	if arch.HasBackend() {
		path := filepath.Join(a.root, "backend", "requirements.txt")
		created, err := a.writeIfAbsent(path, a.backendRequirements())
		if err != nil {
			result.Passed = false
			result.Issues = append(result.Issues, fmt.Sprintf("requirements.txt: %v", err))
		} else if created {
			result.FilesCreated = append(result.FilesCreated, "backend/requirements.txt")
		}
	}

	if arch.HasFrontend() {
		path := filepath.Join(a.root, "frontend", "package.json")
		content, err := a.frontendPackageJSON()
		if err != nil {
			result.Passed = false
			result.Issues = append(result.Issues, fmt.Sprintf("package.json: %v", err))
			return result
		}
		created, err := a.writeIfAbsent(path, content)
		if err != nil {
			result.Passed = false
			result.Issues = append(result.Issues, fmt.Sprintf("package.json: %v", err))
		} else if created {
			result.FilesCreated = append(result.FilesCreated, "frontend/package.json")
		}
	}

	return result
}

// backendRequirements scans .py files for framework markers and renders the
// pinned requirement list. Test dependencies are always included.
func (a *DependencyAgent) backendRequirements() string {
	detected := map[string]bool{"pytest": true, "httpx": true}

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
		if strings.ToLower(filepath.Ext(path)) != ".py" {
			return nil
		}
		data, readErr := afero.ReadFile(a.fs, path)
		if readErr != nil {
			return nil
		}
		content := strings.ToLower(string(data))
		for marker, pkg := range pythonFrameworkMarkers {
			if strings.Contains(content, marker) {
				detected[pkg] = true
			}
		}
		if detected["fastapi"] {
			detected["uvicorn[standard]"] = true
		}
		return nil
	})

	pkgs := make([]string, 0, len(detected))
	for pkg := range detected {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)

	var lines []string
	for _, pkg := range pkgs {
		if version, ok := backendVersions[pkg]; ok {
			lines = append(lines, pkg+"=="+version)
		} else {
			lines = append(lines, pkg)
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

// frontendPackageJSON scans js/jsx sources for known packages and renders
// the manifest with the standard scripts block.
func (a *DependencyAgent) frontendPackageJSON() (string, error) {
	detected := map[string]bool{"react": true, "react-dom": true}

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
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".js" && ext != ".jsx" {
			return nil
		}
		data, readErr := afero.ReadFile(a.fs, path)
		if readErr != nil {
			return nil
		}
		content := string(data)
		if strings.Contains(content, "axios") {
			detected["axios"] = true
		}
		if strings.Contains(content, "react-router") {
			detected["react-router-dom"] = true
		}
		return nil
	})

	deps := map[string]string{}
	for pkg := range detected {
		version := frontendVersions[pkg]
		if version == "" {
			version = "^1.0.0"
		}
		deps[pkg] = version
	}

	manifest := map[string]any{
		"name":    "frontend",
		"version": "0.1.0",
		"type":    "module",
		"scripts": map[string]string{
			"dev":     "vite",
			"build":   "vite build",
			"preview": "vite preview",
			"test":    "vitest",
			"audit":   "npm audit --audit-level moderate",
		},
		"dependencies": deps,
		"devDependencies": map[string]string{
			"@vitejs/plugin-react": frontendVersions["@vitejs/plugin-react"],
			"vite":                 frontendVersions["vite"],
		},
	}
	out, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render package.json: %w", err)
	}
	return string(out) + "\n", nil
}

// writeIfAbsent writes content unless the file already exists.
func (a *DependencyAgent) writeIfAbsent(path, content string) (bool, error) {
	exists, err := afero.Exists(a.fs, path)
	if err != nil {
		return false, err
	}
	if exists {
		a.logger.Debug("manifest already present, not overwriting", zap.String("path", path))
		return false, nil
	}
	if err := a.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := afero.WriteFile(a.fs, path, []byte(content), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// SecurityScan runs vulnerability audits, container-first. With Docker and
// docker configuration present, audits run inside the compose services;
// otherwise they run locally. Missing tools are reported, never fatal.
func (a *DependencyAgent) SecurityScan(ctx context.Context) (issues []string, containerBased bool) {
	if a.docker != nil && a.docker.Available() && a.hasDockerConfiguration() {
		return a.containerScan(ctx), true
	}
	return a.localScan(ctx), false
}

// hasDockerConfiguration checks for compose or Dockerfile configuration.
func (a *DependencyAgent) hasDockerConfiguration() bool {
	for _, rel := range []string{"docker-compose.yml", "docker-compose.yaml", "backend/Dockerfile", "Dockerfile"} {
		if ok, _ := afero.Exists(a.fs, filepath.Join(a.root, rel)); ok {
			return true
		}
	}
	return false
}

// containerScan builds the compose services and audits inside them.
func (a *DependencyAgent) containerScan(ctx context.Context) []string {
	var issues []string

	if _, err := a.docker.Compose(ctx, a.root, composeBuildTimeout, "build", "--parallel"); err != nil {
		issues = append(issues, fmt.Sprintf("compose build failed: %v", err))
		return issues
	}

	if a.serviceInCompose("backend") {
		out, err := a.docker.Compose(ctx, a.root, composeTestTimeout,
			"run", "--rm", "backend", "pip-audit", "--format", "json")
		issues = append(issues, parsePipAudit("backend", out, err)...)
	}
	if a.serviceInCompose("frontend") {
		out, err := a.docker.Compose(ctx, a.root, composeTestTimeout,
			"run", "--rm", "frontend", "npm", "audit", "--json")
		issues = append(issues, parseNpmAudit("frontend", out, err)...)
	}

	// Free resources regardless of scan outcomes.
	_, _ = a.docker.Compose(ctx, a.root, composeShortTimeout, "down", "--remove-orphans")
	return issues
}

// localScan audits the project root with locally installed tools.
func (a *DependencyAgent) localScan(ctx context.Context) []string {
	var issues []string

	if hasReq, _ := afero.Exists(a.fs, filepath.Join(a.root, "backend", "requirements.txt")); hasReq {
		if _, err := exec.LookPath("pip-audit"); err != nil {
			issues = append(issues, "pip-audit not installed; python dependencies not scanned")
		} else {
			ctx, cancel := context.WithTimeout(ctx, composeTestTimeout)
			defer cancel()
			cmd := exec.CommandContext(ctx, "pip-audit", "-r", "backend/requirements.txt", "--format", "json")
			cmd.Dir = a.root
			out, err := cmd.CombinedOutput()
			issues = append(issues, parsePipAudit("local", string(out), err)...)
		}
	}

	if hasPkg, _ := afero.Exists(a.fs, filepath.Join(a.root, "frontend", "package.json")); hasPkg {
		if _, err := exec.LookPath("npm"); err != nil {
			issues = append(issues, "npm not installed; node dependencies not scanned")
		} else {
			ctx, cancel := context.WithTimeout(ctx, composeTestTimeout)
			defer cancel()
			cmd := exec.CommandContext(ctx, "npm", "audit", "--json")
			cmd.Dir = filepath.Join(a.root, "frontend")
			out, _ := cmd.CombinedOutput()
			issues = append(issues, parseNpmAudit("local", string(out), nil)...)
		}
	}

	return issues
}

// serviceInCompose checks whether the compose file declares a service.
func (a *DependencyAgent) serviceInCompose(service string) bool {
	data, err := afero.ReadFile(a.fs, filepath.Join(a.root, "docker-compose.yml"))
	if err != nil {
		return false
	}
	return strings.Contains(string(data), service+":")
}

// parsePipAudit converts pip-audit JSON output into issue strings of the
// form "<service>: <pkg> (<ver>) - <id>: <summary>".
func parsePipAudit(service, out string, runErr error) []string {
	var parsed struct {
		Dependencies []struct {
			Name    string `json:"name"`
			Version string `json:"version"`
			Vulns   []struct {
				ID          string `json:"id"`
				Description string `json:"description"`
			} `json:"vulns"`
		} `json:"dependencies"`
	}
	start := strings.IndexByte(out, '{')
	if start < 0 {
		if runErr != nil {
			return []string{fmt.Sprintf("%s: pip-audit failed: %v", service, runErr)}
		}
		return nil
	}
	if err := json.Unmarshal([]byte(out[start:]), &parsed); err != nil {
		return []string{fmt.Sprintf("%s: unparseable pip-audit output", service)}
	}

	var issues []string
	for _, dep := range parsed.Dependencies {
		for _, v := range dep.Vulns {
			summary := v.Description
			if len(summary) > 120 {
				summary = summary[:120] + "…"
			}
			issues = append(issues, fmt.Sprintf("%s: %s (%s) - %s: %s",
				service, dep.Name, dep.Version, v.ID, summary))
		}
	}
	return issues
}

// parseNpmAudit converts npm audit JSON output into issue strings.
func parseNpmAudit(service, out string, runErr error) []string {
	var parsed struct {
		Vulnerabilities map[string]struct {
			Severity string `json:"severity"`
			Range    string `json:"range"`
			Via      []any  `json:"via"`
		} `json:"vulnerabilities"`
	}
	start := strings.IndexByte(out, '{')
	if start < 0 {
		if runErr != nil {
			return []string{fmt.Sprintf("%s: npm audit failed: %v", service, runErr)}
		}
		return nil
	}
	if err := json.Unmarshal([]byte(out[start:]), &parsed); err != nil {
		return []string{fmt.Sprintf("%s: unparseable npm audit output", service)}
	}

	var issues []string
	for pkg, v := range parsed.Vulnerabilities {
		id := "advisory"
		for _, via := range v.Via {
			if m, ok := via.(map[string]any); ok {
				if title, ok := m["title"].(string); ok {
					id = title
					break
				}
			}
		}
		issues = append(issues, fmt.Sprintf("%s: %s (%s) - %s: %s",
			service, pkg, v.Range, v.Severity, id))
	}
	sort.Strings(issues)
	return issues
}
