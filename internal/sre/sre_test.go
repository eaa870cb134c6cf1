package sre

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/code-factory/internal/llm"
)

// Test Plan:
// - Architecture analysis classifies backend/frontend/fullstack projects
// - Manifest generation creates pinned requirements.txt and package.json,
//   always includes pytest and httpx, and never overwrites existing files
// - Docker config generation emits all expected files; fullstack adds a
//   postgres service with health check and named volume; container names
//   embed a timestamp
// - Professional-pattern checks flag missing layout, CORS, and /api/ wiring
// - pip-audit/npm audit JSON parse into "<service>: <pkg> (<ver>) - ..." strings
// - Lead aggregates: operational_score=k/n, deployment_ready iff k=n,
//   docker_ready from the two docker phases
// - Test generator consolidates python tests with one unittest.main()

// fakeDocker is an always-unavailable runtime so agents take local paths.
type fakeDocker struct{}

func (fakeDocker) Available() bool { return false }
func (fakeDocker) Compose(context.Context, string, time.Duration, ...string) (string, error) {
	return "", nil
}
func (fakeDocker) Run(context.Context, string, time.Duration, ...string) (string, error) {
	return "", nil
}

func seedFullstack(t *testing.T, fs afero.Fs, root string) {
	t.Helper()
	files := map[string]string{
		root + "/backend/main.py": "from fastapi import FastAPI\nfrom fastapi.middleware.cors import CORSMiddleware\n\napp = FastAPI()\n",
		root + "/frontend/src/App.jsx": "import React from 'react'\n\nexport const App = () => {\n  fetch('/api/items')\n  return <div/>\n}\n",
	}
	for path, content := range files {
		require.NoError(t, fs.MkdirAll(path[:strings.LastIndex(path, "/")], 0o755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

func TestAnalyzeArchitecture(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	seedFullstack(t, fs, "/proj")
	arch := AnalyzeArchitecture(fs, "/proj")
	assert.Equal(t, "fullstack_web_app", arch.SystemType)
	assert.True(t, arch.HasBackend())
	assert.True(t, arch.HasFrontend())

	fs2 := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs2, "/p/api.py", []byte("import flask\n"), 0o644))
	assert.Equal(t, "backend_service", AnalyzeArchitecture(fs2, "/p").SystemType)
}

func TestGenerateManifests(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	seedFullstack(t, fs, "/proj")
	agent := NewDependencyAgent(fs, "/proj", fakeDocker{}, nil)

	result := agent.GenerateManifests(AnalyzeArchitecture(fs, "/proj"))
	require.True(t, result.Passed)
	assert.ElementsMatch(t,
		[]string{"backend/requirements.txt", "frontend/package.json"},
		result.FilesCreated)

	reqs, err := afero.ReadFile(fs, "/proj/backend/requirements.txt")
	require.NoError(t, err)
	content := string(reqs)
	assert.Contains(t, content, "fastapi==0.109.1")
	assert.Contains(t, content, "pytest==7.4.3")
	assert.Contains(t, content, "httpx==0.25.2")
	assert.Contains(t, content, "uvicorn[standard]==0.24.0")

	// Requirements come out sorted.
	lines := strings.Split(strings.TrimSpace(content), "\n")
	sorted := append([]string(nil), lines...)
	assert.IsIncreasing(t, sorted)

	pkg, err := afero.ReadFile(fs, "/proj/frontend/package.json")
	require.NoError(t, err)
	var manifest map[string]any
	require.NoError(t, json.Unmarshal(pkg, &manifest))
	scripts := manifest["scripts"].(map[string]any)
	for _, script := range []string{"dev", "build", "preview", "test", "audit"} {
		assert.Contains(t, scripts, script)
	}
	deps := manifest["dependencies"].(map[string]any)
	assert.Equal(t, "^18.2.0", deps["react"])
}

func TestGenerateManifests_NeverOverwrites(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	seedFullstack(t, fs, "/proj")
	existing := "flask==3.0.0\n"
	require.NoError(t, afero.WriteFile(fs, "/proj/backend/requirements.txt", []byte(existing), 0o644))

	agent := NewDependencyAgent(fs, "/proj", fakeDocker{}, nil)
	result := agent.GenerateManifests(AnalyzeArchitecture(fs, "/proj"))
	require.True(t, result.Passed)
	assert.NotContains(t, result.FilesCreated, "backend/requirements.txt")

	data, err := afero.ReadFile(fs, "/proj/backend/requirements.txt")
	require.NoError(t, err)
	assert.Equal(t, existing, string(data))
}

func TestDockerConfigAgent_FullstackFiles(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	seedFullstack(t, fs, "/proj")
	agent := NewDockerConfigAgent(fs, "/proj", nil)
	agent.now = func() time.Time { return time.Unix(1700000000, 0) }

	result := agent.Generate(AnalyzeArchitecture(fs, "/proj"))
	require.True(t, result.Passed)
	assert.ElementsMatch(t, []string{
		"backend/Dockerfile", "frontend/Dockerfile", "frontend/nginx.conf",
		"docker-compose.yml", ".dockerignore",
	}, result.FilesCreated)

	compose, err := afero.ReadFile(fs, "/proj/docker-compose.yml")
	require.NoError(t, err)
	content := string(compose)
	assert.Contains(t, content, "factory-backend-1700000000")
	assert.Contains(t, content, "postgres:15-alpine")
	assert.Contains(t, content, "postgres_data:")
	assert.Contains(t, content, "healthcheck")
	assert.Contains(t, content, "depends_on")

	backendDF, err := afero.ReadFile(fs, "/proj/backend/Dockerfile")
	require.NoError(t, err)
	assert.Contains(t, string(backendDF), "python:3.11-slim")
	assert.Contains(t, string(backendDF), "USER app")
	assert.Contains(t, string(backendDF), "/health")

	nginx, err := afero.ReadFile(fs, "/proj/frontend/nginx.conf")
	require.NoError(t, err)
	assert.Contains(t, string(nginx), "location /api/")
	assert.Contains(t, string(nginx), "proxy_pass http://backend:8000/")
}

func TestSandbox_ProfessionalPatterns(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	seedFullstack(t, fs, "/proj")
	require.NoError(t, afero.WriteFile(fs, "/proj/docker-compose.yml",
		[]byte("services:\n  backend:\n    healthcheck: {}\n    depends_on: []\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/proj/frontend/package.json", []byte("{}"), 0o644))

	agent := NewSandboxAgent(fs, "/proj", fakeDocker{}, nil)
	issues := agent.professionalPatternIssues(context.Background())
	assert.Empty(t, issues)

	// Remove the CORS middleware and the /api/ call: both get flagged.
	require.NoError(t, afero.WriteFile(fs, "/proj/backend/main.py", []byte("app = object()\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/proj/frontend/src/App.jsx", []byte("export const App = () => null\n"), 0o644))
	issues = agent.professionalPatternIssues(context.Background())
	assert.Contains(t, strings.Join(issues, "\n"), "CORS")
	assert.Contains(t, strings.Join(issues, "\n"), "/api/")
}

func TestSandbox_LocalModeNonPythonSkips(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/main.go", []byte("package main\n"), 0o644))

	agent := NewSandboxAgent(fs, "/proj", fakeDocker{}, nil)
	result := agent.Execute(context.Background())
	assert.True(t, result.OK)
	assert.False(t, result.ContainerBased)
	assert.Contains(t, result.Message, "skipped")
}

func TestSandbox_LocalSyntaxSweepCatchesErrors(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/bad.py", []byte("def broken(:\n    pass\n"), 0o644))

	agent := NewSandboxAgent(fs, "/proj", fakeDocker{}, nil)
	result := agent.Execute(context.Background())
	assert.False(t, result.OK)
	assert.Contains(t, result.Message, "bad.py")
}

func TestParsePipAudit(t *testing.T) {
	t.Parallel()

	out := `{"dependencies": [{"name": "fastapi", "version": "0.68.0", "vulns": [{"id": "PYSEC-2024-38", "description": "ReDoS in form parsing"}]}, {"name": "httpx", "version": "0.25.2", "vulns": []}]}`
	issues := parsePipAudit("backend", out, nil)
	require.Len(t, issues, 1)
	assert.Equal(t, "backend: fastapi (0.68.0) - PYSEC-2024-38: ReDoS in form parsing", issues[0])
}

func TestParseNpmAudit(t *testing.T) {
	t.Parallel()

	out := `{"vulnerabilities": {"axios": {"severity": "high", "range": "<1.6.0", "via": [{"title": "SSRF"}]}}}`
	issues := parseNpmAudit("frontend", out, nil)
	require.Len(t, issues, 1)
	assert.Equal(t, "frontend: axios (<1.6.0) - high: SSRF", issues[0])
}

func TestLead_AggregateReport(t *testing.T) {
	t.Parallel()

	// Os filesystem: the version-control phase drives a real git repo.
	root := t.TempDir()
	fs := afero.NewOsFs()
	seedFullstack(t, fs, root)

	lead := NewLead(fs, root, fakeDocker{}, nil)
	report := lead.Run(context.Background())

	require.Len(t, report.CheckResults, 5)
	for _, phase := range phaseOrder {
		assert.Contains(t, report.CheckResults, phase)
	}

	// operational_score is k/n with k = passed phases.
	passed := 0
	for _, result := range report.CheckResults {
		if result.Passed {
			passed++
		}
	}
	assert.Equal(t,
		fmt.Sprintf("%d/%d", passed, len(phaseOrder)),
		report.Summary.OperationalScore)
	assert.Equal(t, passed == len(phaseOrder), report.Summary.DeploymentReady)
	assert.Equal(t, report.Summary.DeploymentReady, report.Passed)
	assert.Equal(t, len(report.Issues), report.Summary.TotalIssues)

	// Docker readiness follows the two docker-ish phases.
	assert.Equal(t,
		report.CheckResults["manifest_generation"].Passed && report.CheckResults["docker_configuration"].Passed,
		report.Summary.DockerReady)

	// The fullstack project got its manifests and docker configs.
	assert.Contains(t, report.DockerPipeline.ManifestsGenerated, "backend/requirements.txt")
	assert.Contains(t, report.DockerPipeline.ManifestsGenerated, "frontend/package.json")
	assert.Contains(t, report.DockerPipeline.DockerConfigsCreated, "docker-compose.yml")
	assert.Contains(t, report.DockerPipeline.DockerConfigsCreated, ".dockerignore")
}

func TestTestGenerator_PythonConsolidation(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	source := "def add(a, b):\n    return a + b\n\ndef sub(a, b):\n    return a - b\n"
	require.NoError(t, afero.WriteFile(fs, "/proj/calc.py", []byte(source), 0o644))

	testBody := "import unittest\n\nclass TestCase(unittest.TestCase):\n    def test_it(self):\n        pass\n\nif __name__ == \"__main__\":\n    unittest.main()\n"
	client := llm.NewMockClient(nil, "```python\n"+testBody+"```", testBody)

	g := NewTestGenerator(fs, "/proj", client, nil)
	testRel, err := g.Generate(context.Background(), "calc.py")
	require.NoError(t, err)
	assert.Equal(t, "test_calc.py", testRel)

	data, err := afero.ReadFile(fs, "/proj/test_calc.py")
	require.NoError(t, err)
	content := string(data)
	assert.Equal(t, 1, strings.Count(content, "unittest.main()"),
		"exactly one unittest.main() at the end")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(content), "unittest.main()"))
	assert.Equal(t, 2, client.Calls(), "one test per symbol")
}
