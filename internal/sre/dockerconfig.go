package sre

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DockerConfigAgent emits Dockerfiles, compose configuration, nginx config,
// and .dockerignore from the architectural context.
type DockerConfigAgent struct {
	fs     afero.Fs
	root   string
	logger *zap.Logger
	// now stamps container names; injectable for deterministic tests.
	now func() time.Time
}

// NewDockerConfigAgent creates the agent.
func NewDockerConfigAgent(fs afero.Fs, root string, logger *zap.Logger) *DockerConfigAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DockerConfigAgent{fs: fs, root: root, logger: logger, now: time.Now}
}

// Generate writes the container configuration for the architecture.
// Existing files are left untouched.
func (a *DockerConfigAgent) Generate(arch ArchContext) PhaseResult {
	result := PhaseResult{Passed: true}

	files := map[string]string{}
	if arch.HasBackend() {
		files["backend/Dockerfile"] = backendDockerfile
	}
	if arch.HasFrontend() {
		files["frontend/Dockerfile"] = frontendDockerfile
		files["frontend/nginx.conf"] = nginxConfig
	}
	if arch.HasBackend() || arch.HasFrontend() {
		files["docker-compose.yml"] = a.composeFile(arch)
		files[".dockerignore"] = dockerignore
	}

	for rel, content := range files {
		path := filepath.Join(a.root, rel)
		if exists, _ := afero.Exists(a.fs, path); exists {
			continue
		}
		if err := a.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			result.Passed = false
			result.Issues = append(result.Issues, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		if err := afero.WriteFile(a.fs, path, []byte(content), 0o644); err != nil {
			result.Passed = false
			result.Issues = append(result.Issues, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		result.FilesCreated = append(result.FilesCreated, rel)
	}

	a.logger.Info("docker configuration generated",
		zap.Strings("files", result.FilesCreated))
	return result
}

// composeFile renders docker-compose.yml. Container names embed a timestamp
// so repeated runs never collide.
func (a *DockerConfigAgent) composeFile(arch ArchContext) string {
	stamp := a.now().Unix()
	out := "services:\n"

	if arch.HasBackend() {
		out += fmt.Sprintf(`  backend:
    build:
      context: ./backend
      dockerfile: Dockerfile
    container_name: factory-backend-%d
    ports:
      - "8000:8000"
    environment:
      - ENVIRONMENT=development
      - CORS_ORIGINS=http://localhost:3000
`, stamp)
		if arch.SystemType == "fullstack_web_app" {
			out += `      - DATABASE_URL=postgresql://app:app@db:5432/appdb
    depends_on:
      db:
        condition: service_healthy
`
		}
		out += `    networks:
      - app-network
    restart: unless-stopped
    healthcheck:
      test: ["CMD", "curl", "--fail", "http://localhost:8000/health"]
      interval: 30s
      timeout: 10s
      retries: 3
      start_period: 40s
`
	}

	if arch.HasFrontend() {
		out += fmt.Sprintf(`  frontend:
    build:
      context: ./frontend
      dockerfile: Dockerfile
    container_name: factory-frontend-%d
    ports:
      - "3000:80"
`, stamp)
		if arch.HasBackend() {
			out += `    depends_on:
      backend:
        condition: service_healthy
`
		}
		out += `    networks:
      - app-network
    restart: unless-stopped
`
	}

	if arch.SystemType == "fullstack_web_app" {
		out += fmt.Sprintf(`  db:
    image: postgres:15-alpine
    container_name: factory-db-%d
    environment:
      - POSTGRES_USER=app
      - POSTGRES_PASSWORD=app
      - POSTGRES_DB=appdb
    volumes:
      - postgres_data:/var/lib/postgresql/data
    networks:
      - app-network
    restart: unless-stopped
    healthcheck:
      test: ["CMD", "pg_isready", "-U", "app", "-d", "appdb"]
      interval: 10s
      timeout: 5s
      retries: 5
      start_period: 30s
`, stamp)
	}

	out += `
networks:
  app-network:
    driver: bridge
`
	if arch.SystemType == "fullstack_web_app" {
		out += `
volumes:
  postgres_data:
    driver: local
`
	}
	return out
}

const backendDockerfile = `# Backend service image
FROM python:3.11-slim AS base

WORKDIR /app

RUN apt-get update && apt-get install -y --no-install-recommends \
    gcc \
    curl \
    && apt-get clean \
    && rm -rf /var/lib/apt/lists/*

RUN useradd --create-home --shell /bin/bash app

COPY requirements.txt .
RUN pip install --no-cache-dir --upgrade pip \
    && pip install --no-cache-dir -r requirements.txt \
    && pip install --no-cache-dir pip-audit

RUN chown -R app:app /app
USER app

COPY --chown=app:app . .

HEALTHCHECK --interval=60s --timeout=15s --start-period=45s --retries=3 \
    CMD curl -f http://localhost:8000/health || exit 1

EXPOSE 8000

CMD ["uvicorn", "main:app", "--host", "0.0.0.0", "--port", "8000", "--workers", "1"]
`

const frontendDockerfile = `# Frontend build + serve image
FROM node:18-alpine AS builder

WORKDIR /app

COPY package*.json ./
RUN npm install --silent && npm cache clean --force

COPY . .
RUN npm run build

FROM nginx:alpine

RUN addgroup -g 1001 -S nodejs \
    && adduser -S appuser -u 1001

COPY --from=builder --chown=appuser:nodejs /app/dist /usr/share/nginx/html
COPY nginx.conf /etc/nginx/conf.d/default.conf

EXPOSE 80

HEALTHCHECK --interval=60s --timeout=10s --start-period=30s --retries=3 \
    CMD wget --no-verbose --tries=1 --spider http://localhost/health || exit 1

CMD ["nginx", "-g", "daemon off;"]
`

const nginxConfig = `server {
    listen 80;
    server_name localhost;

    root /usr/share/nginx/html;
    index index.html;

    location /health {
        access_log off;
        return 200 "ok";
        add_header Content-Type text/plain;
    }

    location /api/ {
        proxy_pass http://backend:8000/;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
    }

    location / {
        try_files $uri $uri/ /index.html;
    }
}
`

const dockerignore = `.git
.factory
node_modules
__pycache__
*.pyc
.venv
venv
dist
build
.env
*.log
.pytest_cache
coverage
`
