package sre

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// AnalyzeArchitecture infers the architectural context from the project
// tree: any python source marks a backend module; any .jsx/.tsx file, or a
// .js file mentioning React, marks a frontend module. Directory names other
// than the skipped ones are not consulted.
func AnalyzeArchitecture(fs afero.Fs, root string) ArchContext {
	arch := ArchContext{SystemType: "unknown", Modules: map[string]Module{}}

	var hasPython, hasFrontend bool
	afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			if info != nil && info.IsDir() && skipArchDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".py":
			hasPython = true
		case ".jsx", ".tsx":
			hasFrontend = true
		case ".js":
			if data, readErr := afero.ReadFile(fs, path); readErr == nil {
				content := string(data)
				if strings.Contains(content, "react") || strings.Contains(content, "React") {
					hasFrontend = true
				}
			}
		}
		return nil
	})

	if hasPython {
		arch.Modules["backend"] = Module{Languages: []string{"python"}}
	}
	if hasFrontend {
		arch.Modules["frontend"] = Module{Languages: []string{"javascript"}}
	}

	switch {
	case hasPython && hasFrontend:
		arch.SystemType = "fullstack_web_app"
	case hasPython:
		arch.SystemType = "backend_service"
	case hasFrontend:
		arch.SystemType = "frontend_app"
	}
	return arch
}

var skipArchDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true,
	".venv": true, "venv": true, "dist": true, "build": true,
	".factory": true,
}
