// Package graph builds a cross-file caller/callee/import graph over the
// project and answers ripple-risk queries for the analyzer.
package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	gr "github.com/dominikbraun/graph"
	"go.uber.org/zap"

	"github.com/mvp-joe/code-factory/internal/chunker"
)

// EdgeKind labels a relationship between two symbols.
type EdgeKind string

const (
	EdgeCalls    EdgeKind = "calls"
	EdgeImports  EdgeKind = "imports"
	EdgeInherits EdgeKind = "inherits"
)

// RiskLevel ranks how widely a change to a symbol propagates.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// Ripple is one entry of a ripple-risk query result.
type Ripple struct {
	Symbol    string    `json:"symbol"`
	RiskLevel RiskLevel `json:"risk_level"`
	Reason    string    `json:"reason"`
}

// Node is a symbol in the graph.
type Node struct {
	Symbol string
	Kind   string // function, class, module
	Path   string
}

// SemanticGraph is an immutable symbol graph built once per request.
type SemanticGraph struct {
	g     gr.Graph[string, string]
	nodes map[string]Node
	// preds caches the predecessor map; the graph is read-only after build.
	preds map[string]map[string]gr.Edge[string]
}

// riskHighThreshold and riskMediumThreshold rank symbols by incoming edges.
const (
	riskHighThreshold   = 10
	riskMediumThreshold = 3
)

// Builder constructs a SemanticGraph from on-disk source, using the chunker
// registry to identify symbols.
type Builder struct {
	registry *chunker.Registry
	logger   *zap.Logger
}

// NewBuilder creates a graph builder.
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{registry: chunker.NewRegistry(), logger: logger}
}

// Build walks the given project-relative files under rootDir and assembles
// the symbol graph. Files that fail to read or chunk are skipped.
func (b *Builder) Build(ctx context.Context, rootDir string, files []string) (*SemanticGraph, error) {
	sg := &SemanticGraph{
		g:     gr.New(gr.StringHash, gr.Directed()),
		nodes: make(map[string]Node),
	}

	type symbolChunk struct {
		chunk chunker.Chunk
		path  string
	}
	var symbols []symbolChunk

	// Pass 1: collect symbol definitions.
	for _, rel := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		data, err := os.ReadFile(filepath.Join(rootDir, rel))
		if err != nil {
			b.logger.Debug("graph: skipping unreadable file", zap.String("path", rel), zap.Error(err))
			continue
		}
		chunks, err := b.registry.ChunkFile(rel, string(data))
		if err != nil {
			continue
		}

		moduleSym := moduleSymbol(rel)
		sg.addNode(Node{Symbol: moduleSym, Kind: "module", Path: rel})

		for _, c := range chunks {
			if c.Type != chunker.TypeFunction && c.Type != chunker.TypeClass {
				continue
			}
			kind := "function"
			if c.Type == chunker.TypeClass {
				kind = "class"
			}
			sg.addNode(Node{Symbol: c.Name, Kind: kind, Path: rel})
			symbols = append(symbols, symbolChunk{chunk: c, path: rel})
		}
	}

	// Pass 2: edges. Calls are detected by referencing another known symbol
	// as a call; imports and inheritance by per-language patterns.
	for _, sc := range symbols {
		callRe := regexp.MustCompile(`\b(\w+)\s*\(`)
		for _, m := range callRe.FindAllStringSubmatch(sc.chunk.Content, -1) {
			callee := m[1]
			if callee == sc.chunk.Name {
				continue
			}
			if _, known := sg.nodes[callee]; known {
				sg.addEdge(sc.chunk.Name, callee, EdgeCalls)
			}
		}
		for _, parent := range inheritanceParents(sc.chunk) {
			if _, known := sg.nodes[parent]; known {
				sg.addEdge(sc.chunk.Name, parent, EdgeInherits)
			}
		}
	}
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(rootDir, rel))
		if err != nil {
			continue
		}
		from := moduleSymbol(rel)
		for _, imported := range importTargets(rel, string(data)) {
			if _, known := sg.nodes[imported]; known {
				sg.addEdge(from, imported, EdgeImports)
			}
		}
	}

	preds, err := sg.g.PredecessorMap()
	if err != nil {
		return nil, fmt.Errorf("failed to compute predecessor map: %w", err)
	}
	sg.preds = preds

	b.logger.Debug("semantic graph built",
		zap.Int("nodes", len(sg.nodes)))
	return sg, nil
}

func (sg *SemanticGraph) addNode(n Node) {
	if _, exists := sg.nodes[n.Symbol]; exists {
		return
	}
	sg.nodes[n.Symbol] = n
	_ = sg.g.AddVertex(n.Symbol)
}

func (sg *SemanticGraph) addEdge(from, to string, kind EdgeKind) {
	_ = sg.g.AddEdge(from, to, gr.EdgeAttribute("kind", string(kind)))
}

// Node returns the node for a symbol, if present.
func (sg *SemanticGraph) Node(symbol string) (Node, bool) {
	n, ok := sg.nodes[symbol]
	return n, ok
}

// Callers returns the symbols with an edge into the given symbol, sorted.
func (sg *SemanticGraph) Callers(symbol string) []string {
	in, ok := sg.preds[symbol]
	if !ok {
		return nil
	}
	callers := make([]string, 0, len(in))
	for from := range in {
		callers = append(callers, from)
	}
	sort.Strings(callers)
	return callers
}

// RippleRisk walks incoming edges from the given symbols up to depth and
// ranks each reached symbol by its dependent count.
func (sg *SemanticGraph) RippleRisk(symbols []string, depth int) []Ripple {
	if depth <= 0 {
		depth = 2
	}

	visited := make(map[string]bool)
	frontier := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := sg.nodes[s]; ok && !visited[s] {
			visited[s] = true
			frontier = append(frontier, s)
		}
	}

	var ripples []Ripple
	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []string
		for _, sym := range frontier {
			for _, caller := range sg.Callers(sym) {
				if visited[caller] {
					continue
				}
				visited[caller] = true
				next = append(next, caller)

				inEdges := len(sg.preds[caller])
				ripples = append(ripples, Ripple{
					Symbol:    caller,
					RiskLevel: riskForEdgeCount(inEdges),
					Reason:    fmt.Sprintf("depends on %s; %d dependents of its own", sym, inEdges),
				})
			}
		}
		frontier = next
	}

	sort.Slice(ripples, func(i, j int) bool { return ripples[i].Symbol < ripples[j].Symbol })
	return ripples
}

func riskForEdgeCount(n int) RiskLevel {
	switch {
	case n > riskHighThreshold:
		return RiskHigh
	case n >= riskMediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// moduleSymbol derives the module node name for a file path.
func moduleSymbol(rel string) string {
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var (
	pyImportRe  = regexp.MustCompile(`(?m)^\s*(?:from\s+([\w.]+)\s+import|import\s+([\w.]+))`)
	jsImportRe  = regexp.MustCompile(`(?m)import\s+(?:[\w{},*\s]+\s+from\s+)?['"]([^'"]+)['"]`)
	goImportRe  = regexp.MustCompile(`(?m)^\s*(?:import\s+)?"([^"]+)"`)
	pyClassRe   = regexp.MustCompile(`^class\s+\w+\s*\(([^)]*)\)`)
	jsExtendsRe = regexp.MustCompile(`class\s+\w+\s+extends\s+([\w.]+)`)
)

// importTargets extracts imported module names from file content.
func importTargets(rel, content string) []string {
	var targets []string
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".py":
		for _, m := range pyImportRe.FindAllStringSubmatch(content, -1) {
			name := m[1]
			if name == "" {
				name = m[2]
			}
			parts := strings.Split(name, ".")
			targets = append(targets, parts[len(parts)-1])
		}
	case ".js", ".jsx", ".ts", ".tsx":
		for _, m := range jsImportRe.FindAllStringSubmatch(content, -1) {
			base := filepath.Base(m[1])
			targets = append(targets, strings.TrimSuffix(base, filepath.Ext(base)))
		}
	case ".go":
		for _, m := range goImportRe.FindAllStringSubmatch(content, -1) {
			targets = append(targets, filepath.Base(m[1]))
		}
	}
	return targets
}

// inheritanceParents extracts parent class names from a class chunk.
func inheritanceParents(c chunker.Chunk) []string {
	if c.Type != chunker.TypeClass {
		return nil
	}
	var parents []string
	switch c.Language {
	case "python":
		if m := pyClassRe.FindStringSubmatch(c.Content); m != nil {
			for _, p := range strings.Split(m[1], ",") {
				p = strings.TrimSpace(p)
				if p != "" && p != "object" {
					parents = append(parents, p)
				}
			}
		}
	case "javascript", "jsx", "typescript":
		if m := jsExtendsRe.FindStringSubmatch(c.Content); m != nil {
			parents = append(parents, m[1])
		}
	}
	return parents
}
