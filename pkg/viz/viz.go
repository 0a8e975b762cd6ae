// Package viz draws the change history of a board document as a graph.
package viz

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/automerge/automerge-go"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// Labeler describes the document as it was at one change.
type Labeler func(doc *automerge.Doc) (string, error)

type node struct {
	hash  string
	label string
	deps  []string
}

func history(doc *automerge.Doc, label Labeler) ([]node, error) {
	changes, err := doc.Changes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate changes: %w", err)
	}
	out := make([]node, 0, len(changes))
	for _, change := range changes {
		docAt, err := doc.Fork(change.Hash())
		if err != nil {
			return nil, fmt.Errorf("failed to checkout %s: %w", change.Hash(), err)
		}
		summary, err := label(docAt)
		if err != nil {
			return nil, fmt.Errorf("failed to label %s: %w", change.Hash(), err)
		}
		n := node{
			hash:  change.Hash().String(),
			label: fmt.Sprintf("%s %s@%d %s", change.Hash().String()[:8], change.ActorID(), change.ActorSeq(), summary),
		}
		if msg := change.Message(); msg != "" {
			n.label += "\n" + msg
		}
		for _, dep := range change.Dependencies() {
			n.deps = append(n.deps, dep.String())
		}
		out = append(out, n)
	}
	return out, nil
}

// WriteDot writes the history in graphviz dot syntax.
func WriteDot(doc *automerge.Doc, label Labeler, w io.Writer) error {
	nodes, err := history(doc, label)
	if err != nil {
		return err
	}
	var buff bytes.Buffer
	buff.WriteString("digraph \"log\" {\n")
	for _, n := range nodes {
		fmt.Fprintf(&buff, "    %q [label=%q]\n", n.hash, n.label)
		for _, dep := range n.deps {
			fmt.Fprintf(&buff, "    %q -> %q\n", dep, n.hash)
		}
	}
	buff.WriteString("}\n")
	_, err = w.Write(buff.Bytes())
	return err
}

func RenderDocToSvg(doc *automerge.Doc, label Labeler, outputPath string) error {
	nodes, err := history(doc, label)
	if err != nil {
		return err
	}

	g := graphviz.New()
	defer g.Close()
	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer graph.Close()

	nodeMap := make(map[string]*cgraph.Node, len(nodes))
	edgeCounter := 0
	for _, n := range nodes {
		gn, err := graph.CreateNode(n.hash)
		if err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		gn.SetLabel(n.label)
		nodeMap[n.hash] = gn
		for _, dep := range n.deps {
			from, ok := nodeMap[dep]
			if !ok {
				continue
			}
			edgeCounter++
			if _, err := graph.CreateEdge(strconv.Itoa(edgeCounter), from, gn); err != nil {
				return fmt.Errorf("failed to create edge: %w", err)
			}
		}
	}

	var buff bytes.Buffer
	if err := g.Render(graph, graphviz.SVG, &buff); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	if err := os.WriteFile(outputPath, buff.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}

// RenderToTemp renders into a new file under the temp dir and returns its path.
func RenderToTemp(doc *automerge.Doc, label Labeler) (string, error) {
	f, err := os.CreateTemp("", "wishboard-*.svg")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	_ = f.Close()
	if err := RenderDocToSvg(doc, label, f.Name()); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return filepath.Clean(f.Name()), nil
}
