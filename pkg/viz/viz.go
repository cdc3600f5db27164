// Package viz draws the change history of a board document: one node per
// change, labelled with the board generation it produced.
package viz

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/automerge/automerge-go"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// Step is one change in a board's history.
type Step struct {
	Hash         string
	Actor        string
	Seq          uint64
	Message      string
	Generation   string
	Cells        int
	Dependencies []string
}

// History lists the changes of doc in causal order with the board state
// after each one.
func History(doc *automerge.Doc) ([]Step, error) {
	changes, err := doc.Changes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate changes: %w", err)
	}
	steps := make([]Step, 0, len(changes))
	for _, change := range changes {
		docAt, err := doc.Fork(change.Hash())
		if err != nil {
			return nil, fmt.Errorf("failed to checkout %s: %w", change.Hash(), err)
		}
		generation, _ := automerge.As[string](docAt.Path("generation").Get())
		cells, _ := automerge.As[[]string](docAt.Path("cells").Get())

		step := Step{
			Hash:       change.Hash().String(),
			Actor:      change.ActorID(),
			Seq:        change.ActorSeq(),
			Message:    change.Message(),
			Generation: generation,
			Cells:      len(cells),
		}
		for _, hash := range change.Dependencies() {
			step.Dependencies = append(step.Dependencies, hash.String())
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (s Step) label() string {
	return fmt.Sprintf("%s %s@%d gen=%s cells=%d", s.Hash[:8], s.Actor, s.Seq, s.Generation, s.Cells)
}

// WriteDot writes the history as a graphviz digraph.
func WriteDot(w io.Writer, steps []Step) error {
	return render(steps, graphviz.XDOT, w)
}

// RenderDocToSvg renders the history of doc to an svg file at outputPath.
func RenderDocToSvg(doc *automerge.Doc, outputPath string) error {
	steps, err := History(doc)
	if err != nil {
		return err
	}
	var buff bytes.Buffer
	if err := render(steps, graphviz.SVG, &buff); err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, buff.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}

func render(steps []Step, format graphviz.Format, w io.Writer) error {
	g := graphviz.New()
	graph, err := g.Graph(graphviz.Name("board"))
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer func() {
		_ = graph.Close()
		_ = g.Close()
	}()

	nodeMap := make(map[string]*cgraph.Node)
	var edgeCounter uint64
	for _, step := range steps {
		n, err := graph.CreateNode(step.Hash)
		if err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		n.SetLabel(step.label())
		nodeMap[step.Hash] = n

		for _, dep := range step.Dependencies {
			if _, err := graph.CreateEdge(strconv.Itoa(int(atomic.AddUint64(&edgeCounter, 1))), nodeMap[dep], n); err != nil {
				return fmt.Errorf("failed to create edge: %w", err)
			}
		}
	}

	if err := g.Render(graph, format, w); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	return nil
}
