package cli

import (
	"fmt"
	"os"

	"github.com/automerge/automerge-go"
	"github.com/spf13/cobra"

	"github.com/astromechza/wishboard/pkg/relay"
	"github.com/astromechza/wishboard/pkg/viz"
	"github.com/astromechza/wishboard/pkg/wish"
)

type DumpOptions struct {
	*RootOptions
	Graph bool
	Svg   string
}

// dumpResult is the structured form of dump's output.
type dumpResult struct {
	Heads   []string     `json:"heads" yaml:"heads"`
	Theme   string       `json:"theme" yaml:"theme"`
	Wishes  []wish.Wish  `json:"wishes" yaml:"wishes"`
	Changes []dumpChange `json:"changes" yaml:"changes"`
}

type dumpChange struct {
	Hash    string `json:"hash" yaml:"hash"`
	Actor   string `json:"actor" yaml:"actor"`
	Seq     uint64 `json:"seq" yaml:"seq"`
	Message string `json:"message" yaml:"message"`
}

func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Inspect a saved board document",
		Long: `Inspect a board document saved by the relay on shutdown.

Examples:
  wishctl dump /tmp/wishboard-default.automerge
  wishctl dump /tmp/wishboard-default.automerge --graph | dot -Tpng > history.png
  wishctl dump /tmp/wishboard-default.automerge --svg history.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd, args[0])
		},
	}
	cmd.Flags().BoolVar(&opts.Graph, "graph", false, "print the change history in dot syntax")
	cmd.Flags().StringVar(&opts.Svg, "svg", "", "render the change history to this svg file")
	return cmd
}

func runDump(opts *DumpOptions, cmd *cobra.Command, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	doc, err := automerge.Load(raw)
	if err != nil {
		return fmt.Errorf("failed to load doc: %w", err)
	}
	out := cmd.OutOrStdout()

	if opts.Svg != "" {
		if err := viz.RenderDocToSvg(doc, relay.Describe, opts.Svg); err != nil {
			return err
		}
		fmt.Fprintf(out, "rendered %s\n", opts.Svg)
		return nil
	}
	if opts.Graph {
		return viz.WriteDot(doc, relay.Describe, out)
	}

	wishes, theme, err := relay.ReadDoc(doc)
	if err != nil {
		return err
	}
	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}
	res := dumpResult{Theme: theme, Wishes: wishes}
	if res.Wishes == nil {
		res.Wishes = []wish.Wish{}
	}
	for _, h := range doc.Heads() {
		res.Heads = append(res.Heads, h.String())
	}
	for _, change := range changes {
		res.Changes = append(res.Changes, dumpChange{
			Hash:    change.Hash().String(),
			Actor:   change.ActorID(),
			Seq:     change.ActorSeq(),
			Message: change.Message(),
		})
	}

	if opts.Format != "text" {
		return writeValue(out, opts.Format, res)
	}
	fmt.Fprintf(out, "heads: %v\ntheme: %s\n\n", res.Heads, res.Theme)
	if err := writeWishes(out, "text", res.Wishes); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d changes:\n", len(res.Changes))
	for i, c := range res.Changes {
		fmt.Fprintf(out, "%4d %s %s@%d %s\n", i, c.Hash[:8], c.Actor, c.Seq, c.Message)
	}
	return nil
}
