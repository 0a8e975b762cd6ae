package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/astromechza/wishboard/pkg/wish"
)

// writeValue renders v as json or yaml. Text output is up to the caller.
func writeValue(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(raw))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func writeWishes(w io.Writer, format string, wishes []wish.Wish) error {
	if wishes == nil {
		wishes = []wish.Wish{}
	}
	if format != "text" {
		return writeValue(w, format, wishes)
	}
	if len(wishes) == 0 {
		_, err := fmt.Fprintln(w, "no wishes")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPHOTO")
	for _, x := range wishes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", x.ID, x.ChildName, x.PhotoURL)
	}
	return tw.Flush()
}

func writeWish(w io.Writer, format string, x wish.Wish) error {
	if format != "text" {
		return writeValue(w, format, x)
	}
	_, err := fmt.Fprintf(w, "%s %s %s\n", x.ID, x.ChildName, x.PhotoURL)
	return err
}
