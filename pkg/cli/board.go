package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/astromechza/wishboard/pkg/capture"
)

func NewUploadCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <child name> <photo>",
		Short: "Submit a wish",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("failed to open photo: %w", err)
			}
			defer f.Close()
			w, err := c.Submit(cmd.Context(), capture.Submission{
				ChildName: args[0],
				Photo:     f,
				Filename:  filepath.Base(args[1]),
			})
			if err != nil {
				return err
			}
			return writeWish(cmd.OutOrStdout(), opts.Format, w)
		},
	}
}

func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the wishes on the board in arrival order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			wishes, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			return writeWishes(cmd.OutOrStdout(), opts.Format, wishes)
		},
	}
}

func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one wish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func NewClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every wish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			n, err := c.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d wishes\n", n)
			return nil
		},
	}
}

func NewSpotlightCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "spotlight <id>",
		Short: "Focus every display on one wish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			w, err := c.Spotlight(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeWish(cmd.OutOrStdout(), opts.Format, w)
		},
	}
}

func NewSpotlightOffCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "spotlight-off",
		Short: "Clear the spotlight",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			return c.SpotlightOff(cmd.Context())
		},
	}
}

func NewThemeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "theme [name]",
		Short: "Show or change the board theme",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				if err := c.SetTheme(cmd.Context(), args[0]); err != nil {
					return err
				}
			}
			theme, err := c.Theme(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme)
			return nil
		},
	}
}
