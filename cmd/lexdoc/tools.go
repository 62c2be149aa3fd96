package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/lexdoc/auth"
	"github.com/hazyhaar/lexdoc/docpipe"
)

// cliPipeline builds a pipeline for the one-shot commands, logging to stderr
// so stdout only carries the result.
func cliPipeline(cmd *cobra.Command) (*docpipe.Pipeline, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := setupLogger(os.Stderr, cfg.Level())
	pc := cfg.Pipeline(logger)
	pc.BaseDir, _ = cmd.Flags().GetString("base-dir")
	return docpipe.New(pc), nil
}

func cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean FILE",
		Short: "Convert and sanitize a document, print the HTML fragment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := cliPipeline(cmd)
			if err != nil {
				return err
			}
			format, data, err := pipe.ReadFile(args[0])
			if err != nil {
				return err
			}
			out, err := pipe.Clean(cmd.Context(), format, data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func splitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split FILE",
		Short: "Convert, sanitize and split a document, print the sections as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asMarkdown, _ := cmd.Flags().GetBool("markdown")
			pipe, err := cliPipeline(cmd)
			if err != nil {
				return err
			}
			format, data, err := pipe.ReadFile(args[0])
			if err != nil {
				return err
			}
			res, err := pipe.Split(cmd.Context(), format, data)
			if err != nil {
				return err
			}
			sections := res.Sections
			if asMarkdown {
				if sections, err = pipe.Markdown(sections); err != nil {
					return err
				}
			}
			if len(res.Missing) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: section boundaries not found: %v\n", res.Missing)
			}
			return printJSON(cmd.OutOrStdout(), sections)
		},
	}
	cmd.Flags().Bool("markdown", false, "Convert each section to Markdown")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token USER PASS",
		Short: "Print the login token for a credential pair (secret from AUTH_SECRET)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("AUTH_SECRET")
			if secret == "" {
				secret = auth.DefaultSecret
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: AUTH_SECRET not set, using the default secret")
			}
			fmt.Fprintln(cmd.OutOrStdout(), auth.Token(args[0], args[1], secret))
			return nil
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASS",
		Short: "Print a bcrypt hash for auth.password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return errors.New("password must not be empty")
			}
			h, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the document tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := cliPipeline(cmd)
			if err != nil {
				return err
			}
			srv := newMCPServer(pipe, slog.Default(), nil)
			return srv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}
