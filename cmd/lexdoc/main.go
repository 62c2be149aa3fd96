// Command lexdoc serves and runs the legal-document section pipeline:
// upload a .docx, get back its cleaned jurisdiction, thresholds, procedures
// and standard-of-review sections.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/lexdoc/api"
	"github.com/hazyhaar/lexdoc/audit"
	"github.com/hazyhaar/lexdoc/docpipe"
	"github.com/hazyhaar/lexdoc/kit"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lexdoc",
		Short: "Legal document sanitizer and sectioner",
		Long: `lexdoc converts investment-screening documents (.docx, .odt, .html)
into a restricted HTML vocabulary and splits them into four sections:
jurisdiction, thresholds, procedures and standard of review.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("base-dir", "", "Confine document paths read by clean, split and mcp to this directory")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(cleanCmd())
	rootCmd.AddCommand(splitCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(hashPasswordCmd())
	rootCmd.AddCommand(mcpCmd())
	return rootCmd
}

// loadConfig reads --config when given, then applies the environment. A
// missing --config means defaults.
func loadConfig(cmd *cobra.Command) (*api.Config, error) {
	cfg := api.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = api.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// setupLogger installs a JSON slog logger on w as the default.
func setupLogger(w io.Writer, lvl slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// newMCPServer registers the docpipe tools, logged and journaled.
func newMCPServer(pipe *docpipe.Pipeline, logger *slog.Logger, al *audit.Logger) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "lexdoc",
		Version: version,
	}, nil)
	pipe.RegisterMCP(srv, func(tool string) kit.Middleware {
		mw := kit.Logging(logger, tool)
		if op := toolOperation(tool); op != "" {
			return kit.Chain(mw, audit.Middleware(al, op))
		}
		return mw
	})
	return srv
}

// toolOperation maps an MCP tool to its audit operation; "" means the tool
// is not journaled.
func toolOperation(tool string) string {
	switch tool {
	case "docpipe_clean":
		return audit.OpClean
	case "docpipe_split":
		return audit.OpSplit
	}
	return ""
}
