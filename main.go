package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/branchmem/branchmem/internal/config"
	"github.com/branchmem/branchmem/internal/memory"
	"github.com/branchmem/branchmem/internal/server"
	"github.com/branchmem/branchmem/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	var (
		transport string
		port      string
	)

	root := &cobra.Command{
		Use:           "branchmem",
		Short:         "Branch-partitioned knowledge graph memory for AI assistants",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
				log.SetLevel(level)
			}
		},
	}
	root.PersistentFlags().StringVar(&cfg.MemoryPath, "memory-path", cfg.MemoryPath,
		"base directory for the memory store")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel,
		"log level: debug, info, warn, error, fatal")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg, transport, port)
		},
	}
	serve.Flags().StringVar(&transport, "transport", "stdio", "transport mode: stdio or http")
	serve.Flags().StringVar(&port, "port", "8081", "HTTP port (http transport only)")

	export := &cobra.Command{
		Use:   "export [branch]",
		Short: "Export a branch to a pretty JSON file in the backups directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branch := storage.MainBranch
			if len(args) > 0 {
				branch = args[0]
			}
			return runExport(cmd.Context(), cfg, branch)
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <file> [branch]",
		Short: "Import a line-delimited JSON file into a branch",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			branch := storage.MainBranch
			if len(args) > 1 {
				branch = args[1]
			}
			return runImport(cmd.Context(), cfg, args[0], branch)
		},
	}

	// Running with no subcommand serves over stdio.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, export, importCmd)
	return root
}

func runServe(parent context.Context, cfg config.Config, transport, port string) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mem, err := memory.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer mem.Close()

	srv := server.New(mem)

	switch transport {
	case "stdio":
		log.Info("memory server starting", "transport", "stdio", "path", cfg.MemoryPath)
		return srv.Run(ctx, &mcp.StdioTransport{})
	case "http":
		addr := ":" + port
		handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return srv
		}, nil)
		httpSrv := &http.Server{Addr: addr, Handler: handler}
		go func() {
			<-ctx.Done()
			httpSrv.Shutdown(context.Background())
		}()
		log.Info("memory server listening", "addr", addr, "path", cfg.MemoryPath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown transport %q (use stdio or http)", transport)
	}
}

func runExport(ctx context.Context, cfg config.Config, branch string) error {
	mem, err := memory.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer mem.Close()

	graph, path, err := mem.Export(ctx, branch)
	if err != nil {
		return err
	}
	log.Info("exported branch", "branch", branch,
		"entities", len(graph.Entities), "relations", len(graph.Relations), "file", path)
	fmt.Println(path)
	return nil
}

func runImport(ctx context.Context, cfg config.Config, file, branch string) error {
	mem, err := memory.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer mem.Close()

	result, err := mem.ImportFile(ctx, branch, file)
	if err != nil {
		return err
	}
	log.Info("imported file", "file", file, "branch", branch,
		"entities", result.EntitiesCreated, "relations", result.RelationsCreated,
		"failed", len(result.EntitiesFailed), "skipped_lines", result.LinesSkipped)
	return nil
}
