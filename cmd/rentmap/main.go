package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-rentmap/internal/logging"
	"github.com/joeblew999/plat-rentmap/internal/server"
)

const version = "0.1.0"

// Options defines all CLI flags and env vars for the rent map server.
// Flags: --host, --port, --data-dir, --web-dir, --config, --log-level, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_CONFIG, ...
type Options struct {
	Host       string `doc:"Host to bind to" default:"0.0.0.0"`
	Port       int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir    string `doc:"Directory for styles, sources and the rent database" default:".data"`
	WebDir     string `doc:"Path to web/ directory" default:"web"`
	Config     string `doc:"YAML map configuration file" default:"rentmap.yaml"`
	LogLevel   string `doc:"Log level: trace, debug, info, warn, error" default:"info"`
	LogConsole bool   `doc:"Human-readable console logs"`
	Headless   bool   `doc:"Drive an in-memory map instead of a browser"`
	Style      string `doc:"Style document name in <data-dir>/styles for headless mode" default:"glasgow"`
	NoDB       bool   `doc:"Run without the DuckDB rent database"`
}

func newLogger(opts *Options) zerolog.Logger {
	return logging.Build(logging.Config{
		Level:     opts.LogLevel,
		Console:   opts.LogConsole,
		Component: "rentmap",
	}, os.Stderr)
}

func newServer(opts *Options, log zerolog.Logger) (*server.Server, error) {
	return server.New(server.Config{
		Host:      opts.Host,
		Port:      fmt.Sprintf("%d", opts.Port),
		DataDir:   opts.DataDir,
		WebDir:    opts.WebDir,
		MapConfig: opts.Config,
		Headless:  opts.Headless,
		Style:     opts.Style,
		Version:   version,
		NoDB:      opts.NoDB,
		Logger:    log,
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var srv *server.Server

		hooks.OnStart(func() {
			log := newLogger(opts)
			var err error
			if srv, err = newServer(opts, log); err != nil {
				log.Fatal().Err(err).Msg("server setup failed")
			}

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			log.Info().
				Str("addr", addr).
				Str("data", opts.DataDir).
				Bool("headless", opts.Headless).
				Str("viewer", baseURL+"/viewer").
				Str("docs", baseURL+"/docs").
				Str("metrics", baseURL+"/metrics").
				Msg("plat-rentmap server starting")

			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatal().Err(err).Msg("server error")
			}
		})
		hooks.OnStop(func() {
			if srv != nil {
				srv.Close()
			}
		})
	})

	cli.Root().Use = "rentmap"
	cli.Root().Short = "Interactive ward rent choropleth map server"
	cli.Root().Version = version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.Headless, opts.NoDB = false, true
			srv, err := newServer(opts, zerolog.Nop())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error building server: %v\n", err)
				os.Exit(1)
			}
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = spec.YAML()
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// resolve subcommand: run layer resolution against a style document
	resolveCmd := &cobra.Command{
		Use:   "resolve <style.json>",
		Short: "Resolve the ward and stops layers of a style document",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			report, err := resolveStyle(cmd.Context(), args[0], opts, newLogger(opts))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			useYAML, _ := cmd.Flags().GetBool("yaml")
			if err := emit(report, useYAML); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !report.OK() {
				os.Exit(2)
			}
		}),
	}
	resolveCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(resolveCmd)

	cli.Run()
}

func emit(v any, useYAML bool) error {
	var output []byte
	var err error
	if useYAML {
		output, err = yaml.Marshal(v)
	} else {
		output, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
