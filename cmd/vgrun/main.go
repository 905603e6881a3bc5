package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"vgrun/internal/config"
	"vgrun/internal/errors"
	"vgrun/internal/runner"
	"vgrun/internal/timing"
	"vgrun/internal/ui"
	"vgrun/pkg/pipeline"
	"vgrun/pkg/runtime"
)

// version is set at build time via ldflags
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "vgrun",
	Short:   "vgrun - run tool pipelines natively or in containers",
	Version: version,
	Long: `vgrun executes pipelines of bioinformatics tools either directly as host
processes or inside containers (Docker or Singularity), resolving each tool
to its container image through a tool-map configuration.`,
}

var runCmd = &cobra.Command{
	Use:   "run [flags] -- cmd [args...] [ \\| cmd [args...] ...]",
	Short: "Run a command pipeline",
	Long: `Run executes a pipeline of commands, stages separated by a (quoted or
escaped) "|". The lead tool decides whether the whole pipeline runs natively
or inside a single container.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			errors.HandleError(err)
			os.Exit(1)
		}

		pl, err := parsePipeline(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		workDir, _ := cmd.Flags().GetString("workdir")
		outPath, _ := cmd.Flags().GetString("output")
		capture, _ := cmd.Flags().GetBool("capture")
		toolName, _ := cmd.Flags().GetString("tool")
		realtime, _ := cmd.Flags().GetBool("realtime-stderr")

		req := &runtime.Request{
			Pipeline:    pl,
			WorkDir:     workDir,
			CheckOutput: capture,
			ToolName:    toolName,
		}

		var outFile *os.File
		if outPath != "" {
			outFile, err = os.Create(outPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			defer outFile.Close()
			req.OutFile = outFile
		}

		console := ui.NewConsole()
		console.PrintCommand(pl.String())

		r := runner.New(cfg.ToolMap(), runner.WithRealtimeStderr(realtime))

		tracker := timing.New("run")
		result, err := r.Call(cmd.Context(), req)
		tracker.Stop()
		if err != nil {
			errors.HandleError(err)
			os.Exit(1)
		}

		slog.Info("Pipeline finished", "seconds", tracker.Total("run").Seconds())

		if capture {
			if _, err := os.Stdout.Write(result.Output); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
		}
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the default tool-map configuration",
	Long: `Config writes the built-in tool-map configuration as YAML, for editing and
passing back via --config.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.WriteDefault(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	},
}

// loadConfig reads the --config file when given, otherwise starts from the
// defaults; --container overrides the engine selector either way.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	engine, _ := cmd.Flags().GetString("container")

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if engine != "" {
		cfg.Container = engine
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// parsePipeline splits the positional arguments into stages on "|".
func parsePipeline(args []string) (pipeline.Pipeline, error) {
	var pl pipeline.Pipeline
	var stage []string
	for _, arg := range args {
		if arg == "|" {
			pl = append(pl, pipeline.New(stage...))
			stage = nil
			continue
		}
		stage = append(stage, arg)
	}
	pl = append(pl, pipeline.New(stage...))
	if err := pl.Validate(); err != nil {
		return nil, err
	}
	return pl, nil
}

func init() {
	runCmd.Flags().String("config", "", "Path to the tool-map YAML file")
	runCmd.Flags().String("container", "", "Execution engine override: Docker, Singularity or None")
	runCmd.Flags().StringP("workdir", "w", ".", "Working directory for the pipeline")
	runCmd.Flags().StringP("output", "o", "", "Write the final stage's stdout to this file")
	runCmd.Flags().Bool("capture", false, "Capture the final stage's stdout and print it")
	runCmd.Flags().String("tool", "", "Override the tool name used for image lookup")
	runCmd.Flags().Bool("realtime-stderr", false, "Mirror stderr to the log while the pipeline runs")
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
