// Package main provides the skuld CLI entry point.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/orneryd/skuld/pkg/config"
	"github.com/orneryd/skuld/pkg/formula"
	"github.com/orneryd/skuld/pkg/graph"
	"github.com/orneryd/skuld/pkg/integral"
	"github.com/orneryd/skuld/pkg/integrate"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "skuld",
		Short: "Skuld - lazily evaluated mathematical expression graphs",
		Long: `Skuld evaluates mathematical expression graphs with dirty-flag
caching, numeric and decomposed integrals, projections and error
propagation.

Features:
  • Expression formulas compiled into cached graph nodes
  • Integrals with named, parameterized and multi-segment ranges
  • Persistent integral result caching
  • Batch evaluation over value arrays`,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (YAML)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Skuld v%s (%s)\n", version, commit)
		},
	})

	evalCmd := &cobra.Command{
		Use:   "eval [expression]",
		Short: "Evaluate an expression",
		Long:  "Evaluate an expression against variables given as name=value[:min:max]",
		Args:  cobra.ExactArgs(1),
		RunE:  runEval,
	}
	evalCmd.Flags().StringSlice("var", nil, "Variable definition name=value[:min:max] (repeatable)")
	rootCmd.AddCommand(evalCmd)

	integrateCmd := &cobra.Command{
		Use:   "integrate [expression]",
		Short: "Integrate an expression over one or more variables",
		Args:  cobra.ExactArgs(1),
		RunE:  runIntegrate,
	}
	integrateCmd.Flags().StringSlice("var", nil, "Variable definition name=value[:min:max] (repeatable)")
	integrateCmd.Flags().StringSlice("over", nil, "Variable to integrate over (repeatable)")
	integrateCmd.Flags().String("range", "", "Named range, comma-separated for multi-range")
	rootCmd.AddCommand(integrateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger before any
// command runs.
func setup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}

	logger, err = buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	integrate.SetDefault(cfg.Integrator)
	graph.SetConsistencyCheck(cfg.Eval.ConsistencyCheck)
	graph.SetHideOffset(cfg.Eval.HideOffset)
	graph.SetLogger(logger)
	graph.SetEvalErrorLoggingMode(errorMode(cfg.Eval.ErrorMode))
	return nil
}

func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if lc.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func errorMode(mode string) graph.ErrorLoggingMode {
	switch mode {
	case "collect":
		return graph.CollectErrors
	case "count":
		return graph.CountErrors
	case "ignore":
		return graph.Ignore
	default:
		return graph.PrintErrors
	}
}

// parseVars builds graph variables from name=value[:min:max] definitions.
func parseVars(defs []string) (*graph.Set, error) {
	vars := graph.NewSet()
	for _, def := range defs {
		name, rest, ok := strings.Cut(def, "=")
		if !ok {
			return nil, fmt.Errorf("invalid variable %q, want name=value[:min:max]", def)
		}
		parts := strings.Split(rest, ":")
		val, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value in %q: %w", def, err)
		}
		min, max := val-1, val+1
		if len(parts) == 3 {
			if min, err = strconv.ParseFloat(parts[1], 64); err != nil {
				return nil, fmt.Errorf("invalid minimum in %q: %w", def, err)
			}
			if max, err = strconv.ParseFloat(parts[2], 64); err != nil {
				return nil, fmt.Errorf("invalid maximum in %q: %w", def, err)
			}
		} else if len(parts) != 1 {
			return nil, fmt.Errorf("invalid variable %q, want name=value[:min:max]", def)
		}
		vars.Add(graph.NewVar(name, val, min, max))
	}
	return vars, nil
}

func runEval(cmd *cobra.Command, args []string) error {
	defs, _ := cmd.Flags().GetStringSlice("var")
	vars, err := parseVars(defs)
	if err != nil {
		return err
	}

	f, err := formula.Parse("expr", args[0], vars)
	if err != nil {
		return err
	}

	logger.Debug("evaluating expression",
		zap.String("expression", args[0]),
		zap.Strings("variables", vars.Names()))
	fmt.Printf("%g\n", f.Core().Value(nil))
	return nil
}

func runIntegrate(cmd *cobra.Command, args []string) error {
	defs, _ := cmd.Flags().GetStringSlice("var")
	vars, err := parseVars(defs)
	if err != nil {
		return err
	}

	f, err := formula.Parse("expr", args[0], vars)
	if err != nil {
		return err
	}

	overNames, _ := cmd.Flags().GetStringSlice("over")
	if len(overNames) == 0 {
		return fmt.Errorf("integrate requires at least one --over variable")
	}
	over := graph.NewSet()
	for _, name := range overNames {
		v := vars.Find(name)
		if v == nil {
			return fmt.Errorf("unknown integration variable %q", name)
		}
		over.Add(v)
	}

	rangeName, _ := cmd.Flags().GetString("range")
	opts := []integral.Option{integral.WithConfig(cfg.Integrator)}
	if rangeName != "" {
		opts = append(opts, integral.WithRange(rangeName))
	}

	ig, err := integral.Create(f, over, opts...)
	if err != nil {
		return err
	}

	logger.Debug("integrating expression",
		zap.String("expression", args[0]),
		zap.Strings("over", over.Names()),
		zap.String("range", rangeName))
	fmt.Printf("%g\n", ig.Core().Value(nil))
	return nil
}
