package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/spaghetti/internal/compiler"
	"github.com/roach88/spaghetti/internal/ir"
)

// ErrCodeWriteFailed is returned when the compiled IR cannot be written.
const ErrCodeWriteFailed = "E008"

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledGraph is one graph definition in compiled form.
type CompiledGraph struct {
	Name       string `json:"name"`
	SpecHash   string `json:"spec_hash"`
	Processors int    `json:"processors"`
	Links      int    `json:"links"`
	Groups     int    `json:"groups"`
}

// CompilationResult holds the compiled graphs.
type CompilationResult struct {
	Graphs []CompiledGraph `json:"graphs"`
	specs  []*ir.GraphSpec
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <graph.cue|dir>",
		Short: "Compile CUE graphs to canonical IR",
		Long: `Compile CUE graph definitions to canonical IR.

Every field under graph.* is compiled. The definition hash printed for each graph
is the one sessions record; replay refuses a graph whose hash changed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write canonical IR to this file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, loadErrors := compiler.Load(path, compiler.LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseLoadError(loadErrors[0])
		_ = formatter.Error(code, message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}
	if len(loadErrors) > 0 {
		return outputLoadErrors(formatter, "Compilation failed", loadErrors)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)

	result := &CompilationResult{Graphs: make([]CompiledGraph, 0, len(loadResult.Graphs))}
	for _, spec := range loadResult.Graphs {
		formatter.VerboseLog("Compiling graph: %s", spec.Name)
		hash, err := ir.SpecHash(spec)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("hashing graph %s", spec.Name), err)
		}
		result.Graphs = append(result.Graphs, summarize(spec, hash))
		result.specs = append(result.specs, spec)
	}

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d graph(s)\n\n", len(result.Graphs))
	for _, g := range result.Graphs {
		fmt.Fprintf(formatter.Writer, "  %s: %d processor(s), %d link(s), %d group(s)\n",
			g.Name, g.Processors, g.Links, g.Groups)
		fmt.Fprintf(formatter.Writer, "    %s\n", g.SpecHash)
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote canonical IR to %s\n", opts.Output)
	}
	return nil
}

// summarize counts a graph's processors and links, nested groups included.
func summarize(spec *ir.GraphSpec, hash string) CompiledGraph {
	g := CompiledGraph{Name: spec.Name, SpecHash: hash}
	var walk func(s *ir.GraphSpec)
	walk = func(s *ir.GraphSpec) {
		g.Processors += len(s.Processors)
		g.Links += len(s.Links)
		for i := range s.Processors {
			if grp := s.Processors[i].Group; grp != nil {
				g.Groups++
				walk(grp)
			}
		}
	}
	walk(spec)
	return g
}

// outputLoadErrors reports collected load or compile errors and returns the
// command error for them.
func outputLoadErrors(formatter *OutputFormatter, title string, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseLoadError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		_ = formatter.JSON(CLIResponse{Status: "error", Error: &cliErrors[0], Data: cliErrors})
		return NewExitError(ExitCommandError, fmt.Sprintf("%s with %d error(s)", strings.ToLower(title), len(errs)))
	}

	fmt.Fprintf(formatter.Writer, "✗ %s\n\n", title)
	for _, err := range errs {
		code, message := parseLoadError(err)
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("%s with %d error(s)", strings.ToLower(title), len(errs)))
}

// parseLoadError extracts error code and message from an error.
func parseLoadError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compiler.MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	return compiler.ErrCodeGeneric, err.Error()
}

// writeIRToFile writes every compiled graph as one canonical JSON document
// keyed by graph name.
func writeIRToFile(result *CompilationResult, filename string) error {
	doc := make(ir.IRObject, len(result.specs))
	for _, spec := range result.specs {
		doc[spec.Name] = spec.ToIR()
	}
	data, err := ir.MarshalCanonical(doc)
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
