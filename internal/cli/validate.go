package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/spaghetti/internal/compiler"
	"github.com/roach88/spaghetti/internal/engine"
	"github.com/roach88/spaghetti/internal/ir"
)

// ValidationIssue is one validation error, tagged with its graph.
type ValidationIssue struct {
	Graph   string `json:"graph,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// GraphWarning is a cycle found in a graph. Cycles do not fail validation.
type GraphWarning struct {
	Graph string `json:"graph"`
	compiler.CycleWarning
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Graphs   []string          `json:"graphs"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []GraphWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graph.cue|dir>",
		Short: "Validate graphs without running them",
		Long: `Validate CUE graph definitions without building them.

Checks every graph under graph.*: processor kinds and slots, initial
values, link endpoints and static link types, builtin names, script
expressions, and group ports. Link cycles are reported as warnings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := compiler.Load(path, compiler.LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseLoadError(loadErrors[0])
		_ = formatter.Error(code, message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)

	result := ValidationResult{Graphs: make([]string, 0, len(loadResult.Graphs))}
	for _, err := range loadErrors {
		result.Errors = append(result.Errors, loadIssue(err))
	}
	for _, spec := range loadResult.Graphs {
		formatter.VerboseLog("Validating graph: %s", spec.Name)
		result.Graphs = append(result.Graphs, spec.Name)
		issues, warnings := validateGraph(spec)
		result.Errors = append(result.Errors, issues...)
		result.Warnings = append(result.Warnings, warnings...)
	}
	result.Valid = len(result.Errors) == 0

	if formatter.Format == "json" {
		return outputValidateJSON(formatter, result)
	}
	return outputValidateText(formatter, result)
}

// validateGraph checks one graph against the default builtin library.
func validateGraph(spec *ir.GraphSpec) ([]ValidationIssue, []GraphWarning) {
	var issues []ValidationIssue
	for _, e := range compiler.Validate(spec, engine.DefaultLibrary().Names()...) {
		issues = append(issues, ValidationIssue{Graph: spec.Name, Field: e.Field, Message: e.Message, Code: e.Code})
	}
	var warnings []GraphWarning
	for _, w := range compiler.AnalyzeCycles(spec) {
		warnings = append(warnings, GraphWarning{Graph: spec.Name, CycleWarning: w})
	}
	return issues, warnings
}

func loadIssue(err error) ValidationIssue {
	code, message := parseLoadError(err)
	issue := ValidationIssue{Field: "load", Message: message, Code: code}
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
		issue.Line = loadErr.Pos.Line()
	}
	return issue
}

func outputValidateJSON(formatter *OutputFormatter, result ValidationResult) error {
	if result.Valid {
		return formatter.Success(result)
	}

	response := CLIResponse{
		Status: "error",
		Data:   result,
		Error: &CLIError{
			Code:    result.Errors[0].Code,
			Message: result.Errors[0].Message,
		},
	}
	if err := formatter.JSON(response); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}

func outputValidateText(formatter *OutputFormatter, result ValidationResult) error {
	w := formatter.Writer
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "! %s: %s\n", warn.Graph, warn.Message)
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(w)
	}

	if result.Valid {
		fmt.Fprintf(w, "✓ All graphs valid (%d)\n", len(result.Graphs))
		return nil
	}

	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, e := range result.Errors {
		if e.Line > 0 {
			fmt.Fprintf(w, "line %d\n", e.Line)
		}
		if e.Graph != "" {
			fmt.Fprintf(w, "  %s: %s: %s: %s\n\n", e.Code, e.Graph, e.Field, e.Message)
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n\n", e.Code, e.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}
