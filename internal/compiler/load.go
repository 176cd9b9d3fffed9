package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/spaghetti/internal/ir"
)

// LoadMode controls how errors are handled while loading graphs.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes.
const (
	ErrCodeGeneric     = "E001" // generic or unknown error
	ErrCodeScanError   = "E002" // directory scan error
	ErrCodeNoFiles     = "E003" // no CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeNoGraph     = "E007" // no graph.* field, or the named graph is missing
)

// LoadResult holds the graphs compiled from a file or directory.
type LoadResult struct {
	Graphs    []*ir.GraphSpec // by file path, then field order of graph.*
	FileCount int
}

// Graph returns the graph named name, or the only graph when name is empty.
func (r *LoadResult) Graph(name string) (*ir.GraphSpec, error) {
	if name == "" {
		if len(r.Graphs) != 1 {
			return nil, &LoadError{Code: ErrCodeNoGraph, Message: fmt.Sprintf("%d graphs defined; name one", len(r.Graphs))}
		}
		return r.Graphs[0], nil
	}
	for _, g := range r.Graphs {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, &LoadError{Code: ErrCodeNoGraph, Message: fmt.Sprintf("graph %q not defined", name)}
}

// LoadError is an error from loading or compiling graph files.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads the CUE file or directory at path and compiles every field of
// graph.* into a GraphSpec. A directory is walked recursively and each file
// is built as its own instance, so files need no package clause.
func Load(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", path, err)}}
	}

	files := []string{path}
	if info.IsDir() {
		files, err = FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(files) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
	} else if filepath.Ext(path) != ".cue" {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a CUE file: %s", path)}}
	}

	ctx := cuecontext.New()
	result := &LoadResult{FileCount: len(files)}
	seen := make(map[string]string)
	var errs []error
	for _, file := range files {
		value, err := buildFile(ctx, file)
		if err != nil {
			if !info.IsDir() || mode == LoadModeFailFast {
				return nil, []error{err}
			}
			errs = append(errs, err)
			continue
		}
		graphs, ferrs := compileGraphs(value, mode)
		errs = append(errs, ferrs...)
		for _, g := range graphs {
			if prev, dup := seen[g.Name]; dup {
				errs = append(errs, &LoadError{
					Code:    ErrDuplicateName,
					Message: fmt.Sprintf("graph %q defined in %s and %s", g.Name, prev, file),
				})
				continue
			}
			seen[g.Name] = file
			result.Graphs = append(result.Graphs, g)
		}
		if mode == LoadModeFailFast && len(errs) > 0 {
			return result, errs[:1]
		}
	}
	if len(result.Graphs) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoGraph, Message: "no graph defined"})
	}
	return result, errs
}

// buildFile loads and builds one CUE file as a standalone instance.
func buildFile(ctx *cue.Context, file string) (cue.Value, error) {
	instances := load.Instances([]string{"./" + filepath.Base(file)}, &load.Config{Dir: filepath.Dir(file)})
	if len(instances) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("%s: no CUE instances loaded", file)}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading %s: %v", file, inst.Err)}
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building %s: %v", file, err)}
	}
	return value, nil
}

// LoadGraph loads path and returns the graph named name, or the only graph
// when name is empty.
func LoadGraph(path, name string) (*ir.GraphSpec, error) {
	res, errs := Load(path, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return res.Graph(name)
}

// compileGraphs compiles the graph.* fields of one file. A file without a
// graph field contributes nothing.
func compileGraphs(value cue.Value, mode LoadMode) ([]*ir.GraphSpec, []error) {
	graphs := value.LookupPath(cue.ParsePath("graph"))
	if !graphs.Exists() {
		return nil, nil
	}
	iter, err := graphs.Fields()
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating graphs: %v", err)}}
	}
	var (
		specs []*ir.GraphSpec
		errs  []error
	)
	for iter.Next() {
		spec, err := CompileGraph(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, "graph."+iter.Label()))
			if mode == LoadModeFailFast {
				return specs, errs
			}
			continue
		}
		specs = append(specs, spec)
	}
	return specs, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths in
// lexical order.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// MapFieldToErrorCode maps a compile error field to the validation code of
// the same problem.
func MapFieldToErrorCode(field string) string {
	last := field
	if i := strings.LastIndex(field, "."); i >= 0 {
		last = field[i+1:]
	}
	switch {
	case field == "processor":
		return ErrEmptyGraph
	case last == "kind":
		return ErrUnknownKind
	case last == "type":
		return ErrInvalidSignature
	case last == "value", last == "text":
		return ErrInvalidInitial
	case last == "workgroups":
		return ErrMisplacedField
	case strings.HasPrefix(field, "link."):
		return ErrInvalidEndpoint
	case strings.Contains(field, ".import."), strings.Contains(field, ".export."):
		return ErrInvalidGroupPort
	default:
		return ErrCodeGeneric
	}
}
