package ir

// GraphSpec is a graph definition: named processors and the links between
// their slots. A group processor carries a nested GraphSpec.
type GraphSpec struct {
	Name       string          `json:"name"`
	Processors []ProcessorSpec `json:"processors"`
	Links      []LinkSpec      `json:"links,omitempty"`
}

// Processor returns the processor named name.
func (g *GraphSpec) Processor(name string) (*ProcessorSpec, bool) {
	for i := range g.Processors {
		if g.Processors[i].Name == name {
			return &g.Processors[i], true
		}
	}
	return nil, false
}

// ProcessorSpec defines one processor. Which kind-specific fields apply
// depends on Kind:
//
//	fragment       Source, EntryPoint, Width, Height
//	compute        Source, EntryPoint, Workgroups
//	image_reader   Path
//	buffer_reader  Path
//	script         Expressions (keyed by output name)
//	builtin        Builtin
//	group          Group, Imports, Exports
type ProcessorSpec struct {
	Name        string       `json:"name"`
	Kind        string       `json:"kind"`
	DisplayName string       `json:"display_name,omitempty"`
	Template    string       `json:"template,omitempty"`
	Inputs      []InputSpec  `json:"inputs,omitempty"`
	Outputs     []OutputSpec `json:"outputs,omitempty"`

	Source      string            `json:"source,omitempty"`
	EntryPoint  string            `json:"entry_point,omitempty"`
	Width       uint32            `json:"width,omitempty"`
	Height      uint32            `json:"height,omitempty"`
	Workgroups  [3]uint32         `json:"workgroups,omitempty"`
	Path        string            `json:"path,omitempty"`
	Expressions map[string]string `json:"expressions,omitempty"`
	Builtin     string            `json:"builtin,omitempty"`

	Group   *GraphSpec   `json:"group,omitempty"`
	Imports []ImportSpec `json:"imports,omitempty"`
	Exports []ExportSpec `json:"exports,omitempty"`
}

// Input returns the index of the input named name.
func (p *ProcessorSpec) Input(name string) (int, bool) {
	for i, in := range p.Inputs {
		if in.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Output returns the index of the output named name.
func (p *ProcessorSpec) Output(name string) (int, bool) {
	for i, out := range p.Outputs {
		if out.Name == name {
			return i, true
		}
	}
	return -1, false
}

// SignatureSpec is a data signature as written in a definition.
// Type is one of value, image, buffer, curve or text; Encoding one of float,
// int or uint. Zero Coords and Length mean 1.
type SignatureSpec struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding,omitempty"`
	Coords   uint32 `json:"coords,omitempty"`
	Length   uint32 `json:"length,omitempty"`
}

// InputSpec defines an input slot and its default value.
//
// Value holds numbers in element-major order; a single number is broadcast.
// Text holds strings for text inputs. NoDefault leaves the input without a
// default, so it can only run once linked.
type InputSpec struct {
	Name      string        `json:"name"`
	Signature SignatureSpec `json:"signature"`
	Value     []float64     `json:"value,omitempty"`
	Text      []string      `json:"text,omitempty"`
	NoDefault bool          `json:"no_default,omitempty"`
}

// OutputSpec defines an output slot and its initial value.
type OutputSpec struct {
	Name      string        `json:"name"`
	Signature SignatureSpec `json:"signature"`
	Value     []float64     `json:"value,omitempty"`
	Text      []string      `json:"text,omitempty"`
}

// LinkSpec connects From, an output written "processor.output", to To, an
// input written "processor.input".
type LinkSpec struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ImportSpec feeds group input Input into the inner input To.
type ImportSpec struct {
	Input string `json:"input"`
	To    string `json:"to"`
}

// ExportSpec publishes the inner output From as group output Output.
type ExportSpec struct {
	Output string `json:"output"`
	From   string `json:"from"`
}
