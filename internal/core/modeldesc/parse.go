package modeldesc

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrInvalidDocument = errors.New("invalid model description")
	ErrNotValidated    = errors.New("model description failed validation")
)

// Parse reads a model description document, applies the schema
// defaults and validates it.
func Parse(r io.Reader) (*Description, error) {
	var desc Description
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	desc.ApplyDefaults()
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

// ParseFile parses the document at path.
func ParseFile(path string) (*Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// ApplyDefaults fills the schema defaults for attributes the document
// omitted: causality local, variability continuous, naming convention
// flat.
func (d *Description) ApplyDefaults() {
	if d.VariableNamingConvention == "" {
		d.VariableNamingConvention = "flat"
	}
	for i := range d.ModelVariables.Variables {
		sv := &d.ModelVariables.Variables[i]
		if sv.Causality == "" {
			sv.Causality = CausalityLocal
		}
		if sv.Variability == "" {
			sv.Variability = VariabilityContinuous
		}
	}
}

// Validate checks the structural rules a host depends on. It does not
// enforce the full schema.
func (d *Description) Validate() error {
	if d.FMIVersion != "2.0" {
		return fmt.Errorf("%w: unsupported fmiVersion %q", ErrNotValidated, d.FMIVersion)
	}
	if d.ModelName == "" {
		return fmt.Errorf("%w: modelName is empty", ErrNotValidated)
	}
	if d.GUID == "" {
		return fmt.Errorf("%w: guid is empty", ErrNotValidated)
	}
	if d.CoSimulation == nil && d.ModelExchange == nil {
		return fmt.Errorf("%w: neither CoSimulation nor ModelExchange declared", ErrNotValidated)
	}
	if d.CoSimulation != nil && d.CoSimulation.ModelIdentifier == "" {
		return fmt.Errorf("%w: CoSimulation without modelIdentifier", ErrNotValidated)
	}
	if d.ModelExchange != nil && d.ModelExchange.ModelIdentifier == "" {
		return fmt.Errorf("%w: ModelExchange without modelIdentifier", ErrNotValidated)
	}
	if len(d.ModelVariables.Variables) == 0 {
		return fmt.Errorf("%w: no model variables declared", ErrNotValidated)
	}

	seen := make(map[string]struct{}, len(d.ModelVariables.Variables))
	independents := 0
	for i := range d.ModelVariables.Variables {
		sv := &d.ModelVariables.Variables[i]
		if sv.Name == "" {
			return fmt.Errorf("%w: variable %d has no name", ErrNotValidated, i)
		}
		if _, dup := seen[sv.Name]; dup {
			return fmt.Errorf("%w: duplicate variable name %q", ErrNotValidated, sv.Name)
		}
		seen[sv.Name] = struct{}{}

		if n := sv.typeElementCount(); n != 1 {
			return fmt.Errorf("%w: variable %q declares %d type elements", ErrNotValidated, sv.Name, n)
		}
		if sv.Causality == CausalityIndependent {
			independents++
		}
		if sv.Causality == CausalityParameter &&
			sv.Variability != VariabilityFixed && sv.Variability != VariabilityTunable {
			return fmt.Errorf("%w: parameter %q must be fixed or tunable, is %s",
				ErrNotValidated, sv.Name, sv.Variability)
		}
	}
	if independents > 1 {
		return fmt.Errorf("%w: %d independent variables declared", ErrNotValidated, independents)
	}
	return nil
}

// Variable looks a variable up by name.
func (d *Description) Variable(name string) (*ScalarVariable, bool) {
	for i := range d.ModelVariables.Variables {
		if d.ModelVariables.Variables[i].Name == name {
			return &d.ModelVariables.Variables[i], true
		}
	}
	return nil, false
}

// VariableByVR looks a variable up by type kind and value reference.
// Aliased references resolve to the first declaration.
func (d *Description) VariableByVR(kind Kind, vr ValueReference) (*ScalarVariable, bool) {
	for i := range d.ModelVariables.Variables {
		sv := &d.ModelVariables.Variables[i]
		if sv.ValueReference == vr && sv.Kind() == kind {
			return sv, true
		}
	}
	return nil, false
}

// Variables returns all variables in document order.
func (d *Description) Variables() []*ScalarVariable {
	vars := make([]*ScalarVariable, len(d.ModelVariables.Variables))
	for i := range d.ModelVariables.Variables {
		vars[i] = &d.ModelVariables.Variables[i]
	}
	return vars
}

// Outputs returns the variables with output causality in document
// order, the default recording set for a simulation run.
func (d *Description) Outputs() []*ScalarVariable {
	var outs []*ScalarVariable
	for i := range d.ModelVariables.Variables {
		if d.ModelVariables.Variables[i].Causality == CausalityOutput {
			outs = append(outs, &d.ModelVariables.Variables[i])
		}
	}
	return outs
}

// Parameters returns the variables with parameter causality.
func (d *Description) Parameters() []*ScalarVariable {
	var params []*ScalarVariable
	for i := range d.ModelVariables.Variables {
		if d.ModelVariables.Variables[i].Causality == CausalityParameter {
			params = append(params, &d.ModelVariables.Variables[i])
		}
	}
	return params
}

// LogCategoryNames returns the declared log category names.
func (d *Description) LogCategoryNames() []string {
	if d.LogCategories == nil {
		return nil
	}
	names := make([]string, len(d.LogCategories.Categories))
	for i, c := range d.LogCategories.Categories {
		names[i] = c.Name
	}
	return names
}

// HasLogCategory reports whether the description declares the named
// log category.
func (d *Description) HasLogCategory(name string) bool {
	if d.LogCategories == nil {
		return false
	}
	for _, c := range d.LogCategories.Categories {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Encode writes the description as indented XML with the standard
// header. Tooling and tests use it to build archives.
func (d *Description) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(d); err != nil {
		return err
	}
	return enc.Close()
}
