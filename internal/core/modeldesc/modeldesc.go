// Package modeldesc reads and validates FMI 2.0 model description
// documents: the modelDescription.xml every packaged model carries and
// the programmatic descriptions built-in models declare.
package modeldesc

import (
	"encoding/xml"
	"fmt"
)

// ValueReference is the stable numeric key of a model variable.
type ValueReference uint32

// Description is the root fmiModelDescription document.
type Description struct {
	XMLName xml.Name `xml:"fmiModelDescription"`

	FMIVersion               string `xml:"fmiVersion,attr"`
	ModelName                string `xml:"modelName,attr"`
	GUID                     string `xml:"guid,attr"`
	Description              string `xml:"description,attr,omitempty"`
	Author                   string `xml:"author,attr,omitempty"`
	Version                  string `xml:"version,attr,omitempty"`
	Copyright                string `xml:"copyright,attr,omitempty"`
	License                  string `xml:"license,attr,omitempty"`
	GenerationTool           string `xml:"generationTool,attr,omitempty"`
	GenerationDateAndTime    string `xml:"generationDateAndTime,attr,omitempty"`
	VariableNamingConvention string `xml:"variableNamingConvention,attr,omitempty"`
	NumberOfEventIndicators  uint32 `xml:"numberOfEventIndicators,attr,omitempty"`

	CoSimulation      *CoSimulation      `xml:"CoSimulation"`
	ModelExchange     *ModelExchange     `xml:"ModelExchange"`
	UnitDefinitions   *UnitDefinitions   `xml:"UnitDefinitions"`
	LogCategories     *LogCategories     `xml:"LogCategories"`
	DefaultExperiment *DefaultExperiment `xml:"DefaultExperiment"`
	ModelVariables    ModelVariables     `xml:"ModelVariables"`
}

// CoSimulation declares the co-simulation interface of the model and
// its capability flags.
type CoSimulation struct {
	ModelIdentifier                        string `xml:"modelIdentifier,attr"`
	NeedsExecutionTool                     bool   `xml:"needsExecutionTool,attr,omitempty"`
	CanHandleVariableCommunicationStepSize bool   `xml:"canHandleVariableCommunicationStepSize,attr,omitempty"`
	CanInterpolateInputs                   bool   `xml:"canInterpolateInputs,attr,omitempty"`
	MaxOutputDerivativeOrder               uint32 `xml:"maxOutputDerivativeOrder,attr,omitempty"`
	CanRunAsynchronuously                  bool   `xml:"canRunAsynchronuously,attr,omitempty"`
	CanBeInstantiatedOnlyOncePerProcess    bool   `xml:"canBeInstantiatedOnlyOncePerProcess,attr,omitempty"`
	CanNotUseMemoryManagementFunctions     bool   `xml:"canNotUseMemoryManagementFunctions,attr,omitempty"`
	CanGetAndSetFMUstate                   bool   `xml:"canGetAndSetFMUstate,attr,omitempty"`
	CanSerializeFMUstate                   bool   `xml:"canSerializeFMUstate,attr,omitempty"`
	ProvidesDirectionalDerivative          bool   `xml:"providesDirectionalDerivative,attr,omitempty"`
}

// ModelExchange declares the model-exchange interface of the model.
type ModelExchange struct {
	ModelIdentifier                     string `xml:"modelIdentifier,attr"`
	NeedsExecutionTool                  bool   `xml:"needsExecutionTool,attr,omitempty"`
	CompletedIntegratorStepNotNeeded    bool   `xml:"completedIntegratorStepNotNeeded,attr,omitempty"`
	CanBeInstantiatedOnlyOncePerProcess bool   `xml:"canBeInstantiatedOnlyOncePerProcess,attr,omitempty"`
	CanNotUseMemoryManagementFunctions  bool   `xml:"canNotUseMemoryManagementFunctions,attr,omitempty"`
	CanGetAndSetFMUstate                bool   `xml:"canGetAndSetFMUstate,attr,omitempty"`
	CanSerializeFMUstate                bool   `xml:"canSerializeFMUstate,attr,omitempty"`
	ProvidesDirectionalDerivative       bool   `xml:"providesDirectionalDerivative,attr,omitempty"`
}

// DefaultExperiment carries the model's suggested run settings. Absent
// attributes are nil.
type DefaultExperiment struct {
	StartTime *float64 `xml:"startTime,attr"`
	StopTime  *float64 `xml:"stopTime,attr"`
	Tolerance *float64 `xml:"tolerance,attr"`
	StepSize  *float64 `xml:"stepSize,attr"`
}

type UnitDefinitions struct {
	Units []Unit `xml:"Unit"`
}

type Unit struct {
	Name     string    `xml:"name,attr"`
	BaseUnit *BaseUnit `xml:"BaseUnit"`
}

type BaseUnit struct {
	KG     int     `xml:"kg,attr,omitempty"`
	M      int     `xml:"m,attr,omitempty"`
	S      int     `xml:"s,attr,omitempty"`
	A      int     `xml:"A,attr,omitempty"`
	K      int     `xml:"K,attr,omitempty"`
	Mol    int     `xml:"mol,attr,omitempty"`
	CD     int     `xml:"cd,attr,omitempty"`
	Rad    int     `xml:"rad,attr,omitempty"`
	Factor float64 `xml:"factor,attr,omitempty"`
	Offset float64 `xml:"offset,attr,omitempty"`
}

type LogCategories struct {
	Categories []LogCategory `xml:"Category"`
}

type LogCategory struct {
	Name        string `xml:"name,attr"`
	Description string `xml:"description,attr,omitempty"`
}

type ModelVariables struct {
	Variables []ScalarVariable `xml:"ScalarVariable"`
}

// ScalarVariable describes one model variable. Exactly one of the type
// elements (Real, Integer, Boolean, String, Enumeration) is present.
type ScalarVariable struct {
	Name                               string         `xml:"name,attr"`
	ValueReference                     ValueReference `xml:"valueReference,attr"`
	Description                        string         `xml:"description,attr,omitempty"`
	Causality                          Causality      `xml:"causality,attr,omitempty"`
	Variability                        Variability    `xml:"variability,attr,omitempty"`
	Initial                            Initial        `xml:"initial,attr,omitempty"`
	CanHandleMultipleSetPerTimeInstant bool           `xml:"canHandleMultipleSetPerTimeInstant,attr,omitempty"`

	Real        *RealType        `xml:"Real"`
	Integer     *IntegerType     `xml:"Integer"`
	Boolean     *BooleanType     `xml:"Boolean"`
	String      *StringType      `xml:"String"`
	Enumeration *EnumerationType `xml:"Enumeration"`
}

type RealType struct {
	DeclaredType string   `xml:"declaredType,attr,omitempty"`
	Unit         string   `xml:"unit,attr,omitempty"`
	Start        *float64 `xml:"start,attr"`
	Derivative   *uint32  `xml:"derivative,attr"`
	Min          *float64 `xml:"min,attr"`
	Max          *float64 `xml:"max,attr"`
	Nominal      *float64 `xml:"nominal,attr"`
	Reinit       bool     `xml:"reinit,attr,omitempty"`
}

type IntegerType struct {
	DeclaredType string `xml:"declaredType,attr,omitempty"`
	Start        *int32 `xml:"start,attr"`
	Min          *int32 `xml:"min,attr"`
	Max          *int32 `xml:"max,attr"`
}

type BooleanType struct {
	DeclaredType string `xml:"declaredType,attr,omitempty"`
	Start        *bool  `xml:"start,attr"`
}

type StringType struct {
	DeclaredType string  `xml:"declaredType,attr,omitempty"`
	Start        *string `xml:"start,attr"`
}

type EnumerationType struct {
	DeclaredType string `xml:"declaredType,attr,omitempty"`
	Start        *int32 `xml:"start,attr"`
	Min          *int32 `xml:"min,attr"`
	Max          *int32 `xml:"max,attr"`
}

// Causality classifies how a variable participates in the model.
type Causality string

const (
	CausalityParameter           Causality = "parameter"
	CausalityCalculatedParameter Causality = "calculatedParameter"
	CausalityInput               Causality = "input"
	CausalityOutput              Causality = "output"
	CausalityLocal               Causality = "local"
	CausalityIndependent         Causality = "independent"
)

func (c *Causality) UnmarshalXMLAttr(attr xml.Attr) error {
	switch v := Causality(attr.Value); v {
	case CausalityParameter, CausalityCalculatedParameter, CausalityInput,
		CausalityOutput, CausalityLocal, CausalityIndependent:
		*c = v
		return nil
	default:
		return fmt.Errorf("invalid causality %q", attr.Value)
	}
}

func (c Causality) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if c == "" {
		return xml.Attr{}, nil
	}
	return xml.Attr{Name: name, Value: string(c)}, nil
}

// Variability classifies when a variable's value may change.
type Variability string

const (
	VariabilityConstant   Variability = "constant"
	VariabilityFixed      Variability = "fixed"
	VariabilityTunable    Variability = "tunable"
	VariabilityDiscrete   Variability = "discrete"
	VariabilityContinuous Variability = "continuous"
)

func (v *Variability) UnmarshalXMLAttr(attr xml.Attr) error {
	switch val := Variability(attr.Value); val {
	case VariabilityConstant, VariabilityFixed, VariabilityTunable,
		VariabilityDiscrete, VariabilityContinuous:
		*v = val
		return nil
	default:
		return fmt.Errorf("invalid variability %q", attr.Value)
	}
}

func (v Variability) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if v == "" {
		return xml.Attr{}, nil
	}
	return xml.Attr{Name: name, Value: string(v)}, nil
}

// Initial declares how a variable gets its value at initialization.
type Initial string

const (
	InitialExact      Initial = "exact"
	InitialApprox     Initial = "approx"
	InitialCalculated Initial = "calculated"
)

func (i *Initial) UnmarshalXMLAttr(attr xml.Attr) error {
	switch v := Initial(attr.Value); v {
	case InitialExact, InitialApprox, InitialCalculated:
		*i = v
		return nil
	default:
		return fmt.Errorf("invalid initial %q", attr.Value)
	}
}

func (i Initial) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if i == "" {
		return xml.Attr{}, nil
	}
	return xml.Attr{Name: name, Value: string(i)}, nil
}

// Kind names the type element a variable carries.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindReal
	KindInteger
	KindBoolean
	KindString
	KindEnumeration
)

func (k Kind) String() string {
	switch k {
	case KindReal:
		return "Real"
	case KindInteger:
		return "Integer"
	case KindBoolean:
		return "Boolean"
	case KindString:
		return "String"
	case KindEnumeration:
		return "Enumeration"
	default:
		return "Unknown"
	}
}

// Kind reports which type element the variable declares.
func (sv *ScalarVariable) Kind() Kind {
	switch {
	case sv.Real != nil:
		return KindReal
	case sv.Integer != nil:
		return KindInteger
	case sv.Boolean != nil:
		return KindBoolean
	case sv.String != nil:
		return KindString
	case sv.Enumeration != nil:
		return KindEnumeration
	default:
		return KindUnknown
	}
}

// TypeName returns the variable's type element name.
func (sv *ScalarVariable) TypeName() string { return sv.Kind().String() }

func (sv *ScalarVariable) typeElementCount() int {
	n := 0
	if sv.Real != nil {
		n++
	}
	if sv.Integer != nil {
		n++
	}
	if sv.Boolean != nil {
		n++
	}
	if sv.String != nil {
		n++
	}
	if sv.Enumeration != nil {
		n++
	}
	return n
}
