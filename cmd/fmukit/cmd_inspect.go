package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fmukit/fmukit/internal/core/fmu"
	"github.com/fmukit/fmukit/internal/core/modeldesc"
	"github.com/fmukit/fmukit/internal/core/slave"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [model.fmu|identifier]",
	Short: "Print model metadata and variables",
	Long: `Prints the model description of an .fmu archive or a registered
model identifier: metadata, interface capabilities and the full
variable table.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	desc, cleanup, err := resolveDescription(args[0])
	if err != nil {
		return err
	}
	defer cleanup()

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(modelView(desc))
	}

	fmt.Printf("Model:       %s\n", desc.ModelName)
	fmt.Printf("GUID:        %s\n", desc.GUID)
	fmt.Printf("FMI version: %s\n", desc.FMIVersion)
	if desc.Description != "" {
		fmt.Printf("Description: %s\n", desc.Description)
	}
	if cs := desc.CoSimulation; cs != nil {
		caps := make([]string, 0, 2)
		if cs.CanGetAndSetFMUstate {
			caps = append(caps, "state snapshots")
		}
		if cs.CanHandleVariableCommunicationStepSize {
			caps = append(caps, "variable step size")
		}
		fmt.Printf("Interface:   CoSimulation (%s)", cs.ModelIdentifier)
		if len(caps) > 0 {
			fmt.Printf(", %s", strings.Join(caps, ", "))
		}
		fmt.Println()
	}
	if de := desc.DefaultExperiment; de != nil {
		fmt.Printf("Experiment: ")
		if de.StartTime != nil {
			fmt.Printf(" start=%g", *de.StartTime)
		}
		if de.StopTime != nil {
			fmt.Printf(" stop=%g", *de.StopTime)
		}
		if de.StepSize != nil {
			fmt.Printf(" step=%g", *de.StepSize)
		}
		if de.Tolerance != nil {
			fmt.Printf(" tolerance=%g", *de.Tolerance)
		}
		fmt.Println()
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVR\tTYPE\tCAUSALITY\tVARIABILITY\tSTART\tUNIT")
	for _, sv := range desc.Variables() {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			sv.Name, sv.ValueReference, sv.TypeName(),
			sv.Causality, sv.Variability, startValue(sv), variableUnit(sv))
	}
	return w.Flush()
}

// resolveDescription loads the description of an archive path or a
// registered identifier. The cleanup removes any extracted archive.
func resolveDescription(model string) (*modeldesc.Description, func(), error) {
	if strings.HasSuffix(model, ".fmu") {
		arch, err := fmu.Unpack(model)
		if err != nil {
			return nil, nil, err
		}
		return arch.Description(), func() { _ = arch.Close() }, nil
	}
	desc, err := slave.Describe(model)
	if err != nil {
		return nil, nil, err
	}
	return desc, func() {}, nil
}

type variableJSON struct {
	Name           string `json:"name"`
	ValueReference uint32 `json:"vr"`
	Type           string `json:"type"`
	Causality      string `json:"causality,omitempty"`
	Variability    string `json:"variability,omitempty"`
	Start          string `json:"start,omitempty"`
	Unit           string `json:"unit,omitempty"`
	Description    string `json:"description,omitempty"`
}

type modelJSON struct {
	Name           string         `json:"name"`
	GUID           string         `json:"guid"`
	FMIVersion     string         `json:"fmi_version"`
	Description    string         `json:"description,omitempty"`
	GenerationTool string         `json:"generation_tool,omitempty"`
	Variables      []variableJSON `json:"variables"`
}

func modelView(desc *modeldesc.Description) modelJSON {
	view := modelJSON{
		Name:           desc.ModelName,
		GUID:           desc.GUID,
		FMIVersion:     desc.FMIVersion,
		Description:    desc.Description,
		GenerationTool: desc.GenerationTool,
	}
	for _, sv := range desc.Variables() {
		view.Variables = append(view.Variables, variableJSON{
			Name:           sv.Name,
			ValueReference: uint32(sv.ValueReference),
			Type:           sv.TypeName(),
			Causality:      string(sv.Causality),
			Variability:    string(sv.Variability),
			Start:          startValue(sv),
			Unit:           variableUnit(sv),
			Description:    sv.Description,
		})
	}
	return view
}

func startValue(sv *modeldesc.ScalarVariable) string {
	switch {
	case sv.Real != nil && sv.Real.Start != nil:
		return strconv.FormatFloat(*sv.Real.Start, 'g', -1, 64)
	case sv.Integer != nil && sv.Integer.Start != nil:
		return strconv.FormatInt(int64(*sv.Integer.Start), 10)
	case sv.Boolean != nil && sv.Boolean.Start != nil:
		return strconv.FormatBool(*sv.Boolean.Start)
	case sv.String != nil && sv.String.Start != nil:
		return *sv.String.Start
	}
	return ""
}

func variableUnit(sv *modeldesc.ScalarVariable) string {
	if sv.Real != nil {
		return sv.Real.Unit
	}
	return ""
}
