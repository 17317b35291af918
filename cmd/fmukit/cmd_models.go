package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fmukit/fmukit/internal/core/slave"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models compiled into this binary",
	RunE:  runModels,
}

type modelListJSON struct {
	Identifier  string `json:"identifier"`
	GUID        string `json:"guid"`
	Description string `json:"description,omitempty"`
}

func runModels(_ *cobra.Command, _ []string) error {
	names := slave.Models()
	if len(names) == 0 {
		fmt.Println("no models registered")
		return nil
	}

	if jsonOut {
		list := make([]modelListJSON, 0, len(names))
		for _, name := range names {
			desc, err := slave.Describe(name)
			if err != nil {
				return err
			}
			list = append(list, modelListJSON{
				Identifier:  name,
				GUID:        desc.GUID,
				Description: desc.Description,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	table := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(table, "IDENTIFIER\tGUID\tDESCRIPTION")
	for _, name := range names {
		desc, err := slave.Describe(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(table, "%s\t%s\t%s\n", name, desc.GUID, desc.Description)
	}
	return table.Flush()
}
