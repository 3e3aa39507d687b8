package commands

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gil0mendes/Stellar/internal/actions"
	"github.com/gil0mendes/Stellar/pkg/api"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the builtin actions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := api.New()
		if err := actions.Register(a); err != nil {
			return err
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Name", "Versions", "Description"})
		table.SetAutoWrapText(false)
		table.SetAutoFormatHeaders(true)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetCenterSeparator("")
		table.SetColumnSeparator("")
		table.SetRowSeparator("")
		table.SetHeaderLine(false)
		table.SetBorder(false)
		table.SetTablePadding("  ")
		table.SetNoWhiteSpace(true)

		for _, name := range a.Actions.Names() {
			def, _ := a.Actions.Resolve(name, 0)
			table.Append([]string{name, fmt.Sprint(a.Actions.Versions(name)), def.Description})
		}
		table.Render()
		return nil
	},
}
