package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/cjeu-harvester/internal/app"
)

// newSeenCmd creates the 'seen' subcommand, which inspects the persisted seen set.
func newSeenCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "seen",
		Short: "Show the persisted seen set",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, appInstance *app.App) error {
			set, err := appInstance.SeenStore().Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load seen set: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d identifier(s) seen\n", len(set))
			if list {
				for _, id := range set.Sorted() {
					fmt.Fprintln(out, id)
				}
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&list, "list", false, "print every identifier")
	return cmd
}
