package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cardcapture/internal/requirements"
)

var fieldsTenant string

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Print a tenant's field catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		cat, err := requirements.NewManager(st).Get(ctx, fieldsTenant)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tLABEL\tENABLED\tREQUIRED")
		for _, f := range cat.Fields {
			fmt.Fprintf(w, "%s\t%s\t%t\t%t\n", f.Key, f.Label, f.Enabled, f.Required)
		}
		return w.Flush()
	},
}

func init() {
	fieldsCmd.Flags().StringVar(&fieldsTenant, "tenant", "", "tenant id")
	fieldsCmd.MarkFlagRequired("tenant") //nolint:errcheck
	rootCmd.AddCommand(fieldsCmd)
}
