package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"drivingschool-console/internal/app"
	"drivingschool-console/internal/domain"
	"github.com/spf13/cobra"
)

// NewListCmd renders one page of a screen as a table.
func NewListCmd(configPath *string) *cobra.Command {
	var query string
	var page int
	cmd := &cobra.Command{
		Use:   "list <resource>",
		Short: "Show one page of a resource, filtered by --query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			screen, _, err := rt.console().Open(ctx, app.Viewer{ID: "cli"}, "", args[0])
			if err != nil {
				return fmt.Errorf("%w: %s", err, args[0])
			}
			screen.Enrich(ctx)
			screen.Search(query)
			view := screen.GoToPage(page)
			if view.Error != nil {
				return fmt.Errorf("%s: %s", view.Error.Kind, view.Error.Message)
			}
			return renderView(cmd.OutOrStdout(), screen.Resource(), view)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "free-text filter")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	return cmd
}

func renderView(out io.Writer, resource domain.Resource, view domain.View) error {
	if view.Empty {
		_, err := fmt.Fprintln(out, view.EmptyMessage)
		return err
	}

	columns := append([]string{"id"}, resource.SearchFields...)
	if resource.Lookup != nil {
		columns = append(columns, resource.Lookup.Key)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(columns, "\t")))
	for _, record := range view.Records {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = record.String(col)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "page %d/%d, %d %s\n", view.CurrentPage, view.TotalPages, view.TotalItems, strings.ToLower(resource.Title))
	return err
}
