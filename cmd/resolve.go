package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/meeting-crawler/internal/resolver"
	"github.com/JakeFAU/meeting-crawler/internal/server"
)

type resolveInput struct {
	Requests []resolver.Request `json:"requests"`
}

// newResolveCmd creates the 'resolve' subcommand.
func newResolveCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolves agenda and video links to direct media URLs",
		Long: `Reads {"requests":[{"url":...,"type":"video"|"document"}]} and prints a JSON
array of the URLs that resolved, in request order. Failed requests are omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in resolveInput
			if err := readJSON(input, cmd.InOrStdin(), &in); err != nil {
				return err
			}
			for i, req := range in.Requests {
				if req.Type != resolver.Video && req.Type != resolver.Document {
					return fmt.Errorf("request %d: type must be video or document", i)
				}
			}
			return withApp(cmd.Context(), server.Options{Engines: 1}, func(_ *env, app App) error {
				urls := app.Resolve(cmd.Context(), in.Requests)
				if urls == nil {
					urls = []string{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(urls); err != nil {
					return fmt.Errorf("print urls: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", `request JSON file; "-" reads stdin`)
	return cmd
}
