package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/server"
	"github.com/JakeFAU/meeting-crawler/internal/store"
)

type runFlags struct {
	input     string
	output    string
	startDate string
	endDate   string
	urls      []string
}

// newRunCmd creates the 'scrape' or 'universal' subcommand.
func newRunCmd(mode store.Mode) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:  string(mode),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, mode, flags)
		},
	}
	if mode == store.ModeUniversal {
		cmd.Short = "Extracts meetings from every site and reports statistics"
		cmd.Long = `Runs the universal extraction path against every base URL and writes a
report with the per-site results and run statistics.`
	} else {
		cmd.Short = "Scrapes meetings from a list of municipal sites"
		cmd.Long = `Runs site modules where one matches and the universal extraction path
otherwise, writing one result entry per base URL.`
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", `request JSON file ({"start_date","end_date","base_urls"}); "-" reads stdin`)
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output object name, relative to the configured output location (default runs/<run_id>.json)")
	cmd.Flags().StringVar(&flags.startDate, "start-date", "", "window start (YYYY-MM-DD), overrides the input file")
	cmd.Flags().StringVar(&flags.endDate, "end-date", "", "window end (YYYY-MM-DD), overrides the input file")
	cmd.Flags().StringSliceVar(&flags.urls, "url", nil, "base URL to visit; repeatable, overrides the input file")
	return cmd
}

func runRun(cmd *cobra.Command, mode store.Mode, flags *runFlags) error {
	in, err := flags.request(cmd.InOrStdin())
	if err != nil {
		return err
	}
	opts := server.Options{Engines: 1}
	if flags.output != "" {
		name := flags.output
		opts.ObjectName = func(string) string { return name }
	}

	return withApp(cmd.Context(), opts, func(e *env, app App) error {
		job, err := app.NewJob(mode, in)
		if err != nil {
			return err
		}
		e.logger.Info("Starting run",
			zap.String("run_id", job.RunID),
			zap.String("mode", string(mode)),
			zap.Int("sites", len(in.BaseURLs)),
		)
		out, runErr := app.Execute(cmd.Context(), job)

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "run %s (%s)\n", job.RunID, mode)
		for _, site := range out.Results {
			fmt.Fprintf(w, "  %s: %d meetings\n", site.BaseURL, len(site.Records))
		}
		if out.Statistics != nil {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out.Statistics); err != nil {
				return fmt.Errorf("print statistics: %w", err)
			}
		}
		return runErr
	})
}

// request merges the input file with the command-line overrides.
func (f *runFlags) request(stdin io.Reader) (meeting.Input, error) {
	var in meeting.Input
	if f.input != "" {
		if err := readJSON(f.input, stdin, &in); err != nil {
			return meeting.Input{}, err
		}
	}
	if f.startDate != "" {
		in.StartDate = f.startDate
	}
	if f.endDate != "" {
		in.EndDate = f.endDate
	}
	if len(f.urls) > 0 {
		in.BaseURLs = f.urls
	}
	if len(in.BaseURLs) == 0 {
		return meeting.Input{}, fmt.Errorf("no base URLs: pass --input or --url")
	}
	if _, err := in.Window(); err != nil {
		return meeting.Input{}, fmt.Errorf("invalid date window: %w", err)
	}
	return in, nil
}

func readJSON(path string, stdin io.Reader, v any) error {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", strings.TrimPrefix(path, "./"), err)
	}
	return nil
}
