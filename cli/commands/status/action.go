package status

import (
	"context"
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/gruntwork-io/clusterflow/cli/commands/common"
	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/options"
)

const timeLayout = "2006-01-02 15:04:05"

func Run(ctx context.Context, opts *options.Options, refresh bool, names []string) error {
	pipeline, err := common.NewPipeline(ctx, opts)
	if err != nil {
		return err
	}
	defer pipeline.Close() //nolint:errcheck

	records, err := pipeline.Registry.List(ctx)
	if err != nil {
		return err
	}

	if len(names) > 0 {
		records = slices.DeleteFunc(records, func(record *cluster.Record) bool {
			return !slices.Contains(names, record.Name)
		})
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(opts.Writer, "No existing clusters.")
		return errors.WithStackTrace(err)
	}

	tw := tabwriter.NewWriter(opts.Writer, 0, 0, 2, ' ', 0) //nolint:mnd
	fmt.Fprintln(tw, "NAME\tLAUNCHED\tRESOURCES\tSTATUS\tAUTOSTOP")   //nolint:errcheck

	for _, record := range records {
		status := record.Status

		if refresh {
			if status, _, err = pipeline.Registry.RefreshStatusHandle(ctx, record.Name); err != nil {
				return err
			}
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck
			record.Name, formatTime(record.LaunchedAt), resources(record), status, autostop(record))
	}

	return errors.WithStackTrace(tw.Flush())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Local().Format(timeLayout)
}

func resources(record *cluster.Record) string {
	if record.Handle == nil || record.Handle.Resources == "" {
		return "-"
	}

	return record.Handle.Resources
}

func autostop(record *cluster.Record) string {
	if record.AutostopMinutes <= 0 {
		return "-"
	}

	return fmt.Sprintf("%dm", record.AutostopMinutes)
}
