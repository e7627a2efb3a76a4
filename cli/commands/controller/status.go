package controller

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/gruntwork-io/clusterflow/cli/commands/common"
	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/placement"
	"github.com/gruntwork-io/clusterflow/internal/queue"
	"github.com/gruntwork-io/clusterflow/options"
)

type controllerRow struct {
	record    *cluster.Record
	index     int
	occupancy string
}

func RunStatus(ctx context.Context, opts *options.Options) error {
	pipeline, err := common.NewPipeline(ctx, opts)
	if err != nil {
		return err
	}
	defer pipeline.Close() //nolint:errcheck

	records, err := pipeline.Registry.List(ctx)
	if err != nil {
		return err
	}

	capacity := opts.QueueCapacity()

	var rows []controllerRow

	for _, record := range records {
		index := pipeline.Names.ControllerIndex(record.Name)
		if index == 0 {
			continue
		}

		row := controllerRow{record: record, index: index, occupancy: "-"}

		if opts.QueueBackend == options.QueueBackendFile {
			q := queue.NewFileQueue(opts.Logger, placement.QueuePath(opts.LockDir, record.Name), capacity)

			held, err := q.Occupancy(ctx)
			if err != nil {
				return err
			}

			row.occupancy = strconv.Itoa(held) + "/" + strconv.Itoa(capacity)
		}

		rows = append(rows, row)
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(opts.Writer, "No existing controllers.")
		return errors.WithStackTrace(err)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].index < rows[j].index })

	tw := tabwriter.NewWriter(opts.Writer, 0, 0, 2, ' ', 0) //nolint:mnd
	fmt.Fprintln(tw, "SHARD\tNAME\tSTATUS\tQUEUE")                  //nolint:errcheck

	for _, row := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", row.index, row.record.Name, row.record.Status, row.occupancy) //nolint:errcheck
	}

	return errors.WithStackTrace(tw.Flush())
}
