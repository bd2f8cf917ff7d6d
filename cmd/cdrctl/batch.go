package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/pipeline"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/types"
)

const maxLineBytes = 4 << 20

// batchItem is one non-blank input line.
type batchItem struct {
	line int
	data []byte
}

func newBatchCmd(opts *globalOptions) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "batch [trials.jsonl]",
		Short: "Score one trial per input line and write one result per line",
		Long: `Each input line is a JSON trial. An optional string "id" field is copied
to the output and not validated. Output lines keep input order; a trial that
fails carries its error instead of a result.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers < 1 {
				return fmt.Errorf("--workers must be at least 1")
			}
			p, err := opts.pipeline(cmd, true)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer apperrors.SafeClose(f, args[0])
				in = f
			}

			items, err := readLines(in)
			if err != nil {
				return err
			}

			lines, err := opts.scoreAll(cmd, p, items, workers)
			if err != nil {
				return err
			}

			failed := 0
			out := cmd.OutOrStdout()
			for i := range lines {
				if lines[i].Error != nil {
					failed++
				}
				if err := opts.write(out, lines[i]); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "scored %d of %d trials\n", len(lines)-failed, len(lines))
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 4, "trials scored concurrently")
	return cmd
}

// scoreAll runs every item with at most workers in flight. Per-trial failures
// are recorded in their line; only cancellation stops the batch.
func (o *globalOptions) scoreAll(cmd *cobra.Command, p *pipeline.Pipeline, items []batchItem, workers int) ([]types.BatchLine, error) {
	lines := make([]types.BatchLine, len(items))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(workers)

	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			line := types.BatchLine{Index: item.line}

			raw, err := decodeTrial(bytes.NewReader(item.data))
			if err == nil {
				if id, ok := raw["id"].(string); ok {
					line.ID = id
					delete(raw, "id")
				}
				runCtx, cancel := o.runContextFrom(ctx)
				var res pipeline.Result
				res, err = p.Run(runCtx, raw)
				cancel()
				if err == nil {
					line.Result = &res
				}
			}
			if err != nil {
				line.Error = apperrors.ToAppError(err)
			}
			lines[i] = line
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := cmd.Context().Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func readLines(r io.Reader) ([]batchItem, error) {
	var items []batchItem
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for sc.Scan() {
		n++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		items = append(items, batchItem{line: n, data: append([]byte(nil), b...)})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", n+1, err)
	}
	return items, nil
}
