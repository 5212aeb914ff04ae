package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/itsneelabh/perfscope"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Record a concurrent synthetic workload",
	Long:  `Fan a synthetic workload out over several workers, each opening nested scopes and groups, then print and export the recorded tree.`,
	Args:  cobra.NoArgs,
	RunE:  runWorkload,
}

func init() {
	runCmd.Flags().Int("workers", 4, "number of concurrent workers")
	runCmd.Flags().Int("items", 3, "items processed per worker")
	runCmd.Flags().Duration("max-delay", 20*time.Millisecond, "upper bound of each simulated step")
}

func runWorkload(cmd *cobra.Command, _ []string) error {
	workers, err := cmd.Flags().GetInt("workers")
	if err != nil {
		return fmt.Errorf("failed to get workers flag: %w", err)
	}
	items, err := cmd.Flags().GetInt("items")
	if err != nil {
		return fmt.Errorf("failed to get items flag: %w", err)
	}
	maxDelay, err := cmd.Flags().GetDuration("max-delay")
	if err != nil {
		return fmt.Errorf("failed to get max-delay flag: %w", err)
	}
	if workers < 1 || items < 1 || maxDelay <= 0 {
		return fmt.Errorf("workers, items and max-delay must be positive")
	}

	_, pipeline, err := newPipeline(cmd)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pipeline.Shutdown(shutdownCtx)
	}()

	ctx, run := perfscope.Create(cmd.Context(), "workload %dx%d", workers, items)
	err = runWorkers(ctx, workers, items, maxDelay)
	run.End()
	if err != nil {
		return err
	}

	root := run.Scope()
	if root == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "recording disabled, nothing to export")
		return nil
	}

	printTree(cmd.OutOrStdout(), root)
	spans := pipeline.Export(cmd.Context(), root)

	stats := perfscope.GetStats()
	perfscope.GetLogger().Info("Workload recorded", map[string]interface{}{
		"elapsed_ms":     root.Elapsed().Milliseconds(),
		"spans":          spans,
		"scopes_created": stats.ScopesCreated,
		"groups":         stats.GroupsRecorded,
	})
	return pipeline.ForceFlush(cmd.Context())
}

// runWorkers processes items on each worker under its own scope.
func runWorkers(ctx context.Context, workers, items int, maxDelay time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return perfscope.Run(gctx, fmt.Sprintf("worker %d", w), func(ctx context.Context) error {
				for i := 0; i < items; i++ {
					if err := processItem(ctx, i, maxDelay); err != nil {
						return err
					}
				}
				return nil
			})
		})
	}
	return g.Wait()
}

func processItem(ctx context.Context, item int, maxDelay time.Duration) error {
	ctx, scope := perfscope.Create(ctx, "item %d", item)
	defer scope.End()

	for step := 0; step < 2; step++ {
		g := perfscope.Append(ctx, "io")
		err := sleep(ctx, maxDelay)
		g.End()
		if err != nil {
			return err
		}
	}

	var err error
	perfscope.Track(ctx, "compute", func() {
		err = sleep(ctx, maxDelay)
	})
	return err
}

func sleep(ctx context.Context, maxDelay time.Duration) error {
	t := time.NewTimer(rand.N(maxDelay) + time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// printTree writes one line per scope, indented by depth, with its groups.
func printTree(w io.Writer, root *perfscope.Node) {
	root.Walk(func(n *perfscope.Node, depth int) bool {
		line := strings.Repeat("  ", depth) + n.String()
		if groups := n.Groups(); len(groups) > 0 {
			parts := make([]string, 0, len(groups))
			for _, label := range slices.Sorted(maps.Keys(groups)) {
				parts = append(parts, fmt.Sprintf("%s=%dms", label, groups[label].Milliseconds()))
			}
			line += " [" + strings.Join(parts, " ") + "]"
		}
		fmt.Fprintln(w, line)
		return true
	})
}
