package cli

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcleai/statusboard/internal/catalog"
	"github.com/marcleai/statusboard/internal/probe"
	"github.com/marcleai/statusboard/internal/status"
)

type checkFlags struct {
	config  string
	timeout time.Duration
	failOn  string
}

func newCheckCommand(opts Options) *cobra.Command {
	f := checkFlags{}

	cmd := &cobra.Command{
		Use:   "check [service-id...]",
		Short: "Probe services from this machine",
		Long: `Load the services file and run each check once, printing the result.
Without arguments every enabled service is checked. Credentials are resolved
from this process's environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			failOn := status.Status(f.failOn)
			if f.failOn != "" && failOn != status.Down && failOn != status.Degraded {
				return fmt.Errorf("--fail-on must be down or degraded")
			}

			store := catalog.NewStore(f.config, opts.Logger)
			if err := store.Load(cmd.Context()); err != nil {
				return err
			}
			defs, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			defs, err = selectServices(defs, args)
			if err != nil {
				return err
			}

			exec := probe.NewExecutor(probe.Config{
				Timeout: f.timeout,
				Env:     opts.Env,
				Logger:  opts.Logger,
			})
			samples := runChecks(cmd.Context(), exec, defs)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tLATENCY\tDETAIL")
			statuses := make([]status.Status, 0, len(samples))
			for _, s := range samples {
				latency := "-"
				if s.LatencyMs != nil {
					latency = fmt.Sprintf("%dms", *s.LatencyMs)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ServiceID, s.Status, latency, s.Detail)
				statuses = append(statuses, s.Status)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			overall := status.Overall(statuses...)
			fmt.Fprintf(cmd.OutOrStdout(), "\noverall: %s\n", overall)

			if failing(overall, failOn) {
				return fmt.Errorf("overall status is %s", overall)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.config, "config", "c", "services.json", "services config file")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 4*time.Second, "per-check timeout")
	cmd.Flags().StringVar(&f.failOn, "fail-on", "", "exit non-zero when the overall status is this bad (down or degraded)")
	return cmd
}

// selectServices keeps the enabled definitions, or exactly the named ones.
func selectServices(defs []catalog.ServiceDefinition, ids []string) ([]catalog.ServiceDefinition, error) {
	if len(ids) == 0 {
		out := defs[:0:0]
		for _, d := range defs {
			if d.Enabled {
				out = append(out, d)
			}
		}
		return out, nil
	}

	out := make([]catalog.ServiceDefinition, 0, len(ids))
	for _, id := range ids {
		i := slices.IndexFunc(defs, func(d catalog.ServiceDefinition) bool { return d.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", catalog.ErrServiceNotFound, id)
		}
		out = append(out, defs[i])
	}
	return out, nil
}

// runChecks probes every definition concurrently and returns samples in
// input order.
func runChecks(ctx context.Context, exec *probe.Executor, defs []catalog.ServiceDefinition) []status.Sample {
	samples := make([]status.Sample, len(defs))
	var wg sync.WaitGroup
	for i, d := range defs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			samples[i] = exec.Check(ctx, d)
		}()
	}
	wg.Wait()
	return samples
}

func failing(overall, threshold status.Status) bool {
	switch threshold {
	case status.Down:
		return overall == status.Down
	case status.Degraded:
		return overall == status.Down || overall == status.Degraded
	}
	return false
}
