// batch.go - Parallele Ausfuehrung unabhaengiger Programme
//
// MODUL: batch
// ZWECK: Fuehrt mehrere Programme gleichzeitig aus, jedes mit eigenem State
// INPUT: Jobs (Programm, Eingaben, Optionen), Backend, Parallelitaet
// OUTPUT: Ein JobResult pro Job in Eingabereihenfolge
// ABHAENGIGKEITEN: golang.org/x/sync (errgroup, semaphore)
// HINWEISE: Ein fehlgeschlagener Job bricht die anderen nicht ab; nur ein
//           abgebrochener Context beendet den Batch vorzeitig
package xcvm

import (
	"context"
	"log/slog"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ollama/xcvm/envconfig"
	"github.com/ollama/xcvm/ml"
)

type Job struct {
	Name    string
	Program *Program
	Inputs  map[string]Value
	Options Options
}

type JobResult struct {
	Name     string
	Outputs  *orderedmap.OrderedMap[string, Value]
	Err      error
	Duration time.Duration

	// Profile is set when the job ran with Options.Profile
	Profile []ProfileEntry
}

// RunBatch runs jobs with at most limit programs in flight. A limit of 0
// uses XCVM_NUM_PARALLEL. Job failures are reported in the results; the
// returned error is only set when ctx ends before all jobs started.
func RunBatch(ctx context.Context, b ml.Backend, jobs []Job, limit int) ([]JobResult, error) {
	if limit <= 0 {
		limit = int(envconfig.NumParallel())
	}
	if limit <= 0 {
		limit = 1
	}

	sem := semaphore.NewWeighted(int64(limit))
	results := make([]JobResult, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			_ = g.Wait()
			return results, err
		}

		g.Go(func() error {
			defer sem.Release(1)

			start := time.Now()
			st, err := execute(job.Program, b, job.Inputs, job.Options)
			results[i] = JobResult{Name: job.Name, Err: err, Duration: time.Since(start)}
			if err != nil {
				slog.Warn("job failed", "name", job.Name, "error", err)
				return nil
			}
			results[i].Outputs = st.Outputs()
			if job.Options.Profile {
				results[i].Profile = st.Profile()
			}
			return nil
		})
	}

	return results, g.Wait()
}
