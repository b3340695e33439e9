package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type blockingJob struct {
	runs    atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	close(j.started)
	<-j.release
	return nil
}

func TestCronScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler()
	job := &blockingJob{started: make(chan struct{}), release: make(chan struct{})}
	run := s.wrap(job, "@manual")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		run()
	}()
	<-job.started
	run()
	close(job.release)
	wg.Wait()

	require.EqualValues(t, 1, job.runs.Load())
}

func TestCronScheduler_AddJobValidatesSpec(t *testing.T) {
	s := NewCronScheduler()
	job := &blockingJob{}
	require.Error(t, s.AddJob(job, "not a spec"))
	require.NoError(t, s.AddJob(job, "*/5 * * * *"))
	require.Contains(t, s.entries, "blocking")
}

func TestCronScheduler_EmptySpecDisablesJob(t *testing.T) {
	s := NewCronScheduler()
	require.NoError(t, s.AddJob(&blockingJob{}, " "))
	require.Zero(t, s.Len())
}
