package pipeline

import "context"

// Job adapts the pipeline to the scheduler's Job interface so full
// extraction runs can be cron-scheduled.
type Job struct {
	pipeline *Pipeline
}

// NewJob creates a scheduled pipeline job
func NewJob(p *Pipeline) *Job {
	return &Job{pipeline: p}
}

// Name returns the job name
func (j *Job) Name() string { return "pipeline" }

// Run executes one full extraction run
func (j *Job) Run() error {
	_, err := j.pipeline.Run(context.Background())
	return err
}
