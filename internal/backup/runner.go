package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/schemati/schemati-backend/internal/metrics"
	"github.com/schemati/schemati-backend/internal/projects/domain"
)

// Exporter is the part of the project manager a backup reads from.
type Exporter interface {
	Reload(ctx context.Context)
	Projects() []domain.Project
	Export(id string) (*domain.Export, error)
}

type Option func(*Runner)

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// Runner exports all projects to a sink, one interchange file each, under
// a directory named after the run's UTC start time.
type Runner struct {
	projects Exporter
	sink     Sink
	now      func() time.Time
	log      *slog.Logger
}

func NewRunner(projects Exporter, sink Sink, opts ...Option) *Runner {
	r := &Runner{
		projects: projects,
		sink:     sink,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RunOnce reloads the projects and backs up every one, returning how many
// were written. A failing project does not stop the run; the errors are
// joined.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	stamp := r.now().UTC().Format("20060102T150405Z")
	r.projects.Reload(ctx)

	var errs []error
	written := 0
	for _, p := range r.projects.Projects() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		exp, err := r.projects.Export(p.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("export %s: %w", p.ID, err))
			continue
		}
		name := fmt.Sprintf("%s/%s-%s", stamp, p.ID, exp.Filename)
		if err := r.sink.Put(ctx, name, exp.Body); err != nil {
			errs = append(errs, err)
			continue
		}
		written++
	}

	err := errors.Join(errs...)
	if err != nil {
		metrics.BackupRuns.WithLabelValues("error").Inc()
		r.log.Error("backup run failed", "written", written, "error", err)
	} else {
		metrics.BackupRuns.WithLabelValues("success").Inc()
		r.log.Info("backup run completed", "written", written, "snapshot", stamp)
	}
	return written, err
}

// Start runs RunOnce on a cron schedule until the returned cron is stopped.
func (r *Runner) Start(ctx context.Context, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		_, _ = r.RunOnce(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule backup %q: %w", schedule, err)
	}
	c.Start()
	r.log.Info("backup scheduler started", "schedule", schedule)
	return c, nil
}
