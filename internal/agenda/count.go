package agenda

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/remindd/internal/model"
)

const DefaultCountWorkers = 4

type DayCount struct {
	Date  time.Time
	Count int
}

type CountResult struct {
	Counts []DayCount
	Err    error
}

// CountRange counts occurrences per day in [start, end] across tasks on a
// bounded worker pool. Days without occurrences are included with zero.
func CountRange(ctx context.Context, tasks []model.Task, start, end time.Time, workers int) ([]DayCount, error) {
	first := startOfDay(start)
	last := startOfDay(end.In(start.Location()))
	if last.Before(first) {
		return nil, errors.New("agenda: range end before start")
	}
	if workers <= 0 {
		workers = DefaultCountWorkers
	}

	perTask := make([][]time.Time, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range tasks {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perTask[i] = model.ProjectRange(tasks[i], first, last)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	index := make(map[string]int)
	counts := make([]DayCount, 0)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		index[dayKey(day)] = len(counts)
		counts = append(counts, DayCount{Date: day})
	}
	for _, days := range perTask {
		for _, day := range days {
			if i, ok := index[dayKey(day)]; ok {
				counts[i].Count++
			}
		}
	}
	return counts, nil
}

// CountRangeAsync runs CountRange in the background and delivers exactly one
// result on the returned channel.
func CountRangeAsync(ctx context.Context, tasks []model.Task, start, end time.Time, workers int) <-chan CountResult {
	out := make(chan CountResult, 1)
	snapshot := append([]model.Task(nil), tasks...)
	go func() {
		counts, err := CountRange(ctx, snapshot, start, end, workers)
		out <- CountResult{Counts: counts, Err: err}
		close(out)
	}()
	return out
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
