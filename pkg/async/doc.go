// Package async runs background work with panic recovery and a deadline.
//
// Run executes a task synchronously and turns a panic into an error; cron
// callbacks use it so one failing job cannot take the server down. SafeGo does
// the same on a new goroutine and only logs the outcome.
//
//	async.Run(ctx, logger, 2*time.Minute, "overdue report", func(ctx context.Context) error {
//		return report(ctx)
//	})
package async
