// Package batch schedules many downloads as one job.
//
// A [Scheduler] resolves a destination for every [Spec], starts the
// downloads on a bounded queue, retries transient failures, and records
// a [Result] per task. Progress is reported to [Observer]s:
//
//	s, err := batch.New(c,
//		batch.WithDir("downloads"),
//		batch.WithConcurrency(4),
//		batch.WithObserver(collector),
//	)
//	job, err := s.Submit(ctx, []batch.Spec{
//		{URL: "https://example.com/a.iso"},
//		{URL: "https://example.com/b.iso", Checksum: "sha256:9f86d0..."},
//	})
//	<-job.Done()
//
// File names come from Spec.Dest, or from the last segment of the URL
// path. Names claimed twice within one job get a " (n)" suffix.
package batch
