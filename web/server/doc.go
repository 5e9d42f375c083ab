// Package server runs an HTTP server until its context ends, then drains
// in-flight requests and runs registered cleanup.
//
//	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := server.New(app,
//		server.WithHost(":8080"),
//		server.WithShutdownFunc(func(ctx context.Context) error {
//			jobs.CancelAll()
//			return nil
//		}),
//	)
//	if err := srv.Run(ctx); err != nil {
//		return err
//	}
package server
