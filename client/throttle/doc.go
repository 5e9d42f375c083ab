// Package throttle limits how fast requests reach each host.
//
// [NewRoundTripper] wraps a transport and gives every destination host
// its own token bucket, so a batch that mixes mirrors is only slowed
// down for the host that is rate limited:
//
//	rt, err := throttle.NewRoundTripper(10, 5, func() *slog.Logger { return logger }, http.DefaultTransport)
//
// A request waits for a token or for its context to end, whichever
// comes first.
package throttle
