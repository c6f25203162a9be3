// Package server exposes the analysis pipeline over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first),
// following the standard Go pattern. The [BasicRouter] implementation uses
// [http.ServeMux] internally.
//
// # API Surface
//
// [API] implements the [Handler] interface and serves the pipeline
// operations: single-track resolution, cache-first batch resolution,
// selection updates, the mismatch review queue and reviewer actions.
//
// The regional catalog hint for preview search comes from the X-Market
// header when present, else from the Accept-Language region subtag, else
// the configured default country applies.
package server
