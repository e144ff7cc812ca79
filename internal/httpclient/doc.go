// Package httpclient provides the HTTP workload for vuload.
//
// A [Workload] sends one request per iteration built by a [RequestBuilder]
// from the run configuration. The response is classified as:
//   - success when the status is accepted (any code below 400, or one of
//     the configured expect_status codes) and every check passes
//   - failure when the status is rejected ([HTTPError]) or a check fails
//   - error when the request could not be completed, such as a refused
//     connection or a timeout
//
// # Request Building
//
//	builder, err := httpclient.NewRequestBuilder(cfg)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx)
//
// Request bodies come from inline content or a file ([NewPayload]) and
// can be replayed for redirects. The target URL and the body may contain
// {{vu}} and {{iteration}}, expanded from the iteration context.
//
// # HTTP Client
//
// The [NewClient] function creates an HTTP client tuned for load testing
// with a per-request timeout and connection reuse. The workload is safe for
// concurrent use, so one instance with one client is shared by every
// virtual user.
package httpclient
