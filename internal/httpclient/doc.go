// Package httpclient is the HTTP transport.
//
// [Open] creates one [http.Client] per configured connection, each with its
// own transport, and rotates requests across them:
//
//	req, err := httpclient.Open(ctx, httpclient.Config{
//		Target:      "http://localhost:8080/local",
//		Connections: 4,
//		Timeout:     5 * time.Second,
//	})
//	err = req.Do(ctx)
//
// Responses outside the 2xx and 3xx ranges are returned as
// [runner.HTTPError] so failure breakdowns can group them by status. A body
// file is read once when the transport opens.
package httpclient
