// Package http provides the transport pool shared by catalog requests and
// audio transfers.
//
// The Pool in this package handles:
//   - Connection reuse across requests to the same host
//   - Connection leases bounding the number of in-flight requests
//   - Chunked, ranged and cancellable audio streams
//   - Cookie attachment from an auth.Store on every request
//   - Classification of transient transport errors
//
// # Basic Usage
//
//	pool := http.NewPool(http.Options{Size: 10, Credentials: store})
//
//	// Catalog call
//	body, err := pool.PostForm(ctx, apiURL, form, nil)
//
//	// Audio transfer
//	stream, err := pool.Fetch(ctx, audioURL, 0)
//	defer stream.Close()
//
// # Leases
//
// Every request holds one lease from acquisition until its body is consumed
// (PostForm, Get) or its Stream is closed (Fetch). A Fetch lease is also
// released as soon as the request context is done, so a canceled transfer
// never keeps a lease even if the caller forgets Close.
//
// # Retrying
//
// The pool never retries by itself. Callers decide with IsTransient:
//
//	if http.IsTransient(err) {
//	    // same URL, possibly resuming from the bytes already written
//	}
package http
