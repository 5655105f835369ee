// Package download provides the download orchestration engine: it turns
// track requests into tagged audio files on disk.
//
// # Scheduler
//
// The Scheduler coordinates the entire download process:
//
//  1. Skip tracks whose file already exists (dedup.Index)
//  2. Resolve a source, stepping down quality tiers when needed (Negotiator)
//  3. Stream the bytes through the transport pool into a part file
//  4. Retry transient transfer errors with exponential backoff
//  5. Embed tags, cover art and lyrics (Embedder), optionally saving the
//     lyrics next to the audio as well (LyricsWriter)
//  6. Publish progress as one event stream
//
// # Basic Usage
//
//	s := download.NewScheduler(download.Deps{
//	    Catalog:   client,
//	    Metadata:  client,
//	    Transport: pool,
//	    Embedder:  embedder,
//	}, download.Options{Concurrency: 3})
//
//	sub := s.Subscribe()
//	go func() {
//	    for ev := range sub.Events() {
//	        fmt.Println(ev.Message())
//	    }
//	}()
//
//	tasks, _ := s.Enqueue(requests...)
//	download.Wait(ctx, tasks)
//	s.Shutdown(ctx)
//
// # Task lifecycle
//
//	queued → resolving → downloading → embedding → done
//
// Any state may end in failed or canceled. A transfer that fails on every
// retry returns to resolving at the next lower tier. An embedding failure
// keeps the audio file and ends in done with Partial set.
//
// Pause holds every transfer before its next chunk until Resume; Cancel
// and CancelAll still take effect while paused.
//
// # Events
//
// Each Subscription receives events through its own bounded buffer:
//
//	type Event struct {
//	    TaskID  string
//	    State   model.State
//	    Bytes   int64 // never decreases for a task
//	    Total   int64 // -1 when unknown
//	    Kind    Kind  // reason for failed, canceled and partial outcomes
//	    ...
//	}
//
// A slow subscriber loses intermediate progress events, oldest first, but
// always receives exactly one terminal event per task.
//
// # Errors
//
// Failures carry a Kind: transient_transport, source_unavailable,
// quality_exhausted, authentication, embed_failure, canceled,
// duplicate_destination or io. Use KindOf to read it from an error.
//
// # Retry Logic
//
// Transient transport errors are retried on the same tier with a delay of
// RetryCooldown * RetryExponent^n seconds, resuming from the bytes already
// written when the server honours range requests.
package download
