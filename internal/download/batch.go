package download

import (
	"context"

	"github.com/handiism/cloudmusic-downloader/internal/audio"
	"github.com/handiism/cloudmusic-downloader/internal/model"
)

// Summary counts the outcomes of a batch.
type Summary struct {
	Done     int
	Skipped  int
	Partial  int
	Failed   int
	Canceled int
}

// Wait blocks until every task is terminal or ctx is done.
func Wait(ctx context.Context, tasks []*Task) error {
	for _, t := range tasks {
		select {
		case <-t.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Summarize counts the outcomes of tasks. Skipped and partial tasks are
// also counted as done.
func Summarize(tasks []*Task) Summary {
	var sum Summary
	for _, t := range tasks {
		st := t.Status()
		switch st.State {
		case model.StateDone:
			sum.Done++
			if st.Skipped {
				sum.Skipped++
			}
			if st.Partial {
				sum.Partial++
			}
		case model.StateFailed:
			sum.Failed++
		case model.StateCanceled:
			sum.Canceled++
		}
	}
	return sum
}

// PlaylistEntries lists the files of the done tasks, in task order.
//
// Example:
//
//	creator := audio.NewPlaylistCreator(audio.FormatM3U, true)
//	creator.Write("/music/batch.m3u", "batch", download.PlaylistEntries(tasks))
func PlaylistEntries(tasks []*Task) []audio.PlaylistEntry {
	var entries []audio.PlaylistEntry
	for _, t := range tasks {
		st := t.Status()
		if st.State != model.StateDone || st.Path == "" {
			continue
		}
		entries = append(entries, audio.PlaylistEntry{
			Path:   st.Path,
			Title:  st.Request.Title,
			Artist: st.Request.Artist,
		})
	}
	return entries
}
