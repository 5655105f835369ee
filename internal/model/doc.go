// Package model defines the core data structures shared by the download
// engine, the catalog adapter and the presentation layers.
//
// # Quality
//
// Quality is the ordered set of fidelity tiers. Lower walks one step down:
//
//	q := model.QualityLossless
//	next, ok := q.Lower() // QualityExHigh, true
//
// # Track requests
//
// TrackRequest describes one track to download and computes its destination
// path from a naming template:
//
//	req := model.TrackRequest{
//	    TrackID:        "186016",
//	    Quality:        model.QualityLossless,
//	    Dir:            "/music",
//	    FileNameFormat: model.NamingTitleFirst,
//	    Title:          "晴天",
//	    Artist:         "周杰伦",
//	}
//	fmt.Println(req.Path(".flac")) // /music/晴天 - 周杰伦.flac
//
// # States
//
// State enumerates the task lifecycle; Terminal reports the sticky end states.
package model
