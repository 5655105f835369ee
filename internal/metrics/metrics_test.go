package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(Tasks, ActiveDownloads, DownloadedBytes, Retries,
		QualityFallbacks, EventsDropped, LeasesInUse)

	Tasks.WithLabelValues("done").Add(2)
	QualityFallbacks.WithLabelValues("lossless", "exhigh").Inc()
	ActiveDownloads.Set(3)

	expectedTasks := `# HELP cloudmusic_tasks_total Tasks that reached a terminal state, by state.
# TYPE cloudmusic_tasks_total counter
cloudmusic_tasks_total{state="done"} 2
`
	if err := testutil.CollectAndCompare(Tasks, strings.NewReader(expectedTasks)); err != nil {
		t.Fatalf("unexpected tasks metric: %v", err)
	}

	if got := testutil.ToFloat64(QualityFallbacks.WithLabelValues("lossless", "exhigh")); got != 1 {
		t.Errorf("quality fallbacks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ActiveDownloads); got != 3 {
		t.Errorf("active downloads = %v, want 3", got)
	}

	problems, err := testutil.GatherAndLint(reg)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range problems {
		t.Errorf("lint %s: %s", p.Metric, p.Text)
	}
}
