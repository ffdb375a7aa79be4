package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/taskpal/internal/config"
	"github.com/ent0n29/taskpal/internal/dialogue"
	"github.com/ent0n29/taskpal/internal/httpapi"
	"github.com/ent0n29/taskpal/internal/observability"
	"github.com/ent0n29/taskpal/internal/tasks"
)

type upperChat struct{}

func (upperChat) HandleMessage(_ context.Context, _ int64, text string) (dialogue.Reply, error) {
	return dialogue.Reply{Text: strings.ToUpper(text), Kind: dialogue.KindRelay}, nil
}

func TestWSURLForOwner(t *testing.T) {
	got, err := wsURLForOwner("https://chat.example.com/base/", 42)
	if err != nil {
		t.Fatalf("wsURLForOwner() error = %v", err)
	}
	if got != "wss://chat.example.com/base/v1/chat/ws?owner_id=42" {
		t.Fatalf("url = %q", got)
	}
	if _, err := wsURLForOwner("ftp://x", 1); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestSummarize(t *testing.T) {
	var ds []time.Duration
	for i := 10; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	s := summarize(ds)
	if s.Turns != 10 || s.Max != 10*time.Millisecond {
		t.Fatalf("summary = %+v", s)
	}
	if s.P50 != 6*time.Millisecond || s.P95 != 10*time.Millisecond {
		t.Fatalf("p50/p95 = %s/%s", s.P50, s.P95)
	}
	if (summarize(nil) != perfSummary{}) {
		t.Fatalf("empty summary not zero")
	}
}

func TestRunPerfAgainstServer(t *testing.T) {
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test_perf")
	api := httpapi.New(config.Config{}, upperChat{}, tasks.NewInMemoryStore(time.UTC), nil, metrics)
	ts := httptest.NewServer(api.Router())
	defer ts.Close()

	opts := perfOptions{baseURL: ts.URL, ownerID: 5, turns: 3, turnTimeout: 5 * time.Second, texts: []string{" a ", "b"}, verbose: true}
	if err := opts.validate(); err != nil {
		t.Fatalf("validate() error = %v", err)
	}
	var out bytes.Buffer
	sum, err := runPerf(context.Background(), opts, &out)
	if err != nil {
		t.Fatalf("runPerf() error = %v", err)
	}
	if sum.Turns != 3 {
		t.Fatalf("turns = %d, want 3", sum.Turns)
	}
	if !strings.Contains(out.String(), "turn 3/3 kind=relay") {
		t.Fatalf("progress output = %q", out.String())
	}
	if err := printServerLatency(context.Background(), ts.URL, &out); err != nil {
		t.Fatalf("printServerLatency() error = %v", err)
	}
}
