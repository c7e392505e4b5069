package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFrame(t *testing.T) {
	framesTotal.Reset()

	RecordFrame("ru", "accepted")
	RecordFrame("ru", "accepted")
	RecordFrame("ru", "skipped")

	if got := testutil.ToFloat64(framesTotal.WithLabelValues("ru", "accepted")); got != 2 {
		t.Errorf("accepted = %f, want 2", got)
	}
	if got := testutil.ToFloat64(framesTotal.WithLabelValues("ru", "skipped")); got != 1 {
		t.Errorf("skipped = %f, want 1", got)
	}
}

func TestRecordInference(t *testing.T) {
	inferenceDuration.Reset()
	predictionsTotal.Reset()

	RecordInference("en", 0.02)
	RecordInference("en", 0.04)

	if got := testutil.ToFloat64(predictionsTotal.WithLabelValues("en")); got != 2 {
		t.Errorf("predictions = %f, want 2", got)
	}
	if count := testutil.CollectAndCount(inferenceDuration); count == 0 {
		t.Error("expected histogram observations")
	}
}

func TestSessionsActive(t *testing.T) {
	sessionsActive.Set(0)

	SessionStarted()
	SessionStarted()
	SessionEnded()

	if got := testutil.ToFloat64(sessionsActive); got != 1 {
		t.Errorf("sessions = %f, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	wordsTotal.Reset()
	RecordWord("ru", "LIVE")

	srv := httptest.NewServer(Handler(NewRegistry()))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `signflow_words_total{language="ru",mode="LIVE"} 1`) {
		t.Errorf("words metric missing from output:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected Go collector output")
	}
}
