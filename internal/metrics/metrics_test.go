package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("Counters record by label", func(t *testing.T) {
		m := New()

		m.IngestFinished("processed", 12)
		m.IngestFinished("failed", 0)
		m.IngestFinished("processed", 3)
		m.AnswerFinished("grounded")
		m.IsolationViolation("search")

		assert.Equal(t, 2.0, testutil.ToFloat64(m.ingestTotal.WithLabelValues("processed")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestTotal.WithLabelValues("failed")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.answerTotal.WithLabelValues("grounded")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.isolationViolations.WithLabelValues("search")))
	})

	t.Run("Handler exposes registered instruments", func(t *testing.T) {
		m := New()
		m.ObserveRetrieval(20 * time.Millisecond)
		m.ObserveGeneration(time.Second, 2)
		m.AnswerFinished("low_confidence")

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

		require.Equal(t, 200, rec.Code)
		body, err := io.ReadAll(rec.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "orgrag_retrieval_duration_seconds_count 1")
		assert.Contains(t, string(body), `orgrag_answer_total{outcome="low_confidence"} 1`)
	})

	t.Run("Nil metrics record nothing", func(t *testing.T) {
		var m *Metrics

		assert.NotPanics(t, func() {
			m.IngestFinished("processed", 1)
			m.AnswerFinished("grounded")
			m.ObserveRetrieval(time.Second)
			m.ObserveGeneration(time.Second, 1)
			m.IsolationViolation("upsert")
		})
		assert.Nil(t, m.Registry())
	})
}
