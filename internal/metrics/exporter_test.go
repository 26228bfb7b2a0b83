package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExporterServesMetrics(t *testing.T) {
	e := NewExporter()

	e.ObserveCommand("list_emails", "success", 50*time.Millisecond)
	e.ObserveCommand("delete_email", "failure", 10*time.Millisecond)
	e.ObserveBatch(2, 1)
	e.ObservePreview()
	e.ObserveConfirm()
	e.ObserveGeneratorRetry()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`mailagent_commands_total{intent="list_emails",outcome="success"} 1`,
		`mailagent_batch_items_total{outcome="success"} 2`,
		`mailagent_batch_items_total{outcome="failure"} 1`,
		`mailagent_previews_generated_total 1`,
		`mailagent_previews_confirmed_total 1`,
		`mailagent_generator_retries_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("指标输出中缺少 %q", want)
		}
	}
}

// 指标未启用时所有观测方法都应安全跳过
func TestNilExporterIsNoop(t *testing.T) {
	var e *Exporter
	e.ObserveCommand("list_emails", "success", time.Millisecond)
	e.ObserveGenerator("reply", "success")
	e.ObserveGeneratorRetry()
	e.ObserveBatch(1, 0)
	e.ObservePreview()
	e.ObserveConfirm()
}
