package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"modeld/internal/llamaproc"
)

func TestCompletion_ModelNotFoundMaps404(t *testing.T) {
	svc := &mockService{completeErr: &llamaproc.Error{Kind: llamaproc.KindNotFound, Msg: "m-missing"}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/completion", bytes.NewBufferString(`{"model":"m-missing","prompt":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCompletion_StartFailedMaps503(t *testing.T) {
	svc := &mockService{completeErr: &llamaproc.Error{Kind: llamaproc.KindStartFailed, Msg: "llama-server exited before readiness"}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/completion", bytes.NewBufferString(`{"model":"m1","prompt":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
