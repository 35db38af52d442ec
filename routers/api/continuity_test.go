package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"SpotFactory-server/service"

	"github.com/gin-gonic/gin"
)

func continuityRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/api/continuity/validate", ValidateContinuity)
	return r
}

func TestValidateContinuityEndpoint(t *testing.T) {
	r := continuityRouter()

	body := `{
		"previous_elements": [{"type": "bottle", "description": "black perfume bottle in hand"}],
		"current_elements": []
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/api/continuity/validate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200, body: %s", w.Code, w.Body.String())
	}
	var report service.ContinuityReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if report.IsValid {
		t.Fatal("missing bottle should make the report invalid")
	}
	if len(report.Warnings) != 1 || report.Warnings[0].Severity != service.SeverityHigh {
		t.Fatalf("warnings = %+v; want one high", report.Warnings)
	}
}

func TestValidateContinuityEndpointBadPayload(t *testing.T) {
	r := continuityRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/api/continuity/validate", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", w.Code)
	}
}
