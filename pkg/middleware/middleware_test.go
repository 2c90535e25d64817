package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedLog struct {
	level  string
	msg    string
	fields []interface{}
}

type fakeLogger struct {
	logs []capturedLog
}

func (f *fakeLogger) Infow(msg string, keysAndValues ...interface{}) {
	f.logs = append(f.logs, capturedLog{level: "info", msg: msg, fields: keysAndValues})
}

func (f *fakeLogger) Errorw(msg string, keysAndValues ...interface{}) {
	f.logs = append(f.logs, capturedLog{level: "error", msg: msg, fields: keysAndValues})
}

func fieldValue(fields []interface{}, key string) interface{} {
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i] == key {
			return fields[i+1]
		}
	}
	return nil
}

func TestLoggerMiddlewareLogsInfoForSuccessResponses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := &fakeLogger{}
	router := gin.New()
	router.Use(LoggerMiddleware(log))
	router.GET("/features", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/features?x=1", nil))

	require.Len(t, log.logs, 1)
	assert.Equal(t, "info", log.logs[0].level)
	assert.Equal(t, "/features?x=1", fieldValue(log.logs[0].fields, "path"))
	assert.Equal(t, http.StatusOK, fieldValue(log.logs[0].fields, "status"))
}

func TestLoggerMiddlewareLogsErrorForServerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := &fakeLogger{}
	router := gin.New()
	router.Use(LoggerMiddleware(log))
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Len(t, log.logs, 1)
	assert.Equal(t, "error", log.logs[0].level)
}

func TestRecoveryMiddlewareConvertsPanicToJSONError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := &fakeLogger{}
	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.GET("/panics", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panics", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	require.Len(t, log.logs, 1)
	assert.Equal(t, "error", log.logs[0].level)
}

func TestRequestIDMiddlewarePreservesIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/features", func(c *gin.Context) {
		id, _ := c.Get("request_id")
		c.String(http.StatusOK, "%v", id)
	})

	req := httptest.NewRequest(http.MethodGet, "/features", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-123", w.Body.String())
}

func TestRequestIDMiddlewareGeneratesIDWhenAbsent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/features", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/features", nil))

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
