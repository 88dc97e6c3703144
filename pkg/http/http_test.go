package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Name  string `json:"name" validate:"required,max=4"`
	Limit int    `json:"limit" default:"10" validate:"gte=1,lte=50"`
	Mode  string `json:"mode" default:"fast" validate:"oneof=fast slow"`
}

func TestValidate_DefaultsAndJSONFieldNames(t *testing.T) {
	req := &sampleRequest{Name: "abcdef", Limit: 99}
	errs := Validate(context.Background(), req)
	require.Len(t, errs, 2)

	byCode := map[string]ValidationError{}
	for _, e := range errs {
		byCode[e.Code] = e
	}
	assert.Equal(t, "name", byCode["ERR_MAX"].Field)
	assert.Equal(t, "name must be at most 4 characters", byCode["ERR_MAX"].Message)
	assert.Equal(t, "limit", byCode["ERR_LTE"].Field)
	assert.Equal(t, "fast", req.Mode)
}

func TestValidate_OK(t *testing.T) {
	req := &sampleRequest{Name: "ab"}
	assert.Nil(t, Validate(context.Background(), req))
	assert.Equal(t, 10, req.Limit)
}

func TestBind_BadJSON(t *testing.T) {
	e := echo.New()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(r, httptest.NewRecorder())

	errs := Bind(c, &sampleRequest{})
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
}

func TestAppErrorResponse(t *testing.T) {
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, AppErrorResponse(c, NewAppError(http.StatusConflict, "ERR_X", "taken").WithField("name")))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Status int         `json:"status"`
		Data   []*AppError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ERR_X", body.Data[0].Code)
	assert.Equal(t, "name", body.Data[0].Field)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, AppErrorResponse(c, errors.New("secret detail")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	err := NewAppError(http.StatusBadRequest, "ERR_Y", "bad").WithError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "bad: cause", err.Error())
}

func TestClient_GetAddsQueryAndReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("since") == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("missing since"))
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(time.Second))
	body, err := c.Get(context.Background(), srv.URL, url.Values{"since": {"x"}})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))

	_, err = c.Get(context.Background(), srv.URL, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.False(t, se.Retryable())
	assert.Contains(t, se.Body, "missing since")
}

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
	e.GET("/conflict", func(echo.Context) error {
		return NewAppError(http.StatusConflict, "ERR_CONFLICT", "conflict")
	})
}

func TestServer_StartServeStop(t *testing.T) {
	s := NewServer(Handlers{pingHandler{}}, WithHost("127.0.0.1"), WithPort(0), WithMetricsPath(""))
	require.NoError(t, s.Start())
	base := "http://" + s.Addr()

	resp, err := http.Get(base + "/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/nowhere")
	require.NoError(t, err)
	var env APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, env.Status)

	resp, err = http.Get(base + "/conflict")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
}
