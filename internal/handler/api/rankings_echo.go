package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"

	models "ImpactRank/internal/domain/models"
	"ImpactRank/internal/service/metrics"
	"ImpactRank/internal/services/impact"
	"ImpactRank/internal/usecase"
	"ImpactRank/pkg/cache"
	xhttp "ImpactRank/pkg/http"
	xlogger "ImpactRank/pkg/logger"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RankingsEchoHandler serves ad-hoc ranking and stored recommendations.
type RankingsEchoHandler struct {
	logger    *xlogger.Logger
	ranking   *usecase.RankingUseCase
	recs      *usecase.RecommendationsUseCase
	checks    map[string]HealthCheck
	rankCache cache.Service
	rankTTL   time.Duration
	mw        []echo.MiddlewareFunc
}

func NewRankingsEchoHandler(logger *xlogger.Logger, ranking *usecase.RankingUseCase, recs *usecase.RecommendationsUseCase) *RankingsEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	metrics.Register()
	return &RankingsEchoHandler{logger: logger, ranking: ranking, recs: recs, checks: map[string]HealthCheck{}}
}

// SetRankCache caches POST /api/rank responses for deterministic requests.
func (h *RankingsEchoHandler) SetRankCache(c cache.Service, ttl time.Duration) {
	h.rankCache, h.rankTTL = c, ttl
}

// AddHealthCheck registers a dependency probe for GET /api/health.
func (h *RankingsEchoHandler) AddHealthCheck(name string, check HealthCheck) {
	if check != nil {
		h.checks[name] = check
	}
}

// Use adds middleware to every /api route, e.g. rate limiting.
func (h *RankingsEchoHandler) Use(mw ...echo.MiddlewareFunc) {
	h.mw = append(h.mw, mw...)
}

func (h *RankingsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", h.mw...)
	g.POST("/rank", h.Rank)
	g.GET("/recommendations", h.Latest)
	g.GET("/recommendations/:ticker", h.ByTicker)
	g.GET("/health", h.Health)
}

// Rank ranks the posted batch. Malformed records come back in parse_errors
// and never fail the request; bad engine parameters are a 400.
func (h *RankingsEchoHandler) Rank(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.Observe("rank", start, c.Response().Status) }()

	req, verr := readRankRequest(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	key, cacheable := rankCacheKey(req)
	cacheable = cacheable && h.rankCache != nil
	if cacheable {
		var cached usecase.RankOutput
		if gerr := h.rankCache.Get(c.Request().Context(), key, &cached); gerr == nil {
			metrics.RankCacheHits.WithLabelValues("hit").Inc()
			// a hit is a new run over a memoized result
			cached.RunID = uuid.NewString()
			cached.CreatedAt = time.Now().UTC()
			return xhttp.SuccessResponse(c, &cached)
		} else if !errors.Is(gerr, cache.ErrCacheMiss) {
			h.logger.Warn("rank cache read failed", xlogger.Error(gerr))
		}
		metrics.RankCacheHits.WithLabelValues("miss").Inc()
	}

	out, err := h.ranking.Rank(c.Request().Context(), usecase.RankParams{
		Records:         req.Records,
		ReferenceTime:   req.ReferenceTime,
		DecayBase:       req.DecayBase,
		HalfLifeHours:   req.HalfLifeHours,
		MaxAgeHours:     req.MaxAgeHours,
		PropagateScopes: req.PropagateScopes,
		IncludeHistory:  req.IncludeHistory != nil && *req.IncludeHistory,
		IncludeScopes:   req.IncludeScopes,
		Limit:           req.Limit,
		Source:          "api",
	})
	if err != nil {
		if errors.Is(err, impact.ErrInvalidConfig) {
			return xhttp.AppErrorResponse(c,
				xhttp.NewAppError(http.StatusBadRequest, "ERR_INVALID_CONFIG", err.Error()).WithError(err))
		}
		h.logger.Error("rank usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	if cacheable {
		if serr := h.rankCache.Set(c.Request().Context(), key, out, h.rankTTL); serr != nil {
			h.logger.Warn("rank cache write failed", xlogger.Error(serr))
		}
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *RankingsEchoHandler) Latest(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.Observe("latest", start, c.Response().Status) }()

	req := &models.LatestRecommendationsRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.recs.Latest(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("latest recommendations error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, res)
}

func (h *RankingsEchoHandler) ByTicker(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.Observe("by_ticker", start, c.Response().Status) }()

	req := &models.TickerRecommendationsRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.recs.ByTicker(c.Request().Context(), req.Ticker, req.Limit)
	if err != nil {
		if errors.Is(err, usecase.ErrNoStore) {
			return xhttp.AppErrorResponse(c,
				xhttp.NewAppError(http.StatusServiceUnavailable, "ERR_UNAVAILABLE", err.Error()))
		}
		h.logger.Error("ticker recommendations error", xlogger.Error(err), xlogger.String("ticker", req.Ticker))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

// HealthStatus is the body of GET /api/health.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *RankingsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	res := HealthStatus{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			res.Status = "degraded"
			res.Checks[name] = err.Error()
			h.logger.Warn("health check failed", xlogger.String("check", name), xlogger.Error(err))
			continue
		}
		res.Checks[name] = "ok"
	}
	if res.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

// readRankRequest accepts either a JSON RankRequest or, for text bodies, the
// extractor's raw output (optionally fenced) with parameters in the query.
func readRankRequest(c echo.Context) (*models.RankRequest, xhttp.ValidationErrors) {
	req := &models.RankRequest{}
	ctype := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ctype, "text/") {
		if verr := xhttp.Bind(c, req); verr != nil {
			return nil, verr
		}
		return req, nil
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, xhttp.Invalid("ERR_BODY", "", err.Error())
	}
	records, err := impact.DecodeRecords(body)
	if err != nil {
		return nil, xhttp.Invalid("ERR_DECODE", "records", err.Error())
	}
	req.Records = records
	if verr := queryParams(c, req); verr != nil {
		return nil, verr
	}
	if verr := xhttp.Validate(c.Request().Context(), req); verr != nil {
		return nil, verr
	}
	return req, nil
}

func queryParams(c echo.Context, req *models.RankRequest) xhttp.ValidationErrors {
	bad := func(field string, err error) xhttp.ValidationErrors {
		return xhttp.Invalid("ERR_TYPE", field, err.Error())
	}
	floatParam := func(name string) (*float64, error) {
		v := c.QueryParam(name)
		if v == "" {
			return nil, nil
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, err
		}
		return &f, nil
	}
	boolParam := func(name string) (*bool, error) {
		v := c.QueryParam(name)
		if v == "" {
			return nil, nil
		}
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, err
		}
		return &b, nil
	}

	var err error
	req.ReferenceTime = c.QueryParam("reference_time")
	if req.DecayBase, err = floatParam("decay_base"); err != nil {
		return bad("decay_base", err)
	}
	if req.HalfLifeHours, err = floatParam("half_life_hours"); err != nil {
		return bad("half_life_hours", err)
	}
	if req.MaxAgeHours, err = floatParam("max_age_hours"); err != nil {
		return bad("max_age_hours", err)
	}
	if req.PropagateScopes, err = boolParam("propagate_scopes"); err != nil {
		return bad("propagate_scopes", err)
	}
	if req.IncludeHistory, err = boolParam("include_history"); err != nil {
		return bad("include_history", err)
	}
	scopes, err := boolParam("include_scopes")
	if err != nil {
		return bad("include_scopes", err)
	}
	req.IncludeScopes = scopes != nil && *scopes
	if v := c.QueryParam("limit"); v != "" {
		if req.Limit, err = cast.ToIntE(v); err != nil {
			return bad("limit", err)
		}
	}
	return nil
}

// rankCacheKey hashes the request. Only requests with a fixed reference time
// and no history lookup are reproducible, so only those are cacheable.
func rankCacheKey(req *models.RankRequest) (string, bool) {
	if req.ReferenceTime == "" || (req.IncludeHistory != nil && *req.IncludeHistory) {
		return "", false
	}
	b, err := json.Marshal(req)
	if err != nil {
		return "", false
	}
	return cache.GenerateKey("rank", cache.HashKey(string(b))), true
}
