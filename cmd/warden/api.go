package main

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aegis-bot/warden/automod/config"
	"github.com/aegis-bot/warden/automod/engine"
	"github.com/aegis-bot/warden/automod/ledger"
	"github.com/aegis-bot/warden/pkg/env"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	slogecho "github.com/samber/slog-echo"
)

const (
	defaultViolationWindow = 24 * time.Hour
	defaultViolationLimit  = 20
	maxViolationLimit      = 100
)

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func newEcho(srv *Server, logger *slog.Logger, adminToken string, reg prometheus.Registerer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = srv.errorHandler
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "warden",
		Registerer: reg,
	}))

	e.GET("/_health", srv.HandleHealthCheck)

	api := e.Group("/api/v1")
	if adminToken != "" {
		api.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(adminToken)) == 1, nil
			},
		}))
	}
	api.POST("/messages", srv.HandleSubmitMessage)
	api.GET("/groups/:group/config", srv.HandleGetConfig)
	api.PUT("/groups/:group/config", srv.HandlePutConfig)
	api.POST("/groups/:group/enable", srv.HandleEnable)
	api.POST("/groups/:group/disable", srv.HandleDisable)
	api.PUT("/groups/:group/filters/:kind", srv.HandleUpdateFilter)
	api.PUT("/groups/:group/log-channel", srv.HandleSetLogChannel)
	api.PUT("/groups/:group/exemptions/:type/:target", srv.HandleAddExemption)
	api.DELETE("/groups/:group/exemptions/:type/:target", srv.HandleRemoveExemption)
	api.GET("/groups/:group/authors/:author/violations", srv.HandleAuthorViolations)
	return e
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		errorMessage = fmt.Sprintf("%v", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("warden-http-internal-error", "err", err)
	}
	if !c.Response().Committed {
		_ = c.JSON(code, GenericStatus{Status: "error", Daemon: "warden", Message: errorMessage})
	}
}

// maps config store errors onto HTTP errors
func configError(err error) error {
	if errors.Is(err, config.ErrInvalidConfig) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	ctx := c.Request().Context()
	if srv.rdb != nil {
		if err := srv.rdb.Ping(ctx).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, GenericStatus{Status: "error", Daemon: "warden", Message: "redis unavailable"})
		}
	}
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "warden", Message: env.CurrentVersion()})
}

type VerdictJSON struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

type StepJSON struct {
	Step    string `json:"step"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
}

type OutcomeJSON struct {
	MessageID     string        `json:"messageId"`
	State         string        `json:"state"`
	Trail         []string      `json:"trail"`
	ExemptReasons []string      `json:"exemptReasons,omitempty"`
	Violations    []VerdictJSON `json:"violations,omitempty"`
	FilterErrors  int           `json:"filterErrors,omitempty"`
	Recorded      bool          `json:"recorded"`
	RecordID      string        `json:"recordId,omitempty"`
	Sanction      string        `json:"sanction,omitempty"`
	Steps         []StepJSON    `json:"steps,omitempty"`
	Error         string        `json:"error,omitempty"`
}

func outcomeJSON(out *engine.Outcome, err error) OutcomeJSON {
	resp := OutcomeJSON{
		MessageID:     out.MessageID,
		State:         string(out.State),
		ExemptReasons: out.ExemptReasons,
		FilterErrors:  len(out.FilterErrors),
	}
	for _, s := range out.Trail {
		resp.Trail = append(resp.Trail, string(s))
	}
	for _, v := range out.Violations {
		resp.Violations = append(resp.Violations, VerdictJSON{Kind: string(v.Kind), Detail: v.Detail})
	}
	if rep := out.Report; rep != nil {
		resp.Recorded = rep.Recorded
		resp.RecordID = rep.RecordID
		resp.Sanction = rep.Decision.Tier.String()
		for _, s := range rep.Steps {
			sj := StepJSON{Step: string(s.Step), Outcome: string(s.Outcome), Detail: s.Detail}
			if s.Err != nil {
				sj.Error = s.Err.Error()
			}
			resp.Steps = append(resp.Steps, sj)
		}
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// Accepts a message event. With ?sync=true the message is processed inline and the outcome returned; otherwise it is queued.
func (srv *Server) HandleSubmitMessage(c echo.Context) error {
	var evt engine.MessageEvent
	if err := c.Bind(&evt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid message event body")
	}
	if err := evt.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	if c.QueryParam("sync") == "true" {
		out, err := srv.engine.ProcessMessage(c.Request().Context(), &evt)
		if out == nil {
			return err
		}
		return c.JSON(http.StatusOK, outcomeJSON(out, err))
	}

	if !srv.engine.OnMessage(&evt) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "shutting down")
	}
	return c.JSON(http.StatusAccepted, GenericStatus{Status: "queued", Daemon: "warden"})
}

func (srv *Server) HandleGetConfig(c echo.Context) error {
	cfg, err := srv.configs.GetConfig(c.Request().Context(), c.Param("group"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cfg)
}

func (srv *Server) HandlePutConfig(c echo.Context) error {
	var cfg config.GuildConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid config body")
	}
	if err := srv.configs.Configure(c.Request().Context(), c.Param("group"), &cfg); err != nil {
		return configError(err)
	}
	return c.JSON(http.StatusOK, &cfg)
}

func (srv *Server) HandleEnable(c echo.Context) error {
	if err := srv.configs.Enable(c.Request().Context(), c.Param("group")); err != nil {
		return configError(err)
	}
	return srv.HandleGetConfig(c)
}

func (srv *Server) HandleDisable(c echo.Context) error {
	if err := srv.configs.Disable(c.Request().Context(), c.Param("group")); err != nil {
		return configError(err)
	}
	return srv.HandleGetConfig(c)
}

type filterToggle struct {
	Enabled bool `json:"enabled"`
}

func (srv *Server) HandleUpdateFilter(c echo.Context) error {
	kind, err := config.ParseFilterKind(c.Param("kind"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var body filterToggle
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := srv.configs.UpdateFilter(c.Request().Context(), c.Param("group"), kind, body.Enabled); err != nil {
		return configError(err)
	}
	return srv.HandleGetConfig(c)
}

type logChannelBody struct {
	ChannelID string `json:"channelId"`
}

func (srv *Server) HandleSetLogChannel(c echo.Context) error {
	var body logChannelBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := srv.configs.SetLogChannel(c.Request().Context(), c.Param("group"), body.ChannelID); err != nil {
		return configError(err)
	}
	return srv.HandleGetConfig(c)
}

func (srv *Server) updateExemption(c echo.Context, add bool) error {
	t := config.ExemptionType(c.Param("type"))
	if err := srv.configs.UpdateExemption(c.Request().Context(), c.Param("group"), t, c.Param("target"), add); err != nil {
		return configError(err)
	}
	return srv.HandleGetConfig(c)
}

func (srv *Server) HandleAddExemption(c echo.Context) error {
	return srv.updateExemption(c, true)
}

func (srv *Server) HandleRemoveExemption(c echo.Context) error {
	return srv.updateExemption(c, false)
}

type AuthorViolations struct {
	GroupID  string                   `json:"groupId"`
	AuthorID string                   `json:"authorId"`
	Window   string                   `json:"window"`
	Count    int                      `json:"count"`
	Recent   []ledger.ViolationRecord `json:"recent,omitempty"`
}

// Violation count for an author over ?window= (a Go duration, default 24h), plus the most recent records if the ledger backend can list them.
func (srv *Server) HandleAuthorViolations(c echo.Context) error {
	ctx := c.Request().Context()
	groupID, authorID := c.Param("group"), c.Param("author")

	window := defaultViolationWindow
	if w := c.QueryParam("window"); w != "" {
		d, err := time.ParseDuration(w)
		if err != nil || d <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid window duration")
		}
		window = d
	}
	limit := defaultViolationLimit
	if l := c.QueryParam("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = min(n, maxViolationLimit)
	}

	count, err := srv.ledger.CountSince(ctx, groupID, authorID, time.Now().Add(-window))
	if err != nil {
		return fmt.Errorf("counting violations: %w", err)
	}
	resp := AuthorViolations{
		GroupID:  groupID,
		AuthorID: authorID,
		Window:   window.String(),
		Count:    count,
	}
	if lister, ok := srv.ledger.(ledger.Lister); ok && limit > 0 {
		recs, err := lister.Recent(ctx, groupID, authorID, limit)
		if err != nil {
			return fmt.Errorf("listing violations: %w", err)
		}
		resp.Recent = recs
	}
	return c.JSON(http.StatusOK, resp)
}
