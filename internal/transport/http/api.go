package http

import (
	"net/http"
	"strings"
	"time"

	"medprep-study-service/internal/app"
	"medprep-study-service/internal/domain"
	"medprep-study-service/internal/metrics"
	"medprep-study-service/internal/stats"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options configures the router.
type Options struct {
	Logger *zap.Logger
	// RateLimit and RateBurst throttle question, grading and material requests
	// per user, over HTTP and the websocket alike.
	RateLimit float64
	RateBurst int
	Now       func() time.Time
}

// API exposes the study service over JSON.
type API struct {
	service *app.StudyService
	logger  *zap.Logger
}

// NewRouter mounts the JSON API, the study websocket, /healthz and /metrics.
func NewRouter(service *app.StudyService, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	api := &API{service: service, logger: opts.Logger.Named("http")}
	throttle := newLimiters(opts.RateLimit, opts.RateBurst)
	ws := NewWSHandler(service, throttle, opts.Logger, opts.Now)

	r := gin.New()
	r.Use(gin.Recovery(), metrics.MetricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", metrics.PrometheusHandler())

	auth := r.Group("/api/auth")
	auth.POST("/login", api.login)
	auth.POST("/register", api.register)

	authed := r.Group("", api.requireUser())
	authed.GET("/ws", ws.Serve)

	v1 := authed.Group("/api")
	v1.POST("/auth/logout", api.logout)
	v1.GET("/me", api.me)
	v1.GET("/progress", api.progress)
	v1.GET("/dashboard", api.dashboard)
	v1.GET("/history", api.history)

	v1.POST("/sessions", api.startSession)
	v1.GET("/sessions/current", api.resumeSession)
	v1.DELETE("/sessions/current", api.abandonSession)
	v1.POST("/answers/objective", api.submitObjective)

	v1.PUT("/goals", api.updateGoals)
	v1.PUT("/preferences", api.updatePreferences)
	v1.GET("/suggestions", api.suggestions)
	v1.POST("/suggestions/refresh", api.refreshSuggestions)
	v1.DELETE("/suggestions", api.clearSuggestions)

	limited := v1.Group("", throttle.middleware())
	limited.POST("/answers/essay", api.submitEssay)
	limited.POST("/questions", api.generateQuestion)
	limited.POST("/materials", api.studyMaterial)

	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type materialRequest struct {
	Specialty string   `json:"specialty"`
	Topics    []string `json:"topics"`
}

func (a *API) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		a.fail(c, domain.Invalid("body", "malformed JSON: "+err.Error()))
		return false
	}
	return true
}

func (a *API) login(c *gin.Context) {
	var req loginRequest
	if !a.bind(c, &req) {
		return
	}
	res, err := a.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) register(c *gin.Context) {
	var req registerRequest
	if !a.bind(c, &req) {
		return
	}
	res, err := a.service.Register(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (a *API) logout(c *gin.Context) {
	if err := a.service.Logout(c.Request.Context(), currentUser(c).ID); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (a *API) progress(c *gin.Context) {
	rec, err := a.service.Progress(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a *API) dashboard(c *gin.Context) {
	d, err := a.service.Dashboard(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (a *API) history(c *gin.Context) {
	f := stats.HistoryFilter{
		Search:    c.Query("search"),
		Mode:      domain.Mode(strings.TrimSpace(c.Query("mode"))),
		Result:    stats.Result(strings.TrimSpace(c.Query("result"))),
		Specialty: c.Query("specialty"),
	}
	if f.Mode == "all" {
		f.Mode = ""
	}
	view, err := a.service.History(c.Request.Context(), currentUser(c).ID, f)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *API) startSession(c *gin.Context) {
	var req app.StartRequest
	if !a.bind(c, &req) {
		return
	}
	session, err := a.service.StartSession(c.Request.Context(), currentUser(c).ID, req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (a *API) resumeSession(c *gin.Context) {
	session, err := a.service.ResumeSession(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (a *API) abandonSession(c *gin.Context) {
	session, err := a.service.AbandonSession(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (a *API) submitObjective(c *gin.Context) {
	var req app.ObjectiveAnswer
	if !a.bind(c, &req) {
		return
	}
	res, err := a.service.SubmitObjective(c.Request.Context(), currentUser(c).ID, req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) submitEssay(c *gin.Context) {
	var req app.EssayAnswer
	if !a.bind(c, &req) {
		return
	}
	res, err := a.service.SubmitEssay(c.Request.Context(), currentUser(c).ID, req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) generateQuestion(c *gin.Context) {
	var req app.QuestionRequest
	if !a.bind(c, &req) {
		return
	}
	q, err := a.service.GenerateQuestion(c.Request.Context(), currentUser(c).ID, req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (a *API) studyMaterial(c *gin.Context) {
	var req materialRequest
	if !a.bind(c, &req) {
		return
	}
	m, err := a.service.StudyMaterial(c.Request.Context(), currentUser(c).ID, req.Specialty, req.Topics)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (a *API) updateGoals(c *gin.Context) {
	var req domain.Goals
	if !a.bind(c, &req) {
		return
	}
	g, err := a.service.UpdateGoals(c.Request.Context(), currentUser(c).ID, req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (a *API) updatePreferences(c *gin.Context) {
	var req domain.Preferences
	if !a.bind(c, &req) {
		return
	}
	p, err := a.service.UpdatePreferences(c.Request.Context(), currentUser(c).ID, req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *API) suggestions(c *gin.Context) {
	topics, err := a.service.Suggestions(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics})
}

func (a *API) refreshSuggestions(c *gin.Context) {
	topics, err := a.service.RefreshSuggestions(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics})
}

func (a *API) clearSuggestions(c *gin.Context) {
	if err := a.service.ClearSuggestions(c.Request.Context(), currentUser(c).ID); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
