package api

import (
	"time"

	"github.com/UniQw/jobq"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	// AuthSecret enables bearer auth on every route except /healthz when set.
	AuthSecret string
	Logger     jobq.Logger
}

// NewRouter builds the HTTP API over client.
func NewRouter(client *jobq.Client, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))

	h := NewJobHandler(client, cfg.Logger)
	router.GET("/healthz", h.Health)

	protected := router.Group("")
	if cfg.AuthSecret != "" {
		protected.Use(NewAuth(cfg.AuthSecret).RequireAuth())
	}
	RegisterJobRoutes(protected, h)
	return router
}

func RegisterJobRoutes(router *gin.RouterGroup, handler *JobHandler) {
	jobs := router.Group("/jobs")
	{
		jobs.GET("", handler.ListJobs)
		jobs.POST("", handler.CreateJob)
		jobs.GET("/:id", handler.GetJob)
	}
	router.GET("/status", handler.Status)
	dlq := router.Group("/dlq")
	{
		dlq.GET("", handler.ListDead)
		dlq.POST("/:id/retry", handler.RetryDead)
	}
}

func requestLogger(l jobq.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if l != nil {
			l.Debugf("http: method=%s path=%s status=%d dur=%s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
		}
	}
}
