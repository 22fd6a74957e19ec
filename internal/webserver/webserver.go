package webserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/wuzpanel/wuzpanel/internal/app"
	"go.uber.org/zap"
)

var server *WebServer

// WebServer wraps the echo engine and the application context it serves.
type WebServer struct {
	appCtx app.AppContext
	root   *echo.Echo
	api    *echo.Group
}

func Init(appCtx app.AppContext) *WebServer {
	server = &WebServer{appCtx: appCtx}
	server.initRouter()
	return server
}

// Get returns the running webserver instance.
func Get() *WebServer {
	return server
}

func (s *WebServer) initRouter() {
	s.root = echo.New()
	s.root.HideBanner = true
	s.root.HidePort = true
	s.root.Pre(middleware.RemoveTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		RedirectCode: http.StatusMovedPermanently,
	}))
	s.root.JSONSerializer = NewJsoniterSerializer()
	s.root.Use(middleware.Recover())
	s.root.Use(RequestID())
	s.root.Use(ZapLogger())
	// own registry so repeated Init calls never re-register collectors
	registry := prometheus.NewRegistry()
	s.root.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "wuzpanel",
		Registerer: registry,
	}))
	s.root.Use(s.injectAppContext())

	s.root.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: registry,
	}))
	s.root.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok", "time": time.Now().Format(time.RFC3339)})
	})

	s.api = s.root.Group("/api")
	s.api.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(s.appCtx.Config().Web.Secret),
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Path(), "/api/login")
		},
		ErrorHandler: func(c echo.Context, err error) error {
			zap.L().Debug("jwt rejected", zap.String("path", c.Path()), zap.Error(err))
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing token")
		},
	}))
}

// injectAppContext makes the application context available to handlers.
func (s *WebServer) injectAppContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(AppContextKey, s.appCtx)
			return next(c)
		}
	}
}

// AppContextKey is the echo context key holding the app.AppContext.
const AppContextKey = "wuzpanel_app_ctx"

// GetAppContext returns the application context bound to the request.
func GetAppContext(c echo.Context) app.AppContext {
	return c.Get(AppContextKey).(app.AppContext)
}

func ApiGET(path string, h echo.HandlerFunc) {
	server.api.GET(path, h)
}

func ApiPOST(path string, h echo.HandlerFunc) {
	server.api.POST(path, h)
}

func ApiPUT(path string, h echo.HandlerFunc) {
	server.api.PUT(path, h)
}

func ApiDELETE(path string, h echo.HandlerFunc) {
	server.api.DELETE(path, h)
}

// PubPOST registers an unauthenticated route under /api (login only).
func PubPOST(path string, h echo.HandlerFunc) {
	server.api.POST(path, h)
}

// Echo exposes the underlying engine for tests.
func (s *WebServer) Echo() *echo.Echo {
	return s.root
}

func (s *WebServer) Start() error {
	cfg := s.appCtx.Config()
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	zap.S().Infof("Starting webserver on %s", addr)
	err := s.root.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *WebServer) Shutdown(ctx context.Context) error {
	return s.root.Shutdown(ctx)
}

func Start() error {
	return server.Start()
}

func Shutdown(ctx context.Context) error {
	return server.Shutdown(ctx)
}
