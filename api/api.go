package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/DeanThompson/ginpprof"
	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/logger"
	gin "github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	ginlog "github.com/toorop/gin-logrus"
)

// ApiAuth rejects requests without the configured ?apikey=.
func ApiAuth(c *gin.Context) {
	key := config.General().WebApiKey
	if queryParam, ok := c.GetQuery("apikey"); !ok || queryParam == "" || queryParam != key {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// NewRouter builds the gin engine with all /api routes.
func NewRouter() *gin.Engine {
	general := config.General()
	if !strings.EqualFold(general.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginlog.Logger(logger.Log), gin.Recovery())

	routerapi := router.Group("/api")
	routerapi.Use(ApiAuth)
	AddGeneralRoutes(routerapi)
	AddMoviesRoutes(routerapi.Group("/movies"))
	AddLibraryRoutes(routerapi)

	if general.EnablePprof {
		ginpprof.Wrap(router)
	}
	return router
}

// Serve runs the api until ctx is cancelled.
func Serve(ctx context.Context, port string) error {
	if config.General().WebApiKey == "" {
		logger.Log.Warn("webapikey is empty, all api requests will be rejected")
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Log.Info("Starting API Webserver on port ", port)
		errc <- server.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdown); err != nil {
		return errors.Wrap(err, "server shutdown")
	}
	return nil
}

// statusFor maps the package errors to http codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, logger.ErrNotFound), errors.Is(err, logger.ErrConfigMissing):
		return http.StatusNotFound
	case errors.Is(err, logger.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, logger.ErrAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
