package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/arnavshah/carelink-api-go/pkg/app"
	"github.com/arnavshah/carelink-api-go/pkg/config"
	"github.com/arnavshah/carelink-api-go/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	once    sync.Once
	router  http.Handler
	initErr error
)

func setup() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	zl := logger.New(cfg.Logging.Level, "json")
	a, err := app.New(context.Background(), cfg, zl)
	if err != nil {
		zl.Error("startup failed", zap.Error(err))
		initErr = err
		return
	}
	router = a.Router
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(setup)
	if initErr != nil {
		w.Header().Set("Content-Type", gin.MIMEJSON)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Service unavailable"}`))
		return
	}
	router.ServeHTTP(w, r)
}
