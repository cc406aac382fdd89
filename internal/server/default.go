package server

import (
	"github.com/sirupsen/logrus"

	"github.com/magenta-aps/sdlon/pkg/metrics"
	"github.com/magenta-aps/sdlon/pkg/middleware"
	"github.com/magenta-aps/sdlon/pkg/server"
)

type DefaultOptions struct {
	Logger  *logrus.Logger
	Trigger Trigger
	Fixer   UnitFixer
	Runs    RunStore
}

func Default(options *DefaultOptions) *server.HTTPServer {
	controllers := []server.Controller{
		NewTriggerController(options.Trigger, options.Fixer, options.Runs, options.Logger),
		metrics.NewPrometheusController("/metrics"),
	}
	return server.NewHTTPServer(controllers, middleware.WithLogger(options.Logger))
}
