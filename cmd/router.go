package main

import (
	"net/http"

	"github.com/angeloszaimis/failover-proxy/internal/admin"
	"github.com/angeloszaimis/failover-proxy/internal/metrics"
	"github.com/angeloszaimis/failover-proxy/internal/router"
)

func setupRouter(trafficRouter *router.Router, adminHandler *admin.Handler, collector *metrics.Collector, currentPrimary func() string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/", trafficRouter)
	mux.HandleFunc("/metrics", collector.Handler(currentPrimary))
	mux.HandleFunc("/admin/status", adminHandler.Status)
	mux.HandleFunc("/admin/swap", adminHandler.Swap)

	return mux
}
