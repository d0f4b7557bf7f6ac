// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"
	"strings"

	"github.com/creachadair/taskgroup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// gauges are the session metrics that are not monotonic.
var gauges = map[string]bool{"connections_active": true}

// sessionCollector exports the integer values of a session metrics map to
// Prometheus. Its metrics are not described in advance, since the map may
// grow.
type sessionCollector struct {
	m *expvar.Map
}

func (sessionCollector) Describe(chan<- *prometheus.Desc) {}

func (c sessionCollector) Collect(ch chan<- prometheus.Metric) {
	c.m.Do(func(kv expvar.KeyValue) {
		v, ok := kv.Value.(*expvar.Int)
		if !ok {
			return
		}
		name, vtype := kv.Key, prometheus.CounterValue
		if gauges[name] {
			vtype = prometheus.GaugeValue
		} else {
			name += "_total"
		}
		desc := prometheus.NewDesc(
			prometheus.BuildFQName("peerhub", "session", name),
			"Session metric "+strings.ReplaceAll(kv.Key, "_", " ")+".",
			nil, nil,
		)
		ch <- prometheus.MustNewConstMetric(desc, vtype, float64(v.Value()))
	})
}

// metricsHandler returns an HTTP handler that serves the metrics of m along
// with the standard process and runtime collectors.
func metricsHandler(m *expvar.Map) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		sessionCollector{m},
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// serveMetrics serves h at /metrics on addr until ctx ends. The server runs
// in a task of g.
func serveMetrics(ctx context.Context, g *taskgroup.Group, addr string, h http.Handler, log *zap.Logger) error {
	lst, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux}
	log.Info("serving metrics", zap.Stringer("addr", lst.Addr()))
	g.Go(func() error {
		if err := srv.Serve(lst); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})
	return nil
}
