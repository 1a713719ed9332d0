// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package health_check_api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
)

// Probe is anything readiness depends on; connectors satisfy it.
type Probe interface {
	Name() string
	IsConnected(ctx context.Context) bool
}

type healthCheckApi struct {
	logger  commons.Logger
	version string
	probes  []Probe
}

func New(logger commons.Logger, version string, probes ...Probe) *healthCheckApi {
	return &healthCheckApi{logger: logger, version: version, probes: probes}
}

// Healthz reports that the process is serving.
func (hc *healthCheckApi) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"healthy": true, "version": hc.version})
}

// Readiness reports whether every dependency is reachable.
func (hc *healthCheckApi) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]bool, len(hc.probes))
	ready := true
	for _, p := range hc.probes {
		ok := p.IsConnected(ctx)
		status[p.Name()] = ok
		if !ok {
			ready = false
			hc.logger.Warnf("readiness probe failed: %s", p.Name())
		}
	}
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"ready": ready, "dependencies": status})
}
