// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package rehearsal_voice_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	internal_session "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/session"
	"github.com/rapidaai/pitch-rehearsal/pkg/utils"
)

type Snapshotter interface {
	Snapshot() []internal_session.SessionInfo
}

type sessionsApi struct {
	registry Snapshotter
}

func NewSessionsApi(registry Snapshotter) *sessionsApi {
	return &sessionsApi{registry: registry}
}

// Sessions lists the calls live on this instance.
//
// @Router /debug/sessions [get]
func (s *sessionsApi) Sessions(c *gin.Context) {
	live := s.registry.Snapshot()
	utils.PaginatedSuccess(c, http.StatusOK, live, len(live), 0, len(live))
}
