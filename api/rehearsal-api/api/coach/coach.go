// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package rehearsal_coach_api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	internal_coach "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/coach"
	internal_transcript "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/transcript"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
	"github.com/rapidaai/pitch-rehearsal/pkg/utils"
)

type coachApi struct {
	logger commons.Logger
	coach  internal_coach.Coach
}

// NewCoachApi exposes the sales coach. A nil coach means coaching is not
// configured and every endpoint answers 503.
func NewCoachApi(logger commons.Logger, coach internal_coach.Coach) *coachApi {
	return &coachApi{logger: logger, coach: coach}
}

// @Router /coach/analyze/:callId [post]
func (a *coachApi) Analyze(c *gin.Context) {
	if !a.enabled(c) {
		return
	}
	callID := c.Param("callId")
	fb, err := a.coach.Analyze(c.Request.Context(), callID)
	if err != nil {
		a.fail(c, callID, err)
		return
	}
	utils.Success(c, http.StatusOK, fb)
}

// @Router /coach/feedback/:callId [get]
func (a *coachApi) Feedback(c *gin.Context) {
	if !a.enabled(c) {
		return
	}
	callID := c.Param("callId")
	fb, err := a.coach.Feedback(c.Request.Context(), callID)
	if err != nil {
		a.fail(c, callID, err)
		return
	}
	utils.Success(c, http.StatusOK, fb)
}

// @Router /coach/summary/:callId [get]
func (a *coachApi) Summary(c *gin.Context) {
	if !a.enabled(c) {
		return
	}
	callID := c.Param("callId")
	summary, err := a.coach.Summary(c.Request.Context(), callID)
	if err != nil {
		a.fail(c, callID, err)
		return
	}
	utils.Success(c, http.StatusOK, gin.H{"callId": callID, "summary": summary})
}

func (a *coachApi) enabled(c *gin.Context) bool {
	if a.coach == nil {
		utils.Error(c, http.StatusServiceUnavailable, nil, "Coaching is not configured.")
		return false
	}
	return true
}

func (a *coachApi) fail(c *gin.Context, callID string, err error) {
	switch {
	case errors.Is(err, internal_transcript.ErrTranscriptNotFound):
		utils.Error(c, http.StatusNotFound, err, "No transcript for this call.")
	case errors.Is(err, internal_transcript.ErrFeedbackNotFound):
		utils.Error(c, http.StatusNotFound, err, "This call has not been analyzed yet.")
	case errors.Is(err, internal_coach.ErrEmptyTranscript):
		utils.Error(c, http.StatusUnprocessableEntity, err, "The call has nothing to analyze.")
	default:
		a.logger.Errorw("coach request failed", "callId", callID, "error", err)
		utils.Error(c, http.StatusBadGateway, err, "Unable to reach the coach, please try again later.")
	}
}
