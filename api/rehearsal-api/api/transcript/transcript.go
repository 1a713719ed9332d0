// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package rehearsal_transcript_api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	internal_transcript "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/transcript"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
	"github.com/rapidaai/pitch-rehearsal/pkg/utils"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Reader is the read side of the transcript store.
type Reader interface {
	Get(ctx context.Context, callID string) (*internal_transcript.Transcript, error)
	List(ctx context.Context, limit, offset int) ([]*internal_transcript.TranscriptSummary, error)
}

type transcriptApi struct {
	logger commons.Logger
	store  Reader
}

func NewTranscriptApi(logger commons.Logger, store Reader) *transcriptApi {
	return &transcriptApi{logger: logger, store: store}
}

// @Router /transcripts [get]
func (t *transcriptApi) List(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultLimit)
	if err != nil || limit <= 0 || limit > maxLimit {
		utils.Error(c, http.StatusBadRequest, err, "limit must be between 1 and 100")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		utils.Error(c, http.StatusBadRequest, err, "offset must be zero or more")
		return
	}

	items, err := t.store.List(c.Request.Context(), limit, offset)
	if err != nil {
		t.logger.Errorf("unable to list transcripts: %v", err)
		utils.Error(c, http.StatusInternalServerError, err, "Unable to list transcripts, please try again later.")
		return
	}
	utils.PaginatedSuccess(c, http.StatusOK, items, len(items), offset, limit)
}

// @Router /transcripts/:callId [get]
func (t *transcriptApi) Get(c *gin.Context) {
	callID := c.Param("callId")
	transcript, err := t.store.Get(c.Request.Context(), callID)
	if err != nil {
		if errors.Is(err, internal_transcript.ErrTranscriptNotFound) {
			utils.Error(c, http.StatusNotFound, err, "No transcript for this call.")
			return
		}
		t.logger.Errorf("unable to get transcript %s: %v", callID, err)
		utils.Error(c, http.StatusInternalServerError, err, "Unable to get transcript, please try again later.")
		return
	}
	utils.Success(c, http.StatusOK, transcript)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
