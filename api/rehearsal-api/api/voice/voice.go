// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package rehearsal_voice_api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/config"
	channel_relay "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/channel/relay"
	internal_session "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/session"
	internal_twilio_telephony "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/telephony/twilio"
	internal_type "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/type"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
)

var relayUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// terminal call statuses reported by the status callback
var terminalStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"busy":      true,
	"no-answer": true,
	"canceled":  true,
}

// Dispatcher is the slice of the session registry the voice endpoints need.
type Dispatcher interface {
	Dispatch(ev internal_type.Event) error
}

type voiceApi struct {
	ctx        context.Context
	cfg        *config.AppConfig
	logger     commons.Logger
	dispatcher Dispatcher
}

// NewVoiceApi wires the carrier webhooks and the relay socket to the session
// registry. Relay sockets live until ctx is cancelled at the latest.
func NewVoiceApi(ctx context.Context, cfg *config.AppConfig, logger commons.Logger, dispatcher Dispatcher) *voiceApi {
	return &voiceApi{ctx: ctx, cfg: cfg, logger: logger, dispatcher: dispatcher}
}

// Incoming answers the call-start webhook with TwiML connecting the call to
// the relay endpoint. Twilio may deliver it more than once; the response is
// the same every time and no session is created until the relay sets up.
//
// @Router /voice/incoming [post]
func (v *voiceApi) Incoming(c *gin.Context) {
	if !v.authorized(c) {
		return
	}
	callSid := c.PostForm("CallSid")
	from := c.PostForm("From")
	v.logger.Infow("incoming call", "callId", callSid, "from", from, "to", c.PostForm("To"))

	relayURL, err := internal_twilio_telephony.RelayURL(v.publicBase(c), v.cfg.Relay.Path)
	if err != nil {
		v.logger.Errorw("unable to build relay url", "callId", callSid, "error", err)
		v.twiml(c, internal_twilio_telephony.Apology())
		return
	}
	body, err := internal_twilio_telephony.ConnectRelay(internal_twilio_telephony.RelayOptions{
		URL:               relayURL,
		TtsProvider:       v.cfg.Relay.TtsProvider,
		Voice:             v.cfg.Relay.VoiceId,
		Language:          v.cfg.Relay.Language,
		TextNormalization: v.cfg.Relay.TextNormalization,
		CallSid:           callSid,
		Caller:            from,
	})
	if err != nil {
		v.logger.Errorw("unable to render twiml", "callId", callSid, "error", err)
		v.twiml(c, internal_twilio_telephony.Apology())
		return
	}
	v.twiml(c, body)
}

// Status handles the call-status webhook. Terminal statuses end the session;
// repeats and statuses for calls that never reached the relay are no-ops.
//
// @Router /voice/status [post]
func (v *voiceApi) Status(c *gin.Context) {
	if !v.authorized(c) {
		return
	}
	callSid := c.PostForm("CallSid")
	status := strings.ToLower(c.PostForm("CallStatus"))
	v.logger.Debugw("call status", "callId", callSid, "status", status)

	if callSid == "" || !terminalStatuses[status] {
		c.Status(http.StatusNoContent)
		return
	}
	err := v.dispatcher.Dispatch(internal_type.EndEvent{CallID: callSid, Reason: status, Time: time.Now()})
	if err != nil && !errors.Is(err, internal_session.ErrUnknownCallID) {
		v.logger.Warnw("unable to end call from status callback", "callId", callSid, "status", status, "error", err)
	}
	c.Status(http.StatusNoContent)
}

// Relay upgrades to the ConversationRelay websocket and pumps it until the
// carrier hangs up.
//
// @Router /voice/relay [get]
func (v *voiceApi) Relay(c *gin.Context) {
	conn, err := relayUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		v.logger.Errorf("relay websocket upgrade failed: %v", err)
		return
	}
	streamer := channel_relay.NewStreamer(v.logger, conn, v.dispatcher, channel_relay.Options{
		WriteTimeout: v.cfg.Relay.WriteTimeout,
	})
	start := time.Now()
	if err := streamer.Run(v.ctx); err != nil {
		v.logger.Warnw("relay stopped with error", "callId", streamer.CallID(), "error", err)
	}
	v.logger.Benchmark("voice.Relay", time.Since(start))
}

func (v *voiceApi) twiml(c *gin.Context, body []byte) {
	c.Data(http.StatusOK, "application/xml; charset=utf-8", body)
}

// publicBase is the externally visible origin of this service. Behind a
// tunnel or load balancer it must come from config.
func (v *voiceApi) publicBase(c *gin.Context) string {
	if v.cfg.BaseURL != "" {
		return v.cfg.BaseURL
	}
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

// authorized checks the webhook signature when validation is enabled and
// aborts the request otherwise.
func (v *voiceApi) authorized(c *gin.Context) bool {
	if !v.cfg.Twilio.ValidateSignature {
		return true
	}
	if err := c.Request.ParseForm(); err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return false
	}
	requestURL := strings.TrimRight(v.publicBase(c), "/") + c.Request.URL.RequestURI()
	signature := c.GetHeader(internal_twilio_telephony.SignatureHeader)
	if !internal_twilio_telephony.ValidSignature(v.cfg.Twilio.AuthToken, requestURL, c.Request.PostForm, signature) {
		v.logger.Warnw("rejected webhook with invalid signature", "path", c.Request.URL.Path)
		c.AbortWithStatus(http.StatusForbidden)
		return false
	}
	return true
}
