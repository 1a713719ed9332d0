// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_twilio_telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/config"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
)

var ErrNotConfigured = errors.New("twilio credentials are not configured")

const callStatusCompleted = "completed"

// twl talks to the Twilio REST API. It is only used to drop a call when the
// relay socket can no longer carry the end command.
type twl struct {
	logger     commons.Logger
	accountSid string
	authToken  string
	httpClient *http.Client
}

func NewTwilio(logger commons.Logger, cfg config.TwilioConfig) *twl {
	return &twl{
		logger:     logger,
		accountSid: cfg.AccountSid,
		authToken:  cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (tpc *twl) Client() (*twilio.RestClient, error) {
	clientParams, err := tpc.ClientParam()
	if err != nil {
		return nil, err
	}
	return twilio.NewRestClientWithParams(*clientParams), nil
}

func (tpc *twl) ClientParam() (*twilio.ClientParams, error) {
	if tpc.accountSid == "" || tpc.authToken == "" {
		return nil, ErrNotConfigured
	}
	base := &client.Client{
		Credentials: client.NewCredentials(tpc.accountSid, tpc.authToken),
		HTTPClient:  tpc.httpClient,
	}
	base.SetAccountSid(tpc.accountSid)
	return &twilio.ClientParams{
		Username:   tpc.accountSid,
		Password:   tpc.authToken,
		AccountSid: tpc.accountSid,
		Client:     base,
	}, nil
}

// Terminate completes the call, whatever its state.
func (tpc *twl) Terminate(ctx context.Context, callSid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rest, err := tpc.Client()
	if err != nil {
		return err
	}
	start := time.Now()
	params := &openapi.UpdateCallParams{}
	params.SetStatus(callStatusCompleted)
	_, err = rest.Api.UpdateCall(callSid, params)
	tpc.logger.Benchmark("twilio.Terminate", time.Since(start))
	if err != nil {
		return fmt.Errorf("twilio hangup failed for %s: %w", callSid, err)
	}
	tpc.logger.Infow("call completed through carrier api", "callId", callSid)
	return nil
}
