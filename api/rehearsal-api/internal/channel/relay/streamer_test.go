// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package channel_relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	internal_type "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/type"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []internal_type.Event
}

func (d *recordingDispatcher) Dispatch(ev internal_type.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return nil
}

func (d *recordingDispatcher) Events() []internal_type.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]internal_type.Event(nil), d.events...)
}

type relayHarness struct {
	client     *websocket.Conn
	dispatcher *recordingDispatcher
	streamers  chan *Streamer
	finished   chan struct{}
}

func newRelayHarness(t *testing.T) *relayHarness {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Path(t.TempDir()), commons.Level("error"), commons.Console(false))
	require.NoError(t, err)

	h := &relayHarness{
		dispatcher: &recordingDispatcher{},
		streamers:  make(chan *Streamer, 1),
		finished:   make(chan struct{}),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		streamer := NewStreamer(logger, conn, h.dispatcher, Options{WriteTimeout: time.Second})
		h.streamers <- streamer
		_ = streamer.Run(context.Background())
		close(h.finished)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	h.client = client
	return h
}

func (h *relayHarness) send(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, h.client.WriteJSON(v))
}

func (h *relayHarness) waitEvents(t *testing.T, n int) []internal_type.Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.dispatcher.Events()) >= n }, 2*time.Second, 5*time.Millisecond)
	return h.dispatcher.Events()
}

func TestStreamer_TranslatesInboundMessages(t *testing.T) {
	h := newRelayHarness(t)

	h.send(t, map[string]interface{}{
		"type": "setup", "sessionId": "VX1", "callSid": "CA100", "from": "+15550001111",
		"customParameters": map[string]string{"caller": "+15559999999"},
	})
	h.send(t, map[string]interface{}{"type": "prompt", "voicePrompt": "we help", "last": false})
	h.send(t, map[string]interface{}{"type": "prompt", "voicePrompt": "we help warehouses", "last": true})
	h.send(t, map[string]interface{}{"type": "interrupt", "utteranceUntilInterrupt": "Hello", "durationUntilInterruptMs": 300})
	h.send(t, map[string]interface{}{"type": "dtmf", "digit": "5"})

	events := h.waitEvents(t, 3)
	require.Len(t, events, 3)

	openEv, ok := events[0].(internal_type.OpenEvent)
	require.True(t, ok)
	assert.Equal(t, "CA100", openEv.CallID)
	assert.Equal(t, "+15550001111", openEv.Caller)
	assert.NotNil(t, openEv.Outbound)

	partialEv, ok := events[1].(internal_type.PartialSpeechEvent)
	require.True(t, ok)
	assert.Equal(t, "we help", partialEv.Text)

	finalEv, ok := events[2].(internal_type.FinalSpeechEvent)
	require.True(t, ok)
	assert.Equal(t, "CA100", finalEv.CallID)
	assert.Equal(t, "we help warehouses", finalEv.Text)
}

func TestStreamer_SetupFallsBackToCustomParameters(t *testing.T) {
	h := newRelayHarness(t)

	h.send(t, map[string]interface{}{
		"type":             "setup",
		"customParameters": map[string]string{"callSid": "CA101", "caller": "+15552223333"},
	})
	events := h.waitEvents(t, 1)
	openEv := events[0].(internal_type.OpenEvent)
	assert.Equal(t, "CA101", openEv.CallID)
	assert.Equal(t, "+15552223333", openEv.Caller)
}

func TestStreamer_AnonymousCaller(t *testing.T) {
	h := newRelayHarness(t)

	h.send(t, map[string]interface{}{"type": "setup", "callSid": "CA102"})
	events := h.waitEvents(t, 1)
	assert.Equal(t, AnonymousCaller, events[0].(internal_type.OpenEvent).Caller)
}

func TestStreamer_DropsPromptBeforeSetupAndMalformed(t *testing.T) {
	h := newRelayHarness(t)

	require.NoError(t, h.client.WriteMessage(websocket.TextMessage, []byte("{not json")))
	h.send(t, map[string]interface{}{"type": "prompt", "voicePrompt": "hello?", "last": true})
	h.send(t, map[string]interface{}{"type": "setup", "callSid": "CA103"})

	h.waitEvents(t, 1)
	time.Sleep(20 * time.Millisecond)
	events := h.dispatcher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "open", events[0].Name())
}

func TestStreamer_OutboundCommands(t *testing.T) {
	h := newRelayHarness(t)
	streamer := <-h.streamers

	ctx := context.Background()
	require.NoError(t, streamer.Speak(ctx, "Hello, Sarah Chen speaking."))
	require.NoError(t, streamer.Hangup(ctx, "idle timeout"))

	require.NoError(t, h.client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var text TextMessage
	require.NoError(t, h.client.ReadJSON(&text))
	assert.Equal(t, TextMessage{Type: TypeText, Token: "Hello, Sarah Chen speaking.", Last: true}, text)

	var end EndMessage
	require.NoError(t, h.client.ReadJSON(&end))
	assert.Equal(t, TypeEnd, end.Type)
	var handoff map[string]string
	require.NoError(t, json.Unmarshal([]byte(end.HandoffData), &handoff))
	assert.Equal(t, "idle timeout", handoff["reason"])
}

func TestStreamer_CloseDispatchesEnd(t *testing.T) {
	h := newRelayHarness(t)
	streamer := <-h.streamers

	h.send(t, map[string]interface{}{"type": "setup", "callSid": "CA104"})
	h.waitEvents(t, 1)
	require.NoError(t, h.client.Close())

	events := h.waitEvents(t, 2)
	endEv, ok := events[1].(internal_type.EndEvent)
	require.True(t, ok)
	assert.Equal(t, "CA104", endEv.CallID)
	assert.Equal(t, reasonRelayClosed, endEv.Reason)
	// the session compares the source against its bound relay
	assert.Same(t, streamer, endEv.Source)

	select {
	case <-h.finished:
	case <-time.After(2 * time.Second):
		t.Fatal("streamer did not stop")
	}
	assert.ErrorIs(t, streamer.Speak(context.Background(), "anyone there?"), ErrRelayClosed)
}

func TestDecodeInbound(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"voicePrompt":"no type"}`))
	assert.Error(t, err)

	msg, err := DecodeInbound([]byte(`{"type":"prompt","voicePrompt":"hi","last":true,"lang":"en-US"}`))
	require.NoError(t, err)
	assert.Equal(t, TypePrompt, msg.Type)
	assert.True(t, msg.Last)
	assert.Equal(t, "hi", msg.VoicePrompt)
}
