// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"context"
	"testing"
	"time"
)

func TestGoRecoversPanic(t *testing.T) {
	recovered := make(chan interface{}, 1)
	prev := PanicHandler
	PanicHandler = func(_ context.Context, r interface{}, _ []byte) { recovered <- r }
	defer func() { PanicHandler = prev }()

	Go(context.Background(), func() { panic("boom") })

	select {
	case r := <-recovered:
		if r != "boom" {
			t.Errorf("expected boom, got %v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("panic was not recovered")
	}
}
