// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package testutil holds helpers shared by package tests
package testutil

import (
	"errors"
	"testing"
	"time"

	"github.com/capidao/capiledger/ledger"
	"github.com/stretchr/testify/require"
)

// WaitForCondition polls condition until it returns true or timeout expires
func WaitForCondition(
	t *testing.T,
	condition func() bool,
	timeout time.Duration,
	msg string,
) {
	t.Helper()
	require.Eventually(t, condition, timeout, 10*time.Millisecond, msg)
}

// RequireReceive waits for a value on ch
func RequireReceive[T any](
	t *testing.T,
	ch <-chan T,
	timeout time.Duration,
	msg string,
) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for channel receive: %s", msg)
		var zero T
		return zero
	}
}

// RequireNoReceive fails if anything arrives on ch within duration
func RequireNoReceive[T any](
	t *testing.T,
	ch <-chan T,
	duration time.Duration,
	msg string,
) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value received on channel: %v: %s", v, msg)
	case <-time.After(duration):
	}
}

// RequireRejection asserts that err is a ledger rejection matching target and
// of the given kind
func RequireRejection(
	t *testing.T,
	err error,
	target error,
	kind ledger.RejectionKind,
) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, target)
	var rejErr *ledger.RejectionError
	require.True(t, errors.As(err, &rejErr), "not a rejection: %v", err)
	require.Equal(t, kind, rejErr.Kind, "rejection kind for %v", err)
}
