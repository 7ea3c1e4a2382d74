// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package httputil

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/require"
)

func TestSendAcceptedCodes(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(499)
	}))
	defer server.Close()

	_, err := Get(server.URL, SendAcceptedCodes(200, 499))
	require.NoError(err)
}

func TestSendReturnsStatusError(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := Get(server.URL)
	require.Error(err)
	require.True(IsNotFound(err))
	require.Equal(http.StatusNotFound, err.(StatusError).Status)
}

func TestSendHeaders(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("*/*", r.Header.Get("Accept"))
	}))
	defer server.Close()

	_, err := Get(server.URL, SendHeaders(map[string]string{"Accept": "*/*"}))
	require.NoError(err)
}

func TestSendRetryOn5XX(t *testing.T) {
	require := require.New(t)

	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}))
	defer server.Close()

	_, err := Get(
		server.URL,
		SendRetry(RetryBackoff(backoff.WithMaxRetries(
			backoff.NewConstantBackOff(10*time.Millisecond), 4))))
	require.NoError(err)
	require.Equal(int64(3), atomic.LoadInt64(&calls))
}

func TestSendRetryExhaustsBackoff(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := Get(
		server.URL,
		SendRetry(RetryBackoff(backoff.WithMaxRetries(
			backoff.NewConstantBackOff(10*time.Millisecond), 2))))
	require.Error(err)
	require.Equal(http.StatusServiceUnavailable, err.(StatusError).Status)
}

func TestSendNetworkError(t *testing.T) {
	require := require.New(t)

	// Nothing is listening here.
	_, err := Get("http://127.0.0.1:1")
	require.Error(err)
	require.True(IsNetworkError(err))
}
