// Copyright (c) 2016-2019 Uber Technologies, Inc.
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

// Package httputil provides a thin wrapper around the http client with
// per-request options for timeouts, TLS, headers and retries.
package httputil

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// StatusError occurs if an HTTP response has an unexpected status code.
type StatusError struct {
	Method       string
	URL          string
	Status       int
	Header       http.Header
	ResponseDump string
}

// NewStatusError returns a new StatusError.
func NewStatusError(resp *http.Response) StatusError {
	defer resp.Body.Close()
	respBytes, err := io.ReadAll(resp.Body)
	respDump := string(respBytes)
	if err != nil {
		respDump = fmt.Sprintf("failed to dump response: %s", err)
	}
	return StatusError{
		Method:       resp.Request.Method,
		URL:          resp.Request.URL.String(),
		Status:       resp.StatusCode,
		Header:       resp.Header,
		ResponseDump: respDump,
	}
}

func (e StatusError) Error() string {
	if e.ResponseDump == "" {
		return fmt.Sprintf("%s %s %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s %d: %s", e.Method, e.URL, e.Status, e.ResponseDump)
}

// IsStatus returns true if err is a StatusError of the given status.
func IsStatus(err error, status int) bool {
	statusErr, ok := err.(StatusError)
	return ok && statusErr.Status == status
}

// IsNotFound returns true if err is a 404 StatusError.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// NetworkError occurs on any Send error which occurred while attempting to
// send the HTTP request, e.g. the connection could not be established.
type NetworkError struct {
	err error
}

func (e NetworkError) Error() string {
	return fmt.Sprintf("network error: %s", e.err)
}

// IsNetworkError returns true if err is a NetworkError.
func IsNetworkError(err error) bool {
	_, ok := err.(NetworkError)
	return ok
}

type sendOptions struct {
	body          io.Reader
	timeout       time.Duration
	acceptedCodes map[int]bool
	headers       map[string]string
	redirect      func(req *http.Request, via []*http.Request) error
	retry         retryOptions
	transport     http.RoundTripper
	tls           *tls.Config
}

// SendOption allows overriding defaults for the Send function.
type SendOption func(*sendOptions)

// SendNoop returns a no-op option.
func SendNoop() SendOption {
	return func(o *sendOptions) {}
}

// SendBody specifies a body for http request.
func SendBody(body io.Reader) SendOption {
	return func(o *sendOptions) { o.body = body }
}

// SendTimeout specifies timeout for http request.
func SendTimeout(timeout time.Duration) SendOption {
	return func(o *sendOptions) { o.timeout = timeout }
}

// SendHeaders specifies headers for http request.
func SendHeaders(headers map[string]string) SendOption {
	return func(o *sendOptions) { o.headers = headers }
}

// SendAcceptedCodes specifies accepted codes for http request.
func SendAcceptedCodes(codes ...int) SendOption {
	m := make(map[int]bool)
	for _, c := range codes {
		m[c] = true
	}
	return func(o *sendOptions) { o.acceptedCodes = m }
}

// SendTransport specifies transport for http request.
func SendTransport(transport http.RoundTripper) SendOption {
	return func(o *sendOptions) { o.transport = transport }
}

// SendTLS specifies a tls config for http request. A nil config means
// plain http.
func SendTLS(config *tls.Config) SendOption {
	return func(o *sendOptions) {
		if config == nil {
			return
		}
		o.tls = config
	}
}

type retryOptions struct {
	backoff    backoff.BackOff
	extraCodes map[int]bool
	enabled    bool
}

// RetryOption allows overriding defaults for the SendRetry option.
type RetryOption func(*retryOptions)

// RetryBackoff specifies the backoff schedule of the retry.
func RetryBackoff(b backoff.BackOff) RetryOption {
	return func(o *retryOptions) { o.backoff = b }
}

// RetryCodes adds more status codes to be retried, in addition to the
// default 5XX codes.
func RetryCodes(codes ...int) RetryOption {
	return func(o *retryOptions) {
		for _, c := range codes {
			o.extraCodes[c] = true
		}
	}
}

// SendRetry will retry the request on network and 5XX errors per the
// configured backoff.
func SendRetry(opts ...RetryOption) SendOption {
	retry := retryOptions{
		backoff: backoff.WithMaxRetries(
			backoff.NewConstantBackOff(250*time.Millisecond), 2),
		extraCodes: make(map[int]bool),
		enabled:    true,
	}
	for _, opt := range opts {
		opt(&retry)
	}
	return func(o *sendOptions) { o.retry = retry }
}

func (o *sendOptions) shouldRetry(resp *http.Response, err error) bool {
	if !o.retry.enabled {
		return false
	}
	if err != nil {
		return true
	}
	if resp.StatusCode >= 500 && !o.acceptedCodes[resp.StatusCode] {
		return true
	}
	return o.retry.extraCodes[resp.StatusCode]
}

// Send sends an HTTP request. May return NetworkError or StatusError.
func Send(method, rawurl string, options ...SendOption) (*http.Response, error) {
	opts := sendOptions{
		timeout:       60 * time.Second,
		acceptedCodes: map[int]bool{http.StatusOK: true},
		headers:       map[string]string{},
	}
	for _, o := range options {
		o(&opts)
	}

	if opts.tls != nil {
		rawurl = strings.Replace(rawurl, "http://", "https://", 1)
	}

	req, err := http.NewRequest(method, rawurl, opts.body)
	if err != nil {
		return nil, fmt.Errorf("new request: %s", err)
	}
	for key, val := range opts.headers {
		req.Header.Set(key, val)
	}

	transport := opts.transport
	if transport == nil {
		transport = &http.Transport{TLSClientConfig: opts.tls}
	}
	client := http.Client{
		Timeout:       opts.timeout,
		CheckRedirect: opts.redirect,
		Transport:     transport,
	}

	var resp *http.Response
	if opts.retry.enabled {
		opts.retry.backoff.Reset()
	}
	for {
		resp, err = client.Do(req)
		if !opts.shouldRetry(resp, err) {
			break
		}
		d := opts.retry.backoff.NextBackOff()
		if d == backoff.Stop {
			break
		}
		time.Sleep(d)
	}
	if err != nil {
		return nil, NetworkError{err}
	}
	if !opts.acceptedCodes[resp.StatusCode] {
		return nil, NewStatusError(resp)
	}
	return resp, nil
}

// Get sends a GET http request.
func Get(url string, options ...SendOption) (*http.Response, error) {
	return Send("GET", url, options...)
}

// Post sends a POST http request.
func Post(url string, options ...SendOption) (*http.Response, error) {
	return Send("POST", url, options...)
}
