// package testing contains shared testing utilities
package testing

import (
	"errors"
	"io"
	"net/http"
	"strings"
)

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// SequenceRoundTripper returns canned responses in order, repeating the
// last one when the sequence runs out.
type SequenceRoundTripper struct {
	responses []*http.Response
	errs      []error
	calls     int
}

func NewSequenceRoundTripper(responses []*http.Response, errs []error) *SequenceRoundTripper {
	return &SequenceRoundTripper{responses: responses, errs: errs}
}

// Calls returns the number of requests seen so far.
func (s *SequenceRoundTripper) Calls() int { return s.calls }

func (s *SequenceRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.responses[i], err
}

// JSONResponse builds an *http.Response carrying a JSON body.
func JSONResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}
