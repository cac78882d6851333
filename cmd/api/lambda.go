package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"pathsynch/internal/core"
)

// runLambda starts the server in AWS Lambda mode, translating API Gateway
// HTTP API (payload v2) events onto the chi router. The translation is
// deliberately small: an event becomes an *http.Request, the router writes
// into an in-memory ResponseWriter, and the captured response becomes the
// proxy reply.
func runLambda(srv *core.Server, logger *slog.Logger) error {
	handler := srv.Handler()
	logger.Info("starting in Lambda mode")

	lambda.Start(func(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return proxyEvent(ctx, handler, event)
	})
	return nil
}

// proxyEvent serves one API Gateway event through the router.
func proxyEvent(ctx context.Context, handler http.Handler, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	req, err := eventToRequest(ctx, event)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}

	rec := newLambdaResponseWriter()
	handler.ServeHTTP(rec, req)

	return rec.response(), nil
}

// eventToRequest builds an *http.Request from the proxy event.
func eventToRequest(ctx context.Context, event events.APIGatewayV2HTTPRequest) (*http.Request, error) {
	body := event.Body
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("decoding request body: %w", err)
		}
		body = string(decoded)
	}

	url := event.RawPath
	if event.RawQueryString != "" {
		url += "?" + event.RawQueryString
	}

	req, err := http.NewRequestWithContext(ctx, event.RequestContext.HTTP.Method, url, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	for name, value := range event.Headers {
		req.Header.Set(name, value)
	}
	for _, cookie := range event.Cookies {
		req.Header.Add("Cookie", cookie)
	}
	if ip := event.RequestContext.HTTP.SourceIP; ip != "" {
		req.RemoteAddr = ip + ":0"
	}
	req.RequestURI = url

	return req, nil
}

// lambdaResponseWriter captures a handler's response in memory.
type lambdaResponseWriter struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newLambdaResponseWriter() *lambdaResponseWriter {
	return &lambdaResponseWriter{
		header: make(http.Header),
		status: http.StatusOK,
	}
}

func (w *lambdaResponseWriter) Header() http.Header { return w.header }

func (w *lambdaResponseWriter) WriteHeader(status int) { w.status = status }

func (w *lambdaResponseWriter) Write(p []byte) (int, error) { return w.body.Write(p) }

// response converts the captured state to a proxy response. Textual payloads
// (JSON, HTML, CSV) travel as-is; everything else (the pitch ZIP archive) is
// base64-encoded per the proxy contract.
func (w *lambdaResponseWriter) response() events.APIGatewayV2HTTPResponse {
	headers := make(map[string]string, len(w.header))
	var cookies []string
	for name, values := range w.header {
		if http.CanonicalHeaderKey(name) == "Set-Cookie" {
			cookies = append(cookies, values...)
			continue
		}
		headers[name] = strings.Join(values, ",")
	}

	resp := events.APIGatewayV2HTTPResponse{
		StatusCode: w.status,
		Headers:    headers,
		Cookies:    cookies,
	}

	if isTextual(w.header.Get("Content-Type")) {
		resp.Body = w.body.String()
	} else {
		resp.Body = base64.StdEncoding.EncodeToString(w.body.Bytes())
		resp.IsBase64Encoded = true
	}
	return resp
}

// isTextual reports whether a content type can be carried in the proxy
// response without base64 encoding.
func isTextual(contentType string) bool {
	mediaType := contentType
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))

	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/json", mediaType == "application/xml":
		return true
	case strings.HasSuffix(mediaType, "+json"), strings.HasSuffix(mediaType, "+xml"):
		return true
	}
	return false
}
