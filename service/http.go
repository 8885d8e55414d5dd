package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/dnscache"
)

const maxResponseSize = 1 << 20

// Resolver caches DNS lookups of the outbound client. Refresh it periodically.
var Resolver = &dnscache.Resolver{}

// NewHTTPClient returns the client used for the external services.
func NewHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (conn net.Conn, err error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := Resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				conn, err = dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
			}
			return nil, err
		},
		MaxIdleConns:          32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// apiResponse is the envelope of the external services. Success is a pointer
// because the account service may omit it.
type apiResponse struct {
	Success *bool               `json:"success"`
	Message string              `json:"message"`
	Code    string              `json:"code"`
	Field   string              `json:"field"`
	Data    jsoniter.RawMessage `json:"data"`
}

type rawResponse struct {
	Status int
	Body   apiResponse
}

func (r rawResponse) ok() bool {
	if r.Body.Success != nil {
		return *r.Body.Success && r.Status/100 == 2
	}
	return r.Status/100 == 2
}

func joinURL(base string, p string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + p
	return u.String(), nil
}

// postJSON sends v as JSON.
func postJSON(ctx context.Context, client *http.Client, endpoint string, v interface{}) (rawResponse, error) {
	b, err := jsoniter.Marshal(v)
	if err != nil {
		return rawResponse{}, err
	}
	return post(ctx, client, endpoint, "application/json", bytes.NewReader(b))
}

// post performs the request and decodes the envelope. Transport failures are
// classified as model.ErrNetworkUnavailable; an undecodable body leaves the envelope empty.
func post(ctx context.Context, client *http.Client, endpoint string, contentType string, body io.Reader) (rawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return rawResponse{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return rawResponse{}, &model.RemoteError{Kind: model.ErrNetworkUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return rawResponse{}, &model.RemoteError{Kind: model.ErrNetworkUnavailable, Message: err.Error()}
	}
	r := rawResponse{Status: resp.StatusCode}
	if len(bytes.TrimSpace(b)) > 0 {
		if err := jsoniter.Unmarshal(b, &r.Body); err != nil {
			// a non-JSON body is kept as the message
			r.Body = apiResponse{Message: strings.TrimSpace(string(b))}
			if len(r.Body.Message) > 200 {
				r.Body.Message = r.Body.Message[:200]
			}
		}
	}
	return r, nil
}

func messageOr(r rawResponse, fallback string) string {
	if r.Body.Message != "" {
		return r.Body.Message
	}
	if fallback != "" {
		return fallback
	}
	return fmt.Sprintf("unexpected status %v", r.Status)
}

func isRemote(err error) bool {
	var re *model.RemoteError
	return errors.As(err, &re)
}
