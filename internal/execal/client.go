// Package execal is the API client for the document-analysis backend.
//
// The client is stateless: the bearer token is passed on every
// authenticated call and is never cached. A Client is safe for concurrent
// use by any number of workflows.
package execal

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"execal-client/internal/authsession"
	"execal-client/internal/decode"
	"execal-client/internal/shared/metrics"
	"execal-client/internal/transport"
)

const (
	pathRegister     = "/auth/register"
	pathLogin        = "/auth/login"
	pathUpload       = "/upload/document"
	pathHistory      = "/upload/history"
	pathReport       = "/report/"
	pathReferences   = "/tests/list"
	pathConsultation = "/consultation/request"
	pathRoot         = "/"

	uploadField = "file"
	tokenField  = "access_token"
)

// Sender issues one HTTP exchange. *transport.Client implements it.
type Sender interface {
	Send(ctx context.Context, r transport.Request) (transport.Response, error)
}

// Client orchestrates backend calls over a Sender.
type Client struct {
	t Sender
}

// New constructs a Client.
func New(t Sender) *Client {
	return &Client{t: t}
}

// NewHTTP builds a Client over a transport rooted at baseURL.
func NewHTTP(baseURL string, opts transport.Options) (*Client, error) {
	t, err := transport.New(baseURL, opts)
	if err != nil {
		return nil, err
	}
	return New(t), nil
}

// Register creates an account. Any 2xx status is success. A duplicate
// registration surfaces as the backend's APIError; it is not special-cased.
func (c *Client) Register(ctx context.Context, email, password string) error {
	_, err := c.do(ctx, transport.Request{
		Op:     "register",
		Method: http.MethodPost,
		Path:   pathRegister,
		Body:   transport.JSONBody{Value: Credentials{Email: email, Password: password}},
	})
	return err
}

// Login exchanges credentials for an opaque bearer token. On any error the
// returned token is empty.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	resp, err := c.do(ctx, transport.Request{
		Op:     "login",
		Method: http.MethodPost,
		Path:   pathLogin,
		Body:   transport.JSONBody{Value: Credentials{Email: email, Password: password}},
	})
	if err != nil {
		return "", err
	}
	token, err := decode.ExtractString(resp.Body, tokenField)
	if err != nil {
		return "", c.fail(err)
	}
	return token, nil
}

// Upload sends one document as multipart field "file" and returns the
// analysis id assigned by the backend. An empty contentType is sent as
// application/octet-stream.
func (c *Client) Upload(ctx context.Context, token, fileName, contentType string, data []byte) (int64, error) {
	resp, err := c.do(ctx, transport.Request{
		Op:     "upload",
		Method: http.MethodPost,
		Path:   pathUpload,
		Header: authsession.Header(token),
		Body: transport.MultipartBody{
			Field:       uploadField,
			FileName:    fileName,
			ContentType: contentType,
			Data:        data,
		},
	})
	if err != nil {
		return 0, err
	}
	id, err := decode.ExtractAnalysisID(resp.Body)
	if err != nil {
		return 0, c.fail(err)
	}
	return id, nil
}

// GetReport fetches the report for id. JSON bodies are pretty-printed and
// any other body is returned as-is.
func (c *Client) GetReport(ctx context.Context, token string, id int64) (Report, error) {
	resp, err := c.do(ctx, transport.Request{
		Op:     "report",
		Method: http.MethodGet,
		Path:   reportPath(id),
		Header: authsession.Header(token),
	})
	if err != nil {
		return Report{}, err
	}
	return Report{AnalysisID: id, Body: decode.PrettyPrint(string(resp.Body))}, nil
}

// GetReportPDF downloads the rendered report for id, unchanged.
func (c *Client) GetReportPDF(ctx context.Context, token string, id int64) (ReportPDF, error) {
	resp, err := c.do(ctx, transport.Request{
		Op:     "report_pdf",
		Method: http.MethodGet,
		Path:   reportPath(id) + "/pdf",
		Header: authsession.Header(token),
	})
	if err != nil {
		return ReportPDF{}, err
	}
	return ReportPDF{AnalysisID: id, Bytes: resp.Body}, nil
}

// Ping fetches the backend root status text.
func (c *Client) Ping(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, transport.Request{Op: "ping", Method: http.MethodGet, Path: pathRoot})
	if err != nil {
		return "", err
	}
	return decode.PrettyPrint(string(resp.Body)), nil
}

// History lists the analyses of the authenticated user.
func (c *Client) History(ctx context.Context, token string) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := c.getJSON(ctx, "history", pathHistory, token, &out)
	return out, err
}

// ReferenceTests lists the lab tests the backend knows reference ranges for.
func (c *Client) ReferenceTests(ctx context.Context) ([]ReferenceTest, error) {
	var out []ReferenceTest
	err := c.getJSON(ctx, "reference_tests", pathReferences, "", &out)
	return out, err
}

// RequestConsultation asks the backend to schedule a consultation.
func (c *Client) RequestConsultation(ctx context.Context, token string) (Consultation, error) {
	resp, err := c.do(ctx, transport.Request{
		Op:     "consultation",
		Method: http.MethodPost,
		Path:   pathConsultation,
		Header: authsession.Header(token),
	})
	if err != nil {
		return Consultation{}, err
	}
	var out Consultation
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return Consultation{}, c.fail(&decode.MalformedResponse{Raw: string(resp.Body), Reason: "consultation: " + err.Error()})
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, op, path, token string, dst any) error {
	resp, err := c.do(ctx, transport.Request{
		Op:     op,
		Method: http.MethodGet,
		Path:   path,
		Header: authsession.Header(token),
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, dst); err != nil {
		return c.fail(&decode.MalformedResponse{Raw: string(resp.Body), Reason: op + ": " + err.Error()})
	}
	return nil
}

// do sends r and converts non-2xx responses into *APIError.
func (c *Client) do(ctx context.Context, r transport.Request) (transport.Response, error) {
	resp, err := c.t.Send(ctx, r)
	if err != nil {
		return transport.Response{}, c.fail(err)
	}
	if !resp.OK() {
		return transport.Response{}, c.fail(&APIError{Op: r.Op, Status: resp.Status, Body: resp.Body})
	}
	return resp, nil
}

func (c *Client) fail(err error) error {
	metrics.IncFailure(Kind(err))
	return err
}

func reportPath(id int64) string {
	return pathReport + strconv.FormatInt(id, 10)
}
