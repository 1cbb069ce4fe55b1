// Package lambdaserver serves the sync-expenses contract from an API Gateway proxy event.
package lambdaserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/and161185/ovis-qbsync/internal/convert"
	"github.com/and161185/ovis-qbsync/internal/errs"
	httpserver "github.com/and161185/ovis-qbsync/internal/server/http"
	"github.com/and161185/ovis-qbsync/internal/service"
	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "authorization, x-client-info, apikey, content-type",
	"Access-Control-Allow-Methods": "POST, OPTIONS",
}

// Handler adapts ImportService to API Gateway.
type Handler struct {
	auth    service.AuthService
	imports service.ImportService
	log     *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(auth service.AuthService, imports service.ImportService, log *zap.Logger) *Handler {
	return &Handler{auth: auth, imports: imports, log: log}
}

// Handle verifies the admin session before any remote work, then runs an import.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	switch req.HTTPMethod {
	case http.MethodOptions:
		return respond(http.StatusOK, nil), nil
	case http.MethodPost:
	default:
		return respond(http.StatusMethodNotAllowed, convert.ToErrorResponse("method not allowed")), nil
	}

	tok, err := httpserver.BearerToken(authorization(req.Headers))
	if err != nil {
		return h.fail(errs.ErrUnauthorized), nil
	}
	if _, err := h.auth.VerifyAdmin(ctx, tok); err != nil {
		return h.fail(err), nil
	}

	var body convert.SyncRequest
	if strings.TrimSpace(req.Body) != "" {
		if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
			return h.fail(errs.ErrInvalidInput), nil
		}
	}
	ir, err := convert.FromSyncRequest(body)
	if err != nil {
		return h.fail(err), nil
	}
	res, err := h.imports.ImportTransactions(ctx, ir)
	if err != nil {
		return h.fail(err), nil
	}
	return respond(http.StatusOK, convert.ToSyncResponse(res)), nil
}

func (h *Handler) fail(err error) events.APIGatewayProxyResponse {
	code := httpserver.StatusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("sync-expenses failed", zap.Error(err))
	}
	return respond(code, convert.ToErrorResponse(err.Error()))
}

func respond(code int, body any) events.APIGatewayProxyResponse {
	hdr := make(map[string]string, len(corsHeaders)+1)
	for k, v := range corsHeaders {
		hdr[k] = v
	}
	out := events.APIGatewayProxyResponse{StatusCode: code, Headers: hdr}
	if body == nil {
		return out
	}
	b, err := json.Marshal(body)
	if err != nil {
		out.StatusCode = http.StatusInternalServerError
		return out
	}
	hdr["Content-Type"] = "application/json"
	out.Body = string(b)
	return out
}

// authorization finds the Authorization header; API Gateway keeps the client's casing.
func authorization(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "Authorization") {
			return v
		}
	}
	return ""
}
