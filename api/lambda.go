package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"macrolog/oauth"
)

// HandleLambda serves the proxy routes behind an API Gateway HTTP API.
func (h *Handler) HandleLambda(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if method := req.RequestContext.HTTP.Method; method != "" && method != http.MethodPost {
		return lambdaResponse(http.StatusMethodNotAllowed, oauth.ErrorBody{Error: "Method not allowed"})
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return lambdaResponse(http.StatusBadRequest, oauth.ErrorBody{Error: msgInvalidJSON})
		}
		body = decoded
	}

	status, payload := h.Handle(ctx, req.RawPath, body)
	return lambdaResponse(status, payload)
}

func lambdaResponse(status int, payload any) (events.APIGatewayV2HTTPResponse, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(b),
	}, nil
}
