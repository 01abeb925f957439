package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tablechat/tablechat/internal/agent"
	"github.com/tablechat/tablechat/internal/config"
)

func missingKeyMessage() string {
	msg := "no agent API key configured; set TABLECHAT_API_KEY"
	if p, err := config.SecretsPath(); err == nil {
		msg += " or put api_key in " + p
	}
	return msg
}

// errorStatus maps a dispatch error to the HTTP status and the message
// the page shows inline. Validation problems are the caller's fault
// (400) and a missing key is a local configuration problem (503);
// anything that went wrong talking to the agent is a bad gateway (502).
func errorStatus(err error) (int, string) {
	var (
		rateErr    *agent.RateLimitError
		quotaErr   *agent.QuotaExceededError
		authErr    *agent.AuthError
		modelErr   *agent.ModelNotFoundError
		badReqErr  *agent.BadRequestError
		serverErr  *agent.ServerError
		unreachErr *agent.UnreachableError
		blockedErr *agent.BlockedError
		apiErr     *agent.APIError
	)
	switch {
	case errors.Is(err, agent.ErrEmptyQuestion):
		return http.StatusBadRequest, "question must not be empty"
	case errors.Is(err, agent.ErrNoDataset):
		return http.StatusBadRequest, "upload a CSV before asking questions"
	case errors.Is(err, agent.ErrNoAPIKey):
		return http.StatusServiceUnavailable, missingKeyMessage()
	case errors.As(err, &rateErr):
		if rateErr.RetryAfter > 0 {
			return http.StatusBadGateway, fmt.Sprintf(
				"the analysis service is rate limiting; wait %s and re-send the question", rateErr.RetryAfter)
		}
		return http.StatusBadGateway, "the analysis service is rate limiting; wait a moment and re-send the question"
	case errors.As(err, &quotaErr):
		return http.StatusBadGateway, "the API key is out of quota; check the plan and billing details"
	case errors.As(err, &authErr):
		return http.StatusBadGateway, "the analysis service rejected the API key"
	case errors.As(err, &modelErr):
		return http.StatusBadGateway, "the configured model is not available on the analysis service"
	case errors.As(err, &badReqErr):
		return http.StatusBadGateway, "the analysis service rejected the request: " + badReqErr.Message
	case errors.As(err, &serverErr):
		return http.StatusBadGateway, "the analysis service had an internal error; re-send the question"
	case errors.As(err, &unreachErr):
		return http.StatusBadGateway, "could not reach the analysis service: " + unreachErr.Host
	case errors.As(err, &blockedErr):
		return http.StatusBadGateway, "the analysis service returned no usable answer: " + blockedErr.Reason
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "the analysis service returned an error: " + apiErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, "the analysis timed out; try again or ask a simpler question"
	case errors.Is(err, context.Canceled):
		return 499, "request cancelled"
	default:
		return http.StatusInternalServerError, "asking the agent failed: " + err.Error()
	}
}
