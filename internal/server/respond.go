package server

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/llm"
)

var errNoProviders = common.NewAppError("NO_PROVIDERS", "no llm providers configured",
	fmt.Errorf("%w: %w", llm.ErrNoProviderConfigured, common.ErrUpstream))

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func writeError(c *gin.Context, err error) {
	code := "INTERNAL"
	var ae *common.AppError
	if errors.As(err, &ae) {
		code = ae.Code
	}
	c.JSON(common.HTTPStatus(err), errorBody{Error: errorDetail{Code: code, Message: common.PublicMessage(err)}})
}

func bindError(err error) error {
	return common.NewAppError("INVALID_INPUT", "invalid request body: "+err.Error(), common.ErrInvalidInput)
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, common.InvalidInputf("%s must be a UUID", name)
	}
	return id, nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, common.InvalidInputf("%s must be a non-negative integer", name)
	}
	return n, nil
}
