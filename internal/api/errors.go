package api

import (
	"errors"

	"devmarket/internal/apperr"

	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorPayload struct {
	Error errorBody `json:"error"`
}

func writeError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), errorPayload{Error: errorBody{
		Kind:    apperr.Kind(err),
		Message: publicMessage(err),
	}})
}

func abortWithError(c *gin.Context, err error) {
	writeError(c, err)
	c.Abort()
}

// publicMessage hides internal error text; classified errors are safe to show.
func publicMessage(err error) string {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case apperr.Kind(err) == "internal":
		return "internal error"
	default:
		return err.Error()
	}
}
