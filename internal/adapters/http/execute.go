package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pad/internal/execute"
)

type ExecuteRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
	Stdin    string `json:"stdin"`
}

// handleExecute proxies a run request to the remote execution service. The
// sync core never sees this traffic; it exists so every participant can run
// the shared buffer without leaving the page.
func handleExecute(exec *execute.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ExecuteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code and language are required"})
			return
		}

		out, err := exec.Run(c.Request.Context(), req.Language, req.Code, req.Stdin)
		switch {
		case errors.Is(err, execute.ErrUnknownLanguage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, execute.ErrMissingCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case err != nil:
			log.Error().Err(err).Str("module", "adapters.http").Msg("execute proxy")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to run code"})
		default:
			c.Data(http.StatusOK, "application/json", out)
		}
	}
}
