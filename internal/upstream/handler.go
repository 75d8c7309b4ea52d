package upstream

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"MatrixConnectionRelay/internal/query"
)

// Path is where the backend listens for questions.
const Path = "/regbutton"

// Answerer produces the answer to one question.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// EchoAnswerer is the stand-in backend: it repeats the question.
type EchoAnswerer struct{}

func (EchoAnswerer) Answer(_ context.Context, question string) (string, error) {
	return "The Matrix heard: " + question, nil
}

type Handler struct {
	answerer  Answerer
	validator *validator.Validate
	logger    zerolog.Logger
}

func NewHandler(a Answerer, logger zerolog.Logger) (*Handler, error) {
	if a == nil {
		return nil, errors.New("upstream: answerer must not be nil")
	}
	return &Handler{
		answerer:  a,
		validator: validator.New(),
		logger:    logger,
	}, nil
}

// Register mounts the backend route on r.
func Register(r gin.IRoutes, h *Handler) {
	r.POST(Path, h.regbutton)
}

func (h *Handler) regbutton(c *gin.Context) {
	var q query.Query
	if err := c.ShouldBindJSON(&q); err != nil {
		h.logger.Warn().Err(err).Msg("invalid question payload")
		c.JSON(http.StatusBadRequest, query.Reply{Error: "invalid JSON body"})
		return
	}

	q.InputData = strings.TrimSpace(q.InputData)
	if err := h.validator.Struct(q); err != nil {
		c.JSON(http.StatusBadRequest, query.Reply{Error: "input_data is required"})
		return
	}

	answer, err := h.answerer.Answer(c.Request.Context(), q.InputData)
	if err != nil {
		h.logger.Error().Err(err).Msg("answer failed")
		c.JSON(http.StatusInternalServerError, query.Reply{Error: err.Error()})
		return
	}

	h.logger.Debug().Str("question", q.InputData).Msg("answered")
	c.JSON(http.StatusOK, query.Reply{Message: answer})
}
