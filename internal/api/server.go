// Package api exposes the normalization layers of a model over HTTP.
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/born-ml/llama-parallel/internal/llama"
	"github.com/born-ml/llama-parallel/internal/sequenceparallel"
	"github.com/born-ml/llama-parallel/internal/tensor"
)

// NormInfo describes one normalization layer.
type NormInfo struct {
	Name             string  `json:"name"`
	Shape            []int   `json:"shape"`
	Eps              float64 `json:"eps"`
	Path             string  `json:"path"`
	Kernel           string  `json:"kernel,omitempty"`
	SequenceParallel bool    `json:"sequence_parallel"`
}

// NormList is the response of GET /v1/norms.
type NormList struct {
	Object string     `json:"object"`
	Data   []NormInfo `json:"data"`
}

// ForwardRequest is the body of POST /v1/norms/:name/forward.
type ForwardRequest struct {
	Input [][]float32 `json:"input"`
}

// ForwardResponse carries the normalized rows.
type ForwardResponse struct {
	ID     string      `json:"id"`
	Object string      `json:"object"`
	Norm   string      `json:"norm"`
	Path   string      `json:"path"`
	Output [][]float32 `json:"output"`
}

// ResponseError is the body of the "error" envelope.
type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// Server serves the norms of one model.
type Server[B tensor.Backend] struct {
	norms   *llama.Norms[B]
	backend B
}

// NewServer creates a server over norms.
func NewServer[B tensor.Backend](norms *llama.Norms[B], backend B) *Server[B] {
	return &Server[B]{norms: norms, backend: backend}
}

// Register mounts the routes on e.
func (s *Server[B]) Register(e *echo.Echo) {
	e.GET("/v1/norms", s.handleListNorms)
	e.GET("/v1/norms/:name", s.handleGetNorm)
	e.POST("/v1/norms/:name/forward", s.handleForward)
}

func (s *Server[B]) handleListNorms(c *echo.Context) error {
	names := s.norms.Names()
	data := make([]NormInfo, 0, len(names))
	for _, name := range names {
		info, err := s.info(name)
		if err != nil {
			return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
		}
		data = append(data, info)
	}
	return c.JSON(http.StatusOK, NormList{Object: "list", Data: data})
}

func (s *Server[B]) handleGetNorm(c *echo.Context) error {
	info, err := s.info(c.Param("name"))
	if err != nil {
		return writeNotFound(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server[B]) handleForward(c *echo.Context) error {
	name := c.Param("name")
	layer, err := s.norms.Get(name)
	if err != nil {
		return writeNotFound(c, err)
	}

	req, err := decodeJSON[ForwardRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid JSON body: "+err.Error(), "", "")
	}

	dim := layer.Shape().Last()
	if len(req.Input) == 0 {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "input must contain at least one row", "input", "")
	}
	flat := make([]float32, 0, len(req.Input)*dim)
	for i, row := range req.Input {
		if len(row) != dim {
			return writeError(c, http.StatusBadRequest, "invalid_request_error",
				fmt.Sprintf("input row %d has %d values, want %d", i, len(row), dim), "input", "dimension_mismatch")
		}
		flat = append(flat, row...)
	}

	x, err := tensor.FromSlice(flat, tensor.Shape{len(req.Input), dim}, s.backend)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "input", "")
	}
	y := layer.Forward(x).Data()

	output := make([][]float32, len(req.Input))
	for i := range output {
		output[i] = y[i*dim : (i+1)*dim]
	}

	return c.JSON(http.StatusOK, ForwardResponse{
		ID:     "norm-" + uuid.NewString(),
		Object: "norm.forward",
		Norm:   name,
		Path:   layer.Path().String(),
		Output: output,
	})
}

func (s *Server[B]) info(name string) (NormInfo, error) {
	l, err := s.norms.Get(name)
	if err != nil {
		return NormInfo{}, err
	}
	info := NormInfo{
		Name:             name,
		Shape:            l.Shape(),
		Eps:              l.Epsilon(),
		Path:             l.Path().String(),
		SequenceParallel: sequenceparallel.IsSequenceParallel(l.Weight()),
	}
	if k := l.Kernel(); k != nil {
		info.Kernel = k.Name()
	}
	return info, nil
}

func writeNotFound(c *echo.Context, err error) error {
	if errors.Is(err, llama.ErrUnknownNorm) {
		return writeError(c, http.StatusNotFound, "not_found_error", err.Error(), "name", "norm_not_found")
	}
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
