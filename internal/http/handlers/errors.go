package handlers

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/pipeline"
)

// pipelineError maps a pipeline failure to an HTTP problem.
func pipelineError(msg string, err error) error {
	switch {
	case errors.Is(err, models.ErrCourseNotFound),
		errors.Is(err, models.ErrVideoNotFound),
		errors.Is(err, models.ErrProcessNotFound):
		return huma.Error404NotFound(msg, err)
	}

	switch pipeline.KindOf(err) {
	case pipeline.KindValidation:
		return huma.Error422UnprocessableEntity(msg, err)
	case pipeline.KindConfigurationGap:
		return huma.Error409Conflict(msg, err)
	case pipeline.KindTransientExternal:
		return huma.Error503ServiceUnavailable(msg, err)
	}
	return huma.Error500InternalServerError(msg, err)
}
