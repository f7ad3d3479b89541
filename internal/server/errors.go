package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/pipeline"
	"github.com/jonathan/content-pipeline/internal/pipeline/steps"
	"github.com/jonathan/content-pipeline/internal/types"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound   *pipeline.JobNotFoundError
		mismatch   *pipeline.VersionMismatchError
		exists     *pipeline.JobExistsError
		busy       *pipeline.JobBusyError
		refused    *pipeline.BootstrapRefusedError
		invalid    *pipeline.InvalidChunkError
		badBoot    *pipeline.InvalidBootstrapError
		depErr     *steps.DependencyError
		credErr    *steps.MissingCredentialError
		validation *ErrValidation
		fields     validator.ValidationErrors
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &notFound), errors.As(err, &refused):
		return http.StatusNotFound
	case errors.As(err, &mismatch), errors.As(err, &exists), errors.As(err, &busy):
		return http.StatusConflict
	case errors.As(err, &depErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &invalid), errors.As(err, &badBoot),
		errors.As(err, &validation), errors.As(err, &fields):
		return http.StatusBadRequest
	case errors.As(err, &credErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody builds the JSON body for err. Prerequisite failures name the
// missing chunk and brief validation failures list the offending fields.
func errorBody(err error) map[string]any {
	body := map[string]any{"error": err.Error()}

	var depErr *steps.DependencyError
	if errors.As(err, &depErr) {
		body["missingChunk"] = depErr.FirstMissing()
		body["missingChunks"] = depErr.MissingDependencies
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		body["error"] = "invalid content brief"
		body["fields"] = types.FieldErrors(err)
	}
	var mismatch *pipeline.VersionMismatchError
	if errors.As(err, &mismatch) {
		body["jobVersion"] = mismatch.JobVersion
		body["currentVersion"] = mismatch.Current
	}
	var invalid *pipeline.InvalidChunkError
	if errors.As(err, &invalid) {
		valid := make([]string, len(jobs.ChunkOrder))
		for i, k := range jobs.ChunkOrder {
			valid[i] = string(k)
		}
		body["validChunks"] = valid
	}
	return body
}
