package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelcut/internal/domain"
	"github.com/dunamismax/pixelcut/internal/id"
	"github.com/dunamismax/pixelcut/internal/pipeline"
	"github.com/sirupsen/logrus"
)

func (s *Server) handleRemoveBackground(w http.ResponseWriter, r *http.Request) {
	params, err := parseRemovalQuery(r.URL.Query())
	if err == nil {
		err = params.Validate()
	}
	if err != nil {
		s.metrics.removeFailures.WithLabelValues(pipeline.KindOf(err).String()).Inc()
		writeError(w, statusForError(err), err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	requestID := id.New()
	res, err := s.processor.Process(ctx, pipeline.Request{
		JobID:  requestID,
		Source: params.URL,
		Params: params,
	})
	if err != nil {
		s.writeProcessError(w, requestID, params.URL, err)
		return
	}
	s.metrics.observeTimings(res.Timings)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.PNG)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.PNG); err != nil {
		s.logger.WithField("request_id", requestID).WithError(err).Warn("write response failed")
	}
}

func (s *Server) writeProcessError(w http.ResponseWriter, requestID, source string, err error) {
	kind := pipeline.KindOf(err)
	s.metrics.removeFailures.WithLabelValues(kind.String()).Inc()

	status := statusForError(err)
	entry := s.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"url":        source,
		"kind":       kind.String(),
	}).WithError(err)

	if status >= http.StatusInternalServerError {
		entry.Error("background removal failed")
		writeError(w, status, "failed to process image")
		return
	}
	entry.Info("background removal rejected")
	writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch pipeline.KindOf(err) {
	case pipeline.KindInvalidInput, pipeline.KindInvalidDimensions:
		return http.StatusBadRequest
	case pipeline.KindUpstreamFetch:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// parseRemovalQuery reads url, width, height, padding and bgcolor. Width and
// height must be positive when given; padding defaults to zero.
func parseRemovalQuery(q url.Values) (domain.RemovalParams, error) {
	params := domain.RemovalParams{
		URL:     strings.TrimSpace(q.Get("url")),
		BgColor: strings.TrimSpace(q.Get("bgcolor")),
	}

	var err error
	if params.Width, err = positiveQueryInt(q, "width"); err != nil {
		return domain.RemovalParams{}, err
	}
	if params.Height, err = positiveQueryInt(q, "height"); err != nil {
		return domain.RemovalParams{}, err
	}

	if raw := strings.TrimSpace(q.Get("padding")); raw != "" {
		params.Padding, err = strconv.Atoi(raw)
		if err != nil {
			return domain.RemovalParams{}, fmt.Errorf("%w: padding must be an integer", domain.ErrInvalidParams)
		}
	}

	return params, nil
}

func positiveQueryInt(q url.Values, key string) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidParams, key)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: %s must be greater than zero", domain.ErrInvalidParams, key)
	}
	return v, nil
}
