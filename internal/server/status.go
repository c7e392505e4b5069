package server

import (
	"errors"
	"net/http"

	"github.com/signflow/signflow/internal/protocol"
	"github.com/signflow/signflow/internal/session"
)

var statusTable = []struct {
	err  error
	code int
}{
	{session.ErrInvalidMode, http.StatusBadRequest},
	{session.ErrUnsupportedLanguage, http.StatusBadRequest},
	{session.ErrInvalidGloss, http.StatusBadRequest},
	{session.ErrInvalidImage, http.StatusBadRequest},
	// Soft failure: the command is acknowledged and ignored.
	{session.ErrGlossOutsideTraining, http.StatusOK},
	{session.ErrNoWorker, http.StatusServiceUnavailable},
	{session.ErrLanguageConfig, http.StatusInternalServerError},
	{session.ErrModelLoad, http.StatusInternalServerError},
	{session.ErrImageDecode, http.StatusInternalServerError},
	{session.ErrWorkerFailed, http.StatusInternalServerError},
	{session.ErrClosed, http.StatusInternalServerError},
}

// statusFor maps a controller error to the reply sent to the client. The
// message is the sentinel's text so internal paths never reach the client.
func statusFor(err error) protocol.Status {
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return protocol.NewStatus(e.code, e.err.Error())
		}
	}
	return protocol.NewStatus(http.StatusInternalServerError, "internal error")
}
