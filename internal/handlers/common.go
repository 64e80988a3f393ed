package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/comunidad/backend/internal/logging"
	"github.com/comunidad/backend/internal/middleware"
)

const (
	requestTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a single JSON object from the body, capped at maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// requestLog scopes base to the request: the chi request id plus the subject user,
// falling back to the authenticated caller when userID is empty.
func requestLog(base *logrus.Entry, r *http.Request, event, userID string) *logrus.Entry {
	if userID == "" {
		userID = middleware.GetUserID(r.Context())
	}
	return base.WithFields(logging.Context{
		UserID:    userID,
		RequestID: chimw.GetReqID(r.Context()),
		Event:     event,
	}.Fields())
}
