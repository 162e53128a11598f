package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/leasestore/leasestore/pkg/db"
	"github.com/leasestore/leasestore/pkg/model"
	"github.com/leasestore/leasestore/pkg/pool"
	"github.com/sirupsen/logrus"
)

func writeError(w http.ResponseWriter, httpStatus int, err error) {
	logrus.Errorf("got a response error: %v", err)
	o := model.ErrorResponse{
		Status:  httpStatus,
		Message: err.Error(),
	}
	res, _ := json.Marshal(o)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_, _ = w.Write(res)
}

// handleError maps store and pool errors onto HTTP statuses. Anything
// unclassified is a storage level failure.
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, db.ErrAddressConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, pool.ErrExhausted):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeSuccess(w http.ResponseWriter, data interface{}, httpStatus int) {
	res, err := json.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_, _ = w.Write(res)
}
