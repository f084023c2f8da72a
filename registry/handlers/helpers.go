package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/bkrepo/registry/log"
	v2 "github.com/bkrepo/registry/registry/api/v2"
)

// statusClientClosedRequest is the non-standard status logged when a client
// goes away mid request.
const statusClientClosedRequest = 499

// copyFullPayload copies the payload of an HTTP request to destWriter. If it
// receives less content than expected, and the client disconnected during the
// upload, it avoids sending a 400 error to keep the logs cleaner. The body is
// cut off after limit bytes when limit is positive.
func copyFullPayload(ctx context.Context, responseWriter http.ResponseWriter, r *http.Request, destWriter io.Writer, limit int64, action string) error {
	// Get a channel that tells us if the client disconnects
	clientClosed := r.Context().Done()

	body := r.Body
	if limit > 0 {
		body = http.MaxBytesReader(responseWriter, body, limit)
	}

	copied, err := io.Copy(destWriter, body)
	if clientClosed != nil && (err != nil || (r.ContentLength > 0 && copied < r.ContentLength)) {
		// Didn't receive as much content as expected. Did the client
		// disconnect during the request? If so, avoid returning a 400
		// error to keep the logs cleaner.
		select {
		case <-clientClosed:
			// Set the response code to "499 Client Closed Request"
			// Even though the connection has already been closed,
			// this causes the logger to pick up a 499 error
			// instead of showing 0 for the HTTP status.
			responseWriter.WriteHeader(statusClientClosedRequest)

			log.GetLogger(log.WithContext(ctx)).WithFields(log.Fields{
				"error":         err,
				"copied":        copied,
				"contentLength": r.ContentLength,
			}).Error("client disconnected during " + action)
			return errors.New("client disconnected")
		default:
		}
	}

	if err != nil {
		log.GetLogger(log.WithContext(ctx)).WithError(err).Error("unknown error reading request payload")
		return err
	}

	return nil
}

// parsePagination reads the n and last query parameters of list requests. A
// missing n yields 0, which selects every entry.
func parsePagination(r *http.Request) (n int, last string, err error) {
	q := r.URL.Query()
	last = q.Get("last")

	if s := q.Get("n"); s != "" {
		n, err = strconv.Atoi(s)
		if err != nil {
			return 0, "", v2.ErrorCodePaginationNumberInvalid.WithDetail(map[string]string{"n": s})
		}
	}

	return n, last, nil
}
