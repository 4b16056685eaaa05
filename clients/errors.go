package clients

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/core"
)

// ErrNotFound is returned when a transaction or receipt does not exist (yet).
var ErrNotFound = errors.New("not found")

// SubmissionError carries the provider's rejection message verbatim.
// Unconfirmed is set when the call failed in transit, so the node may have
// accepted the transaction identified by Hash anyway.
type SubmissionError struct {
	Message     string
	Hash        string
	Unconfirmed bool
	Err         error
}

func (e *SubmissionError) Error() string { return e.Message }
func (e *SubmissionError) Unwrap() error { return e.Err }

// NonceTooLowError reports that the submitted nonce was already consumed.
// Next holds the provider's "next nonce" hint when the message carried one.
type NonceTooLowError struct {
	Message string
	Next    *uint64
	Err     error
}

func (e *NonceTooLowError) Error() string { return e.Message }
func (e *NonceTooLowError) Unwrap() error { return e.Err }

// MaybeBroadcast returns the hash of a transaction whose submission failed in
// transit and may still have reached the node.
func MaybeBroadcast(err error) (string, bool) {
	var se *SubmissionError
	if errors.As(err, &se) && se.Unconfirmed && se.Hash != "" {
		return se.Hash, true
	}
	return "", false
}

// IsNonceTooLow reports whether err is, or wraps, a nonce conflict.
func IsNonceTooLow(err error) bool {
	var nt *NonceTooLowError
	return errors.As(err, &nt)
}

var nextNonceRe = regexp.MustCompile(`next nonce (\d+)`)

// classifySubmitError turns a raw provider error into a structured one.
// In-process backends wrap core.ErrNonceTooLow; over JSON-RPC only the message
// text survives.
func classifySubmitError(err error, hash string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()

	if errors.Is(err, core.ErrNonceTooLow) || strings.Contains(strings.ToLower(msg), "nonce too low") {
		nt := &NonceTooLowError{Message: msg, Err: err}
		if m := nextNonceRe.FindStringSubmatch(msg); m != nil {
			if n, perr := strconv.ParseUint(m[1], 10, 64); perr == nil {
				nt.Next = &n
			}
		}
		return nt
	}

	return submissionError(err, hash)
}

func submissionError(err error, hash string) *SubmissionError {
	return &SubmissionError{
		Message:     err.Error(),
		Hash:        hash,
		Unconfirmed: inTransit(err),
		Err:         err,
	}
}

// inTransit reports whether err came from the transport rather than from the
// node rejecting the transaction.
func inTransit(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
