package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies fetch failures.
type ErrorKind string

const (
	// ErrorKindUpstream covers network, status and decode failures from either source.
	ErrorKindUpstream ErrorKind = "upstream_failure"
	// ErrorKindMalformed covers responses that decode but carry missing or out-of-range fields.
	ErrorKindMalformed ErrorKind = "malformed_data"
	// ErrorKindPublish covers downstream fan-out failures (broker, cache). It never touches PollState.
	ErrorKindPublish ErrorKind = "publish_failure"
)

var (
	ErrUpstream  = errors.New("upstream failure")
	ErrMalformed = errors.New("malformed data")
	ErrPublish   = errors.New("publish failure")
)

// ChunkRef identifies one sub-batch of a batched request.
type ChunkRef struct {
	Index int   `json:"index"`
	Size  int   `json:"size"`
	First int64 `json:"first"`
	Last  int64 `json:"last"`
}

func (c ChunkRef) String() string {
	return fmt.Sprintf("chunk %d (%d timestamps %d..%d)", c.Index, c.Size, c.First, c.Last)
}

// FetchError is the error returned by sources, the batch fetcher and the track assembler.
type FetchError struct {
	Kind   ErrorKind
	Source string
	Chunk  *ChunkRef
	Err    error
}

func (e *FetchError) Error() string {
	msg := string(e.Kind)
	if e.Source != "" {
		msg += " from " + e.Source
	}
	if e.Chunk != nil {
		msg += " at " + e.Chunk.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is match the kind sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrUpstream:
		return e.Kind == ErrorKindUpstream
	case ErrMalformed:
		return e.Kind == ErrorKindMalformed
	case ErrPublish:
		return e.Kind == ErrorKindPublish
	}
	return false
}

// Upstream wraps err as an UpstreamFailure from source.
func Upstream(source string, err error) *FetchError {
	return &FetchError{Kind: ErrorKindUpstream, Source: source, Err: err}
}

// Malformed wraps err as MalformedData from source.
func Malformed(source string, err error) *FetchError {
	return &FetchError{Kind: ErrorKindMalformed, Source: source, Err: err}
}

// KindOf classifies err. Unknown errors count as upstream failures.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, ErrMalformed):
		return ErrorKindMalformed
	case errors.Is(err, ErrPublish):
		return ErrorKindPublish
	}
	return ErrorKindUpstream
}
