// Package xerr defines the error codes shared across the gamelink client.
// Every code carries a Class so retry logic can classify a failure without
// string matching.
package xerr

import (
	"context"
	"errors"
)

// Class partitions errors by how the client must react to them.
type Class uint8

const (
	// ClassTransient errors are retried automatically under the backoff policy.
	ClassTransient Class = iota
	// ClassProtocol errors are fatal for the current connection. The byte
	// stream is torn down and never retried as-is.
	ClassProtocol
	// ClassConfig errors are returned synchronously to the caller and never retried.
	ClassConfig
	// ClassCancelled marks cooperative cancellation. Not an error condition.
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassProtocol:
		return "protocol"
	case ClassConfig:
		return "config"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type Error uint16

const (
	NotConnected Error = iota
	AlreadyConnecting
	AlreadyConnected
	ClientDisposed
	ClientFaulted
	ConnectTimeout
	RetryExhausted
	SendQueueFull
	FrameTooLarge
	FrameCorrupted
	HandshakeRejected
	ProbeTimeout
	ConnectionReset
	InvalidServerAddress
	InvalidConfigValue
	TransportNotSupported
	SessionCancelled
)

var errorMap = map[Error]string{
	NotConnected:          "client is not connected",
	AlreadyConnecting:     "connect already in progress",
	AlreadyConnected:      "client is already connected",
	ClientDisposed:        "client is disposed",
	ClientFaulted:         "client is faulted, disconnect before reconnecting",
	ConnectTimeout:        "connect attempt timed out",
	RetryExhausted:        "retry attempts exhausted",
	SendQueueFull:         "send queue is full",
	FrameTooLarge:         "frame exceeds max frame size",
	FrameCorrupted:        "frame is corrupted",
	HandshakeRejected:     "server rejected handshake",
	ProbeTimeout:          "keepalive probe timed out",
	ConnectionReset:       "connection reset by transport",
	InvalidServerAddress:  "invalid server address",
	InvalidConfigValue:    "invalid config value",
	TransportNotSupported: "transport not supported",
	SessionCancelled:      "session scope cancelled",
}

var classMap = map[Error]Class{
	NotConnected:          ClassTransient,
	AlreadyConnecting:     ClassConfig,
	AlreadyConnected:      ClassConfig,
	ClientDisposed:        ClassConfig,
	ClientFaulted:         ClassConfig,
	ConnectTimeout:        ClassTransient,
	RetryExhausted:        ClassTransient,
	SendQueueFull:         ClassTransient,
	FrameTooLarge:         ClassProtocol,
	FrameCorrupted:        ClassProtocol,
	HandshakeRejected:     ClassProtocol,
	ProbeTimeout:          ClassTransient,
	ConnectionReset:       ClassTransient,
	InvalidServerAddress:  ClassConfig,
	InvalidConfigValue:    ClassConfig,
	TransportNotSupported: ClassConfig,
	SessionCancelled:      ClassCancelled,
}

func (e Error) Error() string {
	return errorMap[e]
}
func (e Error) String() string {
	return errorMap[e]
}

// Class returns the taxonomy class of the code.
func (e Error) Class() Class {
	return classMap[e]
}

// ClassOf classifies an arbitrary error. Context cancellation maps to
// ClassCancelled; unknown errors default to ClassTransient so raw transport
// faults stay retryable.
func ClassOf(err error) Class {
	var e Error
	if errors.As(err, &e) {
		return e.Class()
	}
	if errors.Is(err, context.Canceled) {
		return ClassCancelled
	}
	return ClassTransient
}

// IsRetryable reports whether the supervisor may dial again after err.
func IsRetryable(err error) bool {
	return ClassOf(err) == ClassTransient
}
