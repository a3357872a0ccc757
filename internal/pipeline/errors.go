package pipeline

import (
	"fmt"

	"github.com/google/uuid"
)

// EmptyTextError is returned when Send is called with empty text. Not retryable.
type EmptyTextError struct{}

func (e *EmptyTextError) Error() string { return "pipeline: message text must not be empty" }

// TooLargeError is returned when text exceeds the maximum size. Not retryable.
type TooLargeError struct {
	Size int
	Max  int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("pipeline: message of %d bytes exceeds maximum %d", e.Size, e.Max)
}

// OversizedPayloadError is returned by ReceiveOne when the received
// ciphertext exceeds the transport payload cap.
type OversizedPayloadError struct {
	Size int
	Max  int
}

func (e *OversizedPayloadError) Error() string {
	return fmt.Sprintf("pipeline: received payload of %d bytes exceeds maximum %d", e.Size, e.Max)
}

// AckTimeoutError is returned by AwaitAck once every retry is exhausted.
// The message's status is never downgraded on this outcome -- it
// remains Sent.
type AckTimeoutError struct {
	MessageID uuid.UUID
}

func (e *AckTimeoutError) Error() string {
	return fmt.Sprintf("pipeline: ack wait exhausted retries for message %s", e.MessageID)
}
