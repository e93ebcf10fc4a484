package store

import "errors"

var (
	// ErrCommit wraps any failure of the repository to persist a change set.
	ErrCommit = errors.New("failed to commit changes")

	// ErrMessageNotFound is returned when a message key is unknown.
	ErrMessageNotFound = errors.New("message not found")

	// ErrConversationNotFound is returned when a conversation id is unknown.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrDuplicateMessage is returned when inserting a message whose key is already stored.
	ErrDuplicateMessage = errors.New("message already exists")

	// ErrDuplicateKey is returned when two conversations would share a key.
	ErrDuplicateKey = errors.New("conversation key already exists")

	// ErrAttachmentNotFound is returned when a message has no attachment with the given id.
	ErrAttachmentNotFound = errors.New("attachment not found")
)
