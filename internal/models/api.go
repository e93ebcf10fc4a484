package models

import "time"

// PaginationInfo describes one page of a list response.
type PaginationInfo struct {
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
}

type ConversationsResponse struct {
	Conversations []*Conversation `json:"conversations"`
	Pagination    PaginationInfo  `json:"pagination"`
}

// ConversationResponse is one conversation with its messages, oldest first.
type ConversationResponse struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []*Message    `json:"messages"`
}

type AuthStatusResponse struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	Email           string `json:"email,omitempty"`
	DisplayName     string `json:"display_name,omitempty"`
}

type SyncStatusResponse struct {
	Running      bool       `json:"running"`
	Failures     int        `json:"failures"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastAttempt  *time.Time `json:"last_attempt,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// SyncEvent is pushed to websocket clients after every sync cycle.
type SyncEvent struct {
	Type             string    `json:"type"`
	Finished         time.Time `json:"finished"`
	ConversationKeys []string  `json:"conversation_keys"`
	Inserted         int       `json:"inserted"`
	Error            string    `json:"error,omitempty"`
}
