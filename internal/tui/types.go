package tui

import "time"

// RequestItem is a summary of a modification request for the queue view.
type RequestItem struct {
	ID              string
	TaskID          string
	Origin          string
	RequestType     string
	Status          string
	EffectiveStatus string
	Reason          string
	SLALevel        string
	SLARemaining    time.Duration
}

// RequestDetail is the full request information with its thread.
type RequestDetail struct {
	RequestItem
	TaskTitle   string
	AssignedTo  string
	RequestedAt string
	ExpiresAt   string
	Messages    []MessageLine
}

// MessageLine is one discussion entry.
type MessageLine struct {
	Role string
	Text string
}
