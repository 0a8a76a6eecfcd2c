package engine

import (
	"fmt"
	"time"
)

// Inbound chat message, as delivered by the platform connection.
type MessageEvent struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"groupId"`
	AuthorID  string    `json:"authorId"`
	ChannelID string    `json:"channelId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// role ids held by the author in the group
	AuthorRoles []string `json:"authorRoles,omitempty"`
	// author holds the platform's moderation override permission
	AuthorIsModerator bool `json:"authorIsModerator,omitempty"`
	// mentions resolved by the platform. When empty, mentions are parsed out of Content.
	MentionedUsers []string `json:"mentionedUsers,omitempty"`
	MentionedRoles []string `json:"mentionedRoles,omitempty"`
}

func (evt *MessageEvent) Validate() error {
	if evt.ID == "" || evt.GroupID == "" || evt.AuthorID == "" || evt.ChannelID == "" {
		return fmt.Errorf("message event missing id, group, author or channel")
	}
	return nil
}

func (evt *MessageEvent) key() string {
	return evt.GroupID + "/" + evt.AuthorID
}
