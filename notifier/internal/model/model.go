package model

import "time"

type Notification struct {
	ID      int       `json:"id" db:"id"`
	UserID  int       `json:"userId" db:"user_id"`
	CopyID  int       `json:"copyId" db:"copy_id"`
	Type    string    `json:"type" db:"type"`
	Content string    `json:"content" db:"content"`
	SentAt  time.Time `json:"sentAt" db:"sent_at"`
}

type ListNotifications struct {
	Items []Notification `json:"items"`
}
