package model

import "time"

type (
	// Envelope carries one armored fragment between clients. The relay never
	// looks inside Fragment.
	Envelope struct {
		From     string    `json:"from" validate:"required"`
		To       string    `json:"to" validate:"required"`
		Fragment string    `json:"fragment" validate:"required"`
		SentAt   time.Time `json:"sent_at"`
	}

	// Pending is a sender's partially assembled message, kept in redis so a
	// restarted client can resume assembly.
	Pending struct {
		From      string   `cbor:"from"`
		Date      string   `cbor:"date"`
		Fragments []string `cbor:"fragments"`
	}
)
