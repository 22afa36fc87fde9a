package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// StitchMessage is a decoded stitch task together with the delivery it arrived in
type StitchMessage struct {
	JobID    string
	StitchID string
	Delivery amqp.Delivery
}

// DecodeStitchMessage parses and validates a delivery body
func DecodeStitchMessage(d amqp.Delivery) (*StitchMessage, error) {
	var body struct {
		JobID    string `json:"job_id"`
		StitchID string `json:"stitch_id"`
	}
	if err := json.Unmarshal(d.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if _, err := uuid.Parse(body.JobID); err != nil {
		return nil, fmt.Errorf("%w: job_id %q is not a UUID", ErrInvalidTask, body.JobID)
	}
	if strings.TrimSpace(body.StitchID) == "" {
		return nil, fmt.Errorf("%w: stitch_id is required", ErrInvalidTask)
	}

	return &StitchMessage{JobID: body.JobID, StitchID: body.StitchID, Delivery: d}, nil
}
