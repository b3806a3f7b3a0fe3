// Package worker provides background send-job processing for pushgate.
// The game backend publishes jobs to Pub/Sub instead of calling /push/send
// when a fan-out should not be tied to an HTTP request lifetime, such as
// hunt-wide announcements to every stored subscription.
package worker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trovehunt/pushgate/internal/delivery"
)

// JobTypeSend is the job_type value for a push send job.
const JobTypeSend = "push_send"

// ErrInvalidJob marks a job that can never succeed, no matter how often it
// is redelivered. Such jobs are acked and dropped.
var ErrInvalidJob = errors.New("invalid send job")

// TargetSpec selects the audience of a queued send. It accepts the same
// wire forms as the HTTP API: the string "all", or an object naming a
// userId or a userIds list.
type TargetSpec struct {
	All     bool     `json:"-"`
	UserID  string   `json:"userId,omitempty"`
	UserIDs []string `json:"userIds,omitempty"`
}

// Empty reports whether the spec selects no audience at all.
func (t TargetSpec) Empty() bool {
	return !t.All && t.UserID == "" && len(t.UserIDs) == 0
}

// UnmarshalJSON accepts either the string "all" or the object form.
func (t *TargetSpec) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != "all" {
			return fmt.Errorf("unknown target %q", s)
		}
		*t = TargetSpec{All: true}
		return nil
	}

	type plain TargetSpec
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = TargetSpec(p)
	return nil
}

// SendJob is one queued push send. The payload mirrors the /push/send
// request body plus a job_type discriminator.
type SendJob struct {
	JobType string                 `json:"job_type"`
	Target  TargetSpec             `json:"target"`
	Title   string                 `json:"title"`
	Body    string                 `json:"body,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Validate rejects jobs that would fail on every redelivery.
func (j SendJob) Validate() error {
	if j.Target.Empty() {
		return fmt.Errorf("%w: target is required", ErrInvalidJob)
	}
	if j.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidJob)
	}
	return nil
}

func (j SendJob) deliveryTarget() delivery.Target {
	return delivery.Target{
		All:     j.Target.All,
		UserID:  j.Target.UserID,
		UserIDs: j.Target.UserIDs,
	}
}

func (j SendJob) notification() delivery.Notification {
	return delivery.Notification{
		Title: j.Title,
		Body:  j.Body,
		Data:  j.Data,
	}
}
