package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"calendar-sync/internal/models"
)

var validate = validator.New()

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

type SendChatRequest struct {
	GroupID string `json:"groupId" validate:"required"`
	Message string `json:"message" validate:"required"`
}

type AddScheduleRequest struct {
	Title       string           `json:"title" validate:"required"`
	Description string           `json:"description"`
	StartTime   models.Timestamp `json:"startTime"`
	EndTime     models.Timestamp `json:"endTime"`
	AllDay      bool             `json:"allDay"`
	GroupID     *string          `json:"groupId,omitempty"`
	IsPrivate   *bool            `json:"isPrivate,omitempty"`
}

type CreateGroupRequest struct {
	GroupName string   `json:"groupName" validate:"required"`
	Members   []string `json:"members"`
}

// Result answers LOGIN and REGISTER.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorPayload is the body of ERROR and SERVER_SHUTDOWN.
type ErrorPayload struct {
	Message string `json:"message"`
}

// DecodePayload unmarshals the envelope data into dst and validates it.
func DecodePayload(env Envelope, dst any) error {
	if !env.HasPayload() {
		return fmt.Errorf("%w: %s requires data", ErrInvalidPayload, env.Type)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPayload, describe(err))
	}
	return nil
}

// Draft converts the request into a store draft. Start and end are mandatory
// and end must not precede start.
func (r AddScheduleRequest) Draft() (models.ScheduleDraft, error) {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return models.ScheduleDraft{}, fmt.Errorf("%w: startTime and endTime are required", ErrInvalidPayload)
	}
	if r.EndTime.Before(r.StartTime.Time) {
		return models.ScheduleDraft{}, fmt.Errorf("%w: endTime precedes startTime", ErrInvalidPayload)
	}
	draft := models.ScheduleDraft{
		Title:       r.Title,
		Description: r.Description,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		AllDay:      r.AllDay,
	}
	if r.GroupID != nil {
		draft.GroupID = strings.TrimSpace(*r.GroupID)
	}
	if r.IsPrivate != nil {
		draft.IsPrivate = *r.IsPrivate
	}
	return draft, nil
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(fields, ", ")
}
