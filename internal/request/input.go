package request

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/govindrajpootecosoul/project-tracker/internal/apperr"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
)

var inputValidator = validator.New(validator.WithRequiredStructEnabled())

// CreateInput is the payload of a new request.
type CreateInput struct {
	Title             string                 `json:"title" validate:"required,max=200"`
	Description       string                 `json:"description" validate:"required"`
	RequestType       models.RequestType     `json:"requestType" validate:"omitempty,oneof=AUTOMATION DATA ACCESS SUPPORT OTHER"`
	Priority          models.RequestPriority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	ToDepartment      *string                `json:"toDepartment"`
	TentativeDeadline *time.Time             `json:"tentativeDeadline"`
}

// normalize trims the free-text fields and fills enum defaults.
func (in *CreateInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.RequestType == "" {
		in.RequestType = models.RequestTypeOther
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if in.ToDepartment != nil && strings.TrimSpace(*in.ToDepartment) == "" {
		in.ToDepartment = nil
	}
}

func (in CreateInput) validate() error {
	err := inputValidator.Struct(in)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return apperr.Validation("invalid request: %v", err)
	}
	messages := make([]string, 0, len(errs))
	for _, fe := range errs {
		messages = append(messages, fieldMessage(fe))
	}
	return apperr.Validation("%s", strings.Join(messages, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
