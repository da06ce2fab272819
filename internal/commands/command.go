package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"

	dealroom_errors "dealroom/pkg/errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var ErrHandlerNotFound = errors.New("command handler not found")

type Command interface {
	CommandType() string
	Validate() error
	IdempotencyKey() string
}

// PartyScoped is implemented by commands issued by one participant of a
// transaction. Access proxies use it to authorize before dispatch.
type PartyScoped interface {
	Actor() uuid.UUID
	Transaction() uuid.UUID
}

type Result struct {
	AggregateID string
	Payload     interface{}
}

type Handler interface {
	Handle(ctx context.Context, cmd Command) (Result, error)
}

type HandlerFunc func(ctx context.Context, cmd Command) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// validateStruct runs the struct tags of cmd and folds failures into
// ErrInvalidInput.
func validateStruct(cmd any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(cmd); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s failed on %s", dealroom_errors.ErrInvalidInput, f.Field(), f.Tag())
		}
		return fmt.Errorf("%w: %v", dealroom_errors.ErrInvalidInput, err)
	}
	return nil
}
