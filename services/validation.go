package services

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/stepacool/cursor-hackathon-submission/utils"
)

// newValidator создает валидатор с правилами для денежных сумм
func newValidator() *validator.Validate {
	v := validator.New()

	// positive_amount - десятичная строка, которая округляется минимум до одного цента
	_ = v.RegisterValidation("positive_amount", func(fl validator.FieldLevel) bool {
		cents, err := utils.ParseMinorUnits(fl.Field().String())
		return err == nil && cents > 0
	})
	// non_negative_amount - десятичная строка >= 0; пустая строка означает ноль
	_ = v.RegisterValidation("non_negative_amount", func(fl validator.FieldLevel) bool {
		raw := strings.TrimSpace(fl.Field().String())
		if raw == "" {
			return true
		}
		cents, err := utils.ParseMinorUnits(raw)
		return err == nil && cents >= 0
	})
	return v
}

// validationError превращает первую ошибку валидатора в BadRequest.
// messages задает текст по ключу "Поле.тег" или "Поле", иначе текст строится по тегу.
func validationError(err error, messages map[string]string) *BankError {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return badRequest("Invalid request")
	}

	e := validationErrors[0]
	if msg, ok := messages[e.Field()+"."+e.Tag()]; ok {
		return badRequest(msg)
	}
	if msg, ok := messages[e.Field()]; ok {
		return badRequest(msg)
	}
	switch e.Tag() {
	case "required":
		return badRequest(e.Field() + " is required")
	case "max":
		return badRequest(e.Field() + " must be at most " + e.Param() + " characters")
	case "len":
		return badRequest(e.Field() + " must be exactly " + e.Param() + " characters")
	case "gt":
		return badRequest(e.Field() + " must be greater than " + e.Param())
	case "oneof":
		return badRequest(e.Field() + " must be one of: " + e.Param())
	default:
		return badRequest(e.Field() + " is invalid")
	}
}
