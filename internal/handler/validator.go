package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type echoValidator struct {
	validator *validator.Validate
}

// NewValidator returns an echo.Validator backed by go-playground/validator
func NewValidator() echo.Validator {
	return &echoValidator{validator: validator.New()}
}

func (v *echoValidator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
