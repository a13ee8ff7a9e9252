package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/logger"
)

// AppError is an error with an HTTP status and a client-safe message.
type AppError struct {
	Status  int
	Message string
	Fields  []FieldError
	Err     error
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewError(status int, msg string) *AppError {
	return &AppError{Status: status, Message: msg}
}

// Wrap keeps err as the cause of a client facing error.
func Wrap(status int, msg string, err error) *AppError {
	return &AppError{Status: status, Message: msg, Err: err}
}

func BadRequest(msg string) *AppError   { return NewError(http.StatusBadRequest, msg) }
func Unauthorized(msg string) *AppError { return NewError(http.StatusUnauthorized, msg) }
func Forbidden(msg string) *AppError    { return NewError(http.StatusForbidden, msg) }
func NotFound(msg string) *AppError     { return NewError(http.StatusNotFound, msg) }
func Conflict(msg string) *AppError     { return NewError(http.StatusConflict, msg) }
func TooManyRequests(msg string) *AppError {
	return NewError(http.StatusTooManyRequests, msg)
}

func Internal(err error) *AppError {
	return Wrap(http.StatusInternalServerError, "Internal Server Error", err)
}

// ErrNotFound is the generic lookup miss sentinel; repositories may wrap it.
var ErrNotFound = errors.New("resource not found")

// Translator maps domain errors the generic table does not know about.
type Translator func(err error) *AppError

type ErrorConfig struct {
	Logger     *zap.Logger
	Production bool
	Translate  Translator
}

// ErrorHandler renders the last error attached with c.Error as an ErrorBody.
func ErrorHandler(cfg ErrorConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		appErr := Resolve(err, cfg.Translate)

		body := newErrorBody(c, appErr.Status, appErr.Message)
		body.Errors = appErr.Fields

		if appErr.Status >= 500 {
			logger.FromContext(c.Request.Context()).Error("request failed", zap.Error(err))
			if cfg.Production {
				body.Message = "Internal Server Error"
			} else {
				body.Message = err.Error()
				body.Stack = fmt.Sprintf("%+v", err)
			}
		}
		c.JSON(appErr.Status, body)
	}
}

var duplicateKeyRe = regexp.MustCompile(`Key \(([^)]+)\)=`)

// Resolve applies the error table to err.
func Resolve(err error, translate Translator) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if translate != nil {
		if t := translate(err); t != nil {
			return t
		}
	}

	var (
		pgErr      *pgconn.PgError
		verrs      validator.ValidationErrors
		syntaxErr  *json.SyntaxError
		typeErr    *json.UnmarshalTypeError
		maxByteErr *http.MaxBytesError
	)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		return Wrap(http.StatusNotFound, "Resource not found", err)
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		return Wrap(http.StatusBadRequest,
			fmt.Sprintf("Duplicate field value: %s. Please use another value.", duplicateField(pgErr)), err)
	case errors.As(err, &pgErr) && pgErr.Code == "22P02":
		return Wrap(http.StatusNotFound, "Resource not found", err)
	case errors.As(err, &verrs):
		return ValidationError(verrs)
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return Wrap(http.StatusBadRequest, "Invalid request body", err)
	case errors.As(err, &typeErr):
		return Wrap(http.StatusBadRequest, fmt.Sprintf("Invalid value for field %s", typeErr.Field), err)
	case errors.As(err, &maxByteErr):
		return Wrap(http.StatusRequestEntityTooLarge, "Request body too large", err)
	case errors.Is(err, auth.ErrExpiredToken):
		return Wrap(http.StatusUnauthorized, "Token expired. Please log in again.", err)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidTokenType), errors.Is(err, auth.ErrRevokedToken):
		return Wrap(http.StatusUnauthorized, "Invalid token. Please log in again.", err)
	case errors.Is(err, auth.ErrAccountInactive):
		return Wrap(http.StatusUnauthorized, "Account is deactivated", err)
	case errors.Is(err, auth.ErrUnknownAccount):
		return Wrap(http.StatusUnauthorized, "Token is not valid", err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return Wrap(http.StatusUnauthorized, "Invalid credentials", err)
	}
	return Internal(err)
}

func duplicateField(e *pgconn.PgError) string {
	if m := duplicateKeyRe.FindStringSubmatch(e.Detail); len(m) == 2 {
		return m[1]
	}
	if e.ColumnName != "" {
		return e.ColumnName
	}
	return e.ConstraintName
}

// ValidationError turns validator failures into a 400 with one message per field.
func ValidationError(verrs validator.ValidationErrors) *AppError {
	fields := make([]FieldError, 0, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fieldMessage(fe)
		fields = append(fields, FieldError{Field: fe.Field(), Message: msg})
		msgs = append(msgs, msg)
	}
	return &AppError{
		Status:  http.StatusBadRequest,
		Message: strings.Join(msgs, ". "),
		Fields:  fields,
		Err:     verrs,
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "dive":
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
	return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
}
