package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/passcode/openapi"
	"github.com/tech-arch1tect/passcode/services/logging"
	"github.com/tech-arch1tect/passcode/services/otp"
	"go.uber.org/zap"
)

// Passcodes is the part of otp.Service the HTTP layer needs.
type Passcodes interface {
	Issue(ctx context.Context, email, purpose string) (*otp.Issued, error)
	Validate(ctx context.Context, email, code, purpose string) (bool, error)
}

// Deliverer hands a freshly issued code to its recipient.
type Deliverer interface {
	SendCode(ctx context.Context, to, purpose, code string, expiresAt time.Time) error
}

type IssueRequest struct {
	Email   string `json:"email" validate:"required,email,max=320" example:"user@example.com"`
	Purpose string `json:"purpose" validate:"required,printascii,max=64" example:"login"`
}

type IssueResponse struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

type VerifyRequest struct {
	Email   string `json:"email" validate:"required,email,max=320" example:"user@example.com"`
	Purpose string `json:"purpose" validate:"required,printascii,max=64" example:"login"`
	Code    string `json:"code" validate:"required,max=32" example:"042917"`
}

type VerifyResponse struct {
	Valid bool `json:"valid"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

const issuedMessage = "If the address can receive mail, a code is on its way."

type OTPHandler struct {
	passcodes Passcodes
	deliverer Deliverer
	validate  *validator.Validate
	logger    *logging.Service
}

func NewOTPHandler(passcodes Passcodes, deliverer Deliverer, logger *logging.Service) *OTPHandler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &OTPHandler{
		passcodes: passcodes,
		deliverer: deliverer,
		validate:  validate,
		logger:    logger,
	}
}

// Register mounts the handlers on g, normally the /otp group.
func (h *OTPHandler) Register(g *echo.Group) {
	g.POST("/issue", h.Issue)
	g.POST("/verify", h.Verify)
}

func (h *OTPHandler) Issue(c echo.Context) error {
	var req IssueRequest
	if resp, ok := h.bind(c, &req); !ok {
		return c.JSON(http.StatusBadRequest, resp)
	}

	ctx := c.Request().Context()
	issued, err := h.passcodes.Issue(ctx, req.Email, req.Purpose)
	if err != nil {
		return h.serviceError(c, "issue", err)
	}

	if err := h.deliverer.SendCode(ctx, req.Email, req.Purpose, issued.Code, issued.ExpiresAt); err != nil {
		h.logger.Error("failed to deliver otp",
			zap.String("record_id", issued.RecordID),
			zap.String("purpose", req.Purpose),
			zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "failed to deliver code"})
	}

	return c.JSON(http.StatusAccepted, IssueResponse{
		Message:   issuedMessage,
		ExpiresAt: issued.ExpiresAt,
	})
}

func (h *OTPHandler) Verify(c echo.Context) error {
	var req VerifyRequest
	if resp, ok := h.bind(c, &req); !ok {
		return c.JSON(http.StatusBadRequest, resp)
	}

	valid, err := h.passcodes.Validate(c.Request().Context(), req.Email, req.Code, req.Purpose)
	if err != nil {
		return h.serviceError(c, "verify", err)
	}

	return c.JSON(http.StatusOK, VerifyResponse{Valid: valid})
}

// Document describes the /otp routes in api.
func (h *OTPHandler) Document(api *openapi.OpenAPI) {
	rateHeaders := map[string]string{
		"X-RateLimit-Limit":     "Requests allowed per window",
		"X-RateLimit-Remaining": "Requests left in the current window",
		"X-RateLimit-Reset":     "Unix time the window resets",
	}

	api.Document(http.MethodPost, "/otp/issue").
		Summary("Issue a passcode").
		Description("Generates a code for the email and purpose, invalidating any earlier live code, and delivers it out of band. The code is never returned.").
		OperationID("issueCode").
		Tags("otp").
		Body(IssueRequest{}, "Recipient and purpose").
		Response(http.StatusAccepted, IssueResponse{}, "Code issued and handed to delivery").
		Response(http.StatusBadRequest, ErrorResponse{}, "Malformed request").
		Response(http.StatusTooManyRequests, nil, "Too many requests from this client").
		ResponseHeaders(http.StatusTooManyRequests, rateHeaders).
		Response(http.StatusInternalServerError, ErrorResponse{}, "Store failure").
		Response(http.StatusBadGateway, ErrorResponse{}, "Delivery failure").
		Build()

	api.Document(http.MethodPost, "/otp/verify").
		Summary("Verify a passcode").
		Description("Consumes the live code for the email and purpose when it matches. A code verifies at most once.").
		OperationID("verifyCode").
		Tags("otp").
		Body(VerifyRequest{}, "Recipient, purpose and submitted code").
		Response(http.StatusOK, VerifyResponse{}, "Verification outcome").
		Response(http.StatusBadRequest, ErrorResponse{}, "Malformed request").
		Response(http.StatusTooManyRequests, nil, "Too many requests from this client").
		ResponseHeaders(http.StatusTooManyRequests, rateHeaders).
		Response(http.StatusInternalServerError, ErrorResponse{}, "Store failure").
		Build()
}

func (h *OTPHandler) bind(c echo.Context, req any) (ErrorResponse, bool) {
	if err := c.Bind(req); err != nil {
		return ErrorResponse{Error: "invalid request body"}, false
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return ErrorResponse{Error: "invalid request body"}, false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return ErrorResponse{Error: "validation failed", Fields: fields}, false
	}

	return ErrorResponse{}, true
}

func (h *OTPHandler) serviceError(c echo.Context, op string, err error) error {
	if errors.Is(err, otp.ErrInvalidInput) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid email or purpose"})
	}

	h.logger.Error("otp request failed", zap.String("op", op), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "max":
		return fmt.Sprintf("Maximum length is %s", fe.Param())
	case "printascii":
		return "Must contain printable ASCII only"
	default:
		return fmt.Sprintf("Invalid %s field", fe.Field())
	}
}
