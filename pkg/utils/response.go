package utils

import (
	"errors"

	"github.com/Soumit27/eazzgrievnce/pkg/apperror"
	"github.com/gofiber/fiber/v2"
)

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

func SuccessResponse(c *fiber.Ctx, statusCode int, message string, data interface{}) error {
	return c.Status(statusCode).JSON(Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func ErrorResponse(c *fiber.Ctx, statusCode int, message string) error {
	return c.Status(statusCode).JSON(Response{
		Success: false,
		Error:   message,
	})
}

// AppErrorResponse writes err with the status and code its AppError carries.
// Errors without one are reported as a bare 500 so internals do not leak.
func AppErrorResponse(c *fiber.Ctx, err error) error {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code == apperror.ErrCodeInternal {
		return c.Status(fiber.StatusInternalServerError).JSON(Response{
			Success: false,
			Error:   "Internal server error",
			Code:    string(apperror.ErrCodeInternal),
		})
	}
	return c.Status(appErr.HTTPStatus).JSON(Response{
		Success: false,
		Error:   appErr.Message,
		Code:    string(appErr.Code),
	})
}

type PaginatedResponse struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalItems int64       `json:"total_items"`
	TotalPages int         `json:"total_pages"`
}

func PaginatedSuccessResponse(c *fiber.Ctx, data interface{}, page, limit int, total int64) error {
	if limit < 1 {
		limit = 1
	}
	totalPages := int(total) / limit
	if int(total)%limit != 0 {
		totalPages++
	}

	return c.Status(fiber.StatusOK).JSON(PaginatedResponse{
		Success:    true,
		Data:       data,
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: totalPages,
	})
}
