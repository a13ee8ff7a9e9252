package main

import (
	"errors"
	"net/http"

	"github.com/MikeMC777/bikerhub/internal/cart"
	"github.com/MikeMC777/bikerhub/internal/httpx"
	"github.com/MikeMC777/bikerhub/internal/order"
	"github.com/MikeMC777/bikerhub/internal/payment"
	"github.com/MikeMC777/bikerhub/internal/product"
	"github.com/MikeMC777/bikerhub/internal/upload"
	"github.com/MikeMC777/bikerhub/internal/user"
)

type errorRule struct {
	target error
	status int
	msg    string // empty: use err.Error()
}

var errorRules = []errorRule{
	{user.ErrNotFound, http.StatusNotFound, "User not found"},
	{product.ErrNotFound, http.StatusNotFound, "Product not found"},
	{order.ErrNotFound, http.StatusNotFound, "Order not found"},
	{payment.ErrNotFound, http.StatusNotFound, "Payment not found"},
	{upload.ErrNotFound, http.StatusNotFound, "Upload not found"},
	{cart.ErrNotInCart, http.StatusNotFound, "Product is not in the cart"},

	{user.ErrAlreadyExist, http.StatusBadRequest, "User already exists with this email or username"},
	{product.ErrInvalidProduct, http.StatusBadRequest, ""},
	{order.ErrInvalidOrder, http.StatusBadRequest, ""},
	{order.ErrProductUnavailable, http.StatusBadRequest, ""},
	{cart.ErrProductUnavailable, http.StatusBadRequest, "Product is not available"},
	{cart.ErrEmptyCart, http.StatusBadRequest, "Cart is empty"},
	{payment.ErrAmountMismatch, http.StatusBadRequest, "Payment amount does not match the order total"},

	{upload.ErrFileTooLarge, http.StatusBadRequest, ""},
	{upload.ErrTooManyFiles, http.StatusBadRequest, ""},
	{upload.ErrUnexpectedField, http.StatusBadRequest, ""},
	{upload.ErrUnsupportedType, http.StatusBadRequest, ""},
	{upload.ErrNoFiles, http.StatusBadRequest, "No files uploaded"},

	{order.ErrForbidden, http.StatusForbidden, "Access denied"},
	{payment.ErrForbidden, http.StatusForbidden, "Access denied"},
	{upload.ErrForbidden, http.StatusForbidden, "Access denied"},

	{order.ErrInsufficientStock, http.StatusConflict, ""},
	{cart.ErrInsufficientStock, http.StatusConflict, ""},
	{order.ErrInvalidTransition, http.StatusConflict, ""},
	{order.ErrCannotCancel, http.StatusConflict, "Order cannot be cancelled in its current status"},
	{order.ErrCannotRefund, http.StatusConflict, "Order cannot be refunded in its current status"},
	{order.ErrConcurrentUpdate, http.StatusConflict, "Order was modified by another request, please retry"},
	{order.ErrRequestInProgress, http.StatusConflict, "An order with this Idempotency-Key is still being processed"},
	{payment.ErrAlreadyPaid, http.StatusConflict, "Order is already paid"},
	{payment.ErrOrderNotPayable, http.StatusConflict, "Order cannot be paid in its current status"},

	{payment.ErrPaymentFailed, http.StatusPaymentRequired, ""},
}

// translateError maps domain sentinels onto client errors.
func translateError(err error) *httpx.AppError {
	for _, r := range errorRules {
		if !errors.Is(err, r.target) {
			continue
		}
		msg := r.msg
		if msg == "" {
			msg = err.Error()
		}
		return httpx.Wrap(r.status, msg, err)
	}
	return nil
}
