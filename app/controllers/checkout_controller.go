package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/membergate/membergate/internal/pkg/anet"
	"github.com/membergate/membergate/internal/pkg/billing"
)

// CheckoutController handles checkout submissions and member-initiated
// cancellations.
type CheckoutController struct {
	service *billing.Service
}

func NewCheckoutController(service *billing.Service) *CheckoutController {
	return &CheckoutController{service: service}
}

func (cc *CheckoutController) HandleSignup(c *fiber.Ctx) error {
	var req billing.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := cc.service.ProcessSignup(ctx, &req)
	if err != nil {
		return cc.signupError(c, &req, err)
	}

	if req.ReturnURL != "" {
		return flash.WithSuccess(c, fiber.Map{
			"type":    "success",
			"message": "Payment accepted, membership is being activated.",
		}).Redirect(req.ReturnURL)
	}
	return c.JSON(result)
}

// signupError maps processing failures onto HTTP statuses: invalid input is
// the submitter's fault, a refusal by the processor is a payment failure and
// everything else is ours.
func (cc *CheckoutController) signupError(c *fiber.Ctx, req *billing.SignupRequest, err error) error {
	status := fiber.StatusInternalServerError
	message := "An unexpected error occurred, please try again."

	var validationErrs validator.ValidationErrors
	var processorErr *anet.ProcessorError
	switch {
	case errors.As(err, &validationErrs),
		errors.Is(err, billing.ErrRenewalPeriodTooShort),
		errors.Is(err, billing.ErrRenewalPeriodTooLong):
		status = fiber.StatusUnprocessableEntity
		message = err.Error()
	case errors.As(err, &processorErr):
		status = fiber.StatusPaymentRequired
		message = processorErr.Text
	case errors.Is(err, anet.ErrIntegrityMismatch):
		status = fiber.StatusPaymentRequired
		message = "The payment could not be verified, please contact support."
	case errors.Is(err, anet.ErrMissingCredentials):
		message = "The payment gateway is not configured."
	}

	if req.ReturnURL != "" {
		return flash.WithError(c, fiber.Map{
			"type":    "error",
			"message": message,
		}).Redirect(req.ReturnURL)
	}

	body := fiber.Map{"error": message}
	if processorErr != nil {
		body["code"] = processorErr.Code
	}
	return c.Status(status).JSON(body)
}

func (cc *CheckoutController) HandleCancelMembership(c *fiber.Ctx) error {
	membershipID, err := c.ParamsInt("id")
	if err != nil || membershipID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid membership id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := cc.service.CancelMembership(ctx, uint(membershipID)); err != nil {
		if errors.Is(err, billing.ErrMembershipNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "membership not found"})
		}
		var processorErr *anet.ProcessorError
		if errors.As(err, &processorErr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": processorErr.Text,
				"code":  processorErr.Code,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cancellation failed"})
	}

	return c.JSON(fiber.Map{"ok": true})
}
