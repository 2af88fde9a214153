package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/routepack/routepack/pkg/integrity"
	"github.com/routepack/routepack/pkg/persistence"
	"github.com/routepack/routepack/pkg/routing"
	"github.com/routepack/routepack/pkg/signatures"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleDomainError maps engine and service errors onto problem responses.
// Routing and signature errors carry user-presentable messages; everything
// else stays opaque.
func handleDomainError(c fiber.Ctx, err error) error {
	switch {
	case routing.IsRoutingError(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("routing_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	// Duplicate signatures are signature errors too; the conflict mapping
	// takes precedence.
	case persistence.IsSignatureExists(err):
		return conflict(c, "stage action is already signed")

	case signatures.IsSignatureError(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("signature_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case errors.Is(err, integrity.ErrInvalidResolution),
		errors.Is(err, integrity.ErrViolationResolved):
		return badRequest(c, err.Error())

	case persistence.IsNotFound(err):
		return notFound(c, err.Error())

	default:
		return internalError(c, err)
	}
}
