package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/signal"
)

type signalEntry struct {
	signal.Definition
	Weight          float64       `json:"baseWeight"`
	CooldownSeconds int           `json:"cooldownSeconds,omitempty"`
	Conflicts       []signal.Type `json:"conflicts"`
}

// catalogResponse is built once; the catalog is static.
var catalogResponse = func() fiber.Map {
	defs := signal.All()
	out := make([]signalEntry, 0, len(defs))
	for _, d := range defs {
		out = append(out, signalEntry{
			Definition:      d,
			Weight:          d.BaseWeight(),
			CooldownSeconds: int(d.Cooldown().Seconds()),
			Conflicts:       signal.ConflictsOf(d.Type),
		})
	}
	return fiber.Map{"signals": out}
}()

// Catalog handles GET /api/signals
func Catalog(c fiber.Ctx) error {
	return c.JSON(catalogResponse)
}
