package http

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// NewApp creates the fiber app with the project JSON codec.
func NewApp(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
}
