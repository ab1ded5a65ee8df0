package server

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanizeParam(t *testing.T) {
	tests := map[string]string{
		"id":        "ID",
		"commentId": "comment ID",
		"loopId":    "loop ID",
		"parentId":  "parent ID",
		"slug":      "slug",
	}
	for in, want := range tests {
		assert.Equal(t, want, humanizeParam(in), in)
	}
}

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	var got Pagination
	app.Get("/", func(c *fiber.Ctx) error {
		got = parsePagination(c, 20)
		return nil
	})

	tests := []struct {
		query string
		want  Pagination
	}{
		{"", Pagination{Limit: 20}},
		{"?limit=5&offset=10", Pagination{Limit: 5, Offset: 10}},
		{"?limit=500", Pagination{Limit: maxPaginationLimit}},
		{"?limit=-1&offset=-4", Pagination{Limit: 20}},
		{"?limit=abc", Pagination{Limit: 20}},
	}
	for _, tt := range tests {
		_, err := app.Test(httptest.NewRequest("GET", "/"+tt.query, nil))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.query)
	}
}

func TestParseUUID_WritesBadRequest(t *testing.T) {
	app := fiber.New()
	app.Get("/loops/:commentId", func(c *fiber.Ctx) error {
		if _, err := parseUUID(c, "commentId"); err != nil {
			return nil
		}
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/loops/not-a-uuid", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	body := decodeMap(t, resp)
	assert.Equal(t, "Invalid comment ID", body["error"])
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	resp, err = app.Test(httptest.NewRequest("GET", "/loops/00000000-0000-0000-0000-000000000000", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
