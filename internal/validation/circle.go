package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
)

const maxCircleSlugLength = 48

var circleSlugRegex = regexp.MustCompile(`^[a-z0-9-]{3,48}$`)

var reservedCircleSlugs = map[string]struct{}{
	"admin":         {},
	"api":           {},
	"auth":          {},
	"circles":       {},
	"feed":          {},
	"gifts":         {},
	"health":        {},
	"loops":         {},
	"me":            {},
	"media":         {},
	"metrics":       {},
	"notifications": {},
	"settings":      {},
	"streams":       {},
	"swagger":       {},
	"users":         {},
}

// CircleSlug derives a URL slug from a circle name and validates it.
func CircleSlug(name string) (string, error) {
	s := slug.Make(name)
	if len(s) > maxCircleSlugLength {
		s = strings.TrimRight(s[:maxCircleSlugLength], "-")
	}
	if err := ValidateCircleSlug(s); err != nil {
		return "", err
	}
	return s, nil
}

// ValidateCircleSlug validates circle slug format and reserved names.
func ValidateCircleSlug(s string) error {
	if !circleSlugRegex.MatchString(s) {
		return fmt.Errorf("slug must be 3-48 characters and contain only lowercase letters, numbers, and hyphens")
	}

	if strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") {
		return fmt.Errorf("slug cannot start or end with a hyphen")
	}

	if _, exists := reservedCircleSlugs[s]; exists {
		return fmt.Errorf("slug is reserved")
	}

	return nil
}
