package server

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"loop/internal/featureflags"
	"loop/internal/models"
	"loop/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gorilla/feeds"
)

const syndicationItems = 30

// GetUserAtomFeed handles GET /api/users/:id/feed.atom
func (s *Server) GetUserAtomFeed(c *fiber.Ctx) error {
	return s.writeUserFeed(c, "application/atom+xml", (*feeds.Feed).ToAtom)
}

// GetUserRSSFeed handles GET /api/users/:id/feed.rss
func (s *Server) GetUserRSSFeed(c *fiber.Ctx) error {
	return s.writeUserFeed(c, "application/rss+xml", (*feeds.Feed).ToRss)
}

func (s *Server) writeUserFeed(c *fiber.Ctx, contentType string, render func(*feeds.Feed) (string, error)) error {
	if !s.featureFlags.EnabledOr(featureflags.Syndication, uuid.Nil, true) {
		return respondError(c, models.NewNotFoundError("Feed", c.Path()))
	}
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}

	ctx := c.UserContext()
	profile, err := s.users.GetProfile(ctx, id, uuid.Nil)
	if err != nil {
		return respondError(c, err)
	}
	// Feeds are public documents, so they are assembled as an anonymous viewer.
	page, err := s.feed.Assemble(ctx, service.FeedQuery{
		Mode:     service.FeedAuthor,
		AuthorID: id,
		Limit:    syndicationItems,
	})
	if err != nil {
		return respondError(c, err)
	}

	out, err := render(buildUserFeed(c.BaseURL(), profile.Profile, page.Loops))
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, contentType+"; charset=utf-8")
	return c.SendString(out)
}

func buildUserFeed(baseURL string, author *models.Profile, loops []models.LoopView) *feeds.Feed {
	name := author.DisplayName
	if name == "" {
		name = author.Username
	}
	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s on Loop", name),
		Link:        &feeds.Link{Href: fmt.Sprintf("%s/api/users/%s", baseURL, author.ID)},
		Description: author.Bio,
		Author:      &feeds.Author{Name: name},
		Created:     author.CreatedAt,
	}

	for _, v := range loops {
		link := fmt.Sprintf("%s/api/loops/%s", baseURL, v.ID)
		item := &feeds.Item{
			Id:          link,
			Title:       loopTitle(v.Content),
			Link:        &feeds.Link{Href: link},
			Description: v.Content.Text,
			Author:      &feeds.Author{Name: name},
			Created:     v.CreatedAt,
		}
		if v.Content.MediaURL != "" {
			item.Enclosure = &feeds.Enclosure{
				Url:    v.Content.MediaURL,
				Type:   v.Content.MimeType,
				Length: fmt.Sprint(v.Content.SizeBytes),
			}
		}
		feed.Items = append(feed.Items, item)
	}
	if len(feed.Items) > 0 {
		feed.Updated = feed.Items[0].Created
	} else {
		feed.Updated = time.Now().UTC()
	}
	return feed
}

// loopTitle is the first line of a loop's text, cut to 80 runes.
func loopTitle(content models.Content) string {
	text := strings.TrimSpace(content.Text)
	if line, _, ok := strings.Cut(text, "\n"); ok {
		text = line
	}
	if text == "" {
		return fmt.Sprintf("New %s loop", content.Type)
	}
	if utf8.RuneCountInString(text) > 80 {
		r := []rune(text)
		text = string(r[:80]) + "..."
	}
	return text
}
