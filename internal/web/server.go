// Package web serves the inventory form over HTTP.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/digitaldrywood/inventory/internal/export"
	"github.com/digitaldrywood/inventory/internal/inventory"
)

//go:embed templates/*.html
var templates embed.FS

// Inventory is the subset of inventory.Sheet the handlers use.
type Inventory interface {
	Append(ctx context.Context, item, location, quantity string) error
	FindByItem(ctx context.Context, item string) ([]inventory.Row, error)
	ClearByLocation(ctx context.Context, location string) (int, error)
	Rows(ctx context.Context) ([]inventory.Row, error)
}

type Server struct {
	inv       Inventory
	sheetName string
	sheetURL  string
	engine    *gin.Engine
}

type page struct {
	SheetName string
	SheetURL  string
	Error     string
	Query     string
	Searched  bool
	Results   []inventory.Row
}

// NewServer builds the router. sheetURL may be empty when the backend has
// no browser view.
func NewServer(inv Inventory, sheetName, sheetURL string) *Server {
	s := &Server{
		inv:       inv,
		sheetName: sheetName,
		sheetURL:  sheetURL,
	}

	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())
	r.SetHTMLTemplate(template.Must(template.ParseFS(templates, "templates/*.html")))

	r.GET("/", s.index)
	r.POST("/", s.action)
	r.GET("/export.xlsx", s.exportXLSX)

	s.engine = r
	return s
}

// ModeFor returns the gin mode for the ENV value: release in production,
// debug otherwise.
func ModeFor(env string) string {
	if env == "production" {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) page() page {
	return page{SheetName: s.sheetName, SheetURL: s.sheetURL}
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", s.page())
}

func (s *Server) action(c *gin.Context) {
	ctx := c.Request.Context()

	switch formAction(c) {
	case "append":
		err := s.inv.Append(ctx, c.PostForm("item"), c.PostForm("location"), c.PostForm("quantity"))
		if err != nil {
			s.fail(c, "append", err)
			return
		}
		c.Redirect(http.StatusSeeOther, "/")

	case "clear":
		if _, err := s.inv.ClearByLocation(ctx, c.PostForm("location")); err != nil {
			s.fail(c, "clear", err)
			return
		}
		c.Redirect(http.StatusSeeOther, "/")

	case "search":
		query := c.PostForm("item")
		results, err := s.inv.FindByItem(ctx, query)
		if err != nil {
			s.fail(c, "search", err)
			return
		}
		p := s.page()
		p.Query = query
		p.Searched = true
		p.Results = results
		c.HTML(http.StatusOK, "index.html", p)

	default:
		p := s.page()
		p.Error = "Unknown action."
		c.HTML(http.StatusBadRequest, "index.html", p)
	}
}

// formAction reads the explicit action field, falling back to the name of
// the submit button that was pressed.
func formAction(c *gin.Context) string {
	if action := c.PostForm("action"); action != "" {
		return action
	}
	for _, name := range []string{"append", "clear", "search"} {
		if _, ok := c.GetPostForm(name); ok {
			return name
		}
	}
	return ""
}

func (s *Server) exportXLSX(c *gin.Context) {
	rows, err := s.inv.Rows(c.Request.Context())
	if err != nil {
		s.fail(c, "export", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, s.sheetName, rows); err != nil {
		s.fail(c, "export", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "inventory.xlsx"))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	log.Error().Err(err).Str("op", op).Int("status", status).Msg("Inventory operation failed")

	p := s.page()
	p.Error = message(err)
	c.HTML(status, "index.html", p)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, inventory.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, inventory.ErrAuthFailure):
		return http.StatusUnauthorized
	case errors.Is(err, inventory.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrStoreUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func message(err error) string {
	switch {
	case errors.Is(err, inventory.ErrValidation):
		return err.Error()
	case errors.Is(err, inventory.ErrAuthFailure):
		return "Google authorization failed. Run the auth command again."
	case errors.Is(err, inventory.ErrTableNotFound):
		return "The inventory sheet does not exist yet."
	case errors.Is(err, inventory.ErrStoreUnavailable):
		return "The spreadsheet could not be reached. Try again."
	default:
		return "Something went wrong."
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Handled request")
	}
}
