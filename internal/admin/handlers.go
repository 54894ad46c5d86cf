package admin

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/shineum/enjinmel-relay/internal/email"
	"github.com/shineum/enjinmel-relay/internal/maillog"
	"github.com/shineum/enjinmel-relay/internal/parser"
	"github.com/shineum/enjinmel-relay/internal/storage"
)

const (
	testSubject = "EnjinMel SMTP Test Email"
	testMessage = "This is a test email sent from the EnjinMel SMTP relay admin API."
)

// listResponse is one page of the log viewer.
type listResponse struct {
	Data       []storage.Entry `json:"data"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int             `json:"total_pages"`
}

func filterFrom(c *fiber.Ctx) storage.Filter {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	perPage, _ := strconv.Atoi(c.Query("per_page"))
	return storage.Filter{
		Search:   c.Query("search"),
		Status:   storage.Status(c.Query("status")),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
		Page:     page,
		PerPage:  perPage,
	}.Normalized()
}

func (s *Server) listLogs(c *fiber.Ctx) error {
	page, err := s.opts.Store.List(c.UserContext(), filterFrom(c))
	if err != nil {
		return err
	}

	data := page.Entries
	if data == nil {
		data = []storage.Entry{}
	}
	return c.JSON(listResponse{
		Data:       data,
		Total:      page.Total,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalPages: page.TotalPages(),
	})
}

func (s *Server) exportLogs(c *fiber.Ctx) error {
	entries, err := s.opts.Store.Export(c.UserContext(), filterFrom(c))
	if err != nil {
		return err
	}

	name := fmt.Sprintf("enjinmel-smtp-logs-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)

	return storage.WriteCSV(c, entries)
}

type deleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) deleteLogs(c *fiber.Ctx) error {
	var req deleteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body.")
	}
	if len(req.IDs) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "No log entries selected.")
	}

	n, err := s.opts.Store.Delete(c.UserContext(), req.IDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deleted": n})
}

func (s *Server) clearLogs(c *fiber.Ctx) error {
	n, err := s.opts.Store.Clear(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deleted": n})
}

func (s *Server) purge(c *fiber.Ctx) error {
	res, err := maillog.Purge(c.UserContext(), s.opts.Store, s.opts.Policy, time.Now())
	if err != nil {
		return err
	}
	if s.opts.OnPurge != nil {
		s.opts.OnPurge(res)
	}
	return c.JSON(res)
}

type testEmailRequest struct {
	To string `json:"to"`
}

func (s *Server) testEmail(c *fiber.Ctx) error {
	var req testEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body.")
	}
	if !parser.ValidEmail(req.To) {
		return email.Errorf(email.CodeInvalidEmail, "Please provide a valid email address.")
	}

	err := s.opts.Sender.Send(c.UserContext(), &email.Request{
		To:      []string{req.To},
		Subject: testSubject,
		Message: testMessage,
	})
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(fiber.Map{"message": "Email sent successfully."})
}
