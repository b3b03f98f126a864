package handler // handler package contains the item CRUD handlers

import (
	"encoding/json" // json decodes the optional description field
	"errors"        // errors unwraps validation failures
	"fmt"           // fmt renders the delete confirmation message
	"net/http"      // http provides status code constants
	"strconv"       // strconv parses the item_id path parameter

	"github.com/iliyamo/items-api/internal/database"   // database provides the per-request session
	"github.com/iliyamo/items-api/internal/logger"     // logger carries the request-scoped logger
	"github.com/iliyamo/items-api/internal/model"      // model holds the Item entity
	"github.com/iliyamo/items-api/internal/queue"      // queue defines the item event payloads
	"github.com/iliyamo/items-api/internal/repository" // repository holds data access for items
	"github.com/iliyamo/items-api/internal/service"    // service publishes item events
	"github.com/labstack/echo/v4"                      // echo is the web framework used for handlers
)

// ItemHandler serves the /items resource.  Every handler body runs inside
// one store session which is released when the handler returns.
type ItemHandler struct {
	Store     *database.Store   // Store hands out one session per request
	Publisher service.Publisher // Publisher receives events after each committed mutation
}

// NewItemHandler constructs a new ItemHandler and panics if the store is nil.
// A nil publisher disables event publishing.
func NewItemHandler(store *database.Store, pub service.Publisher) *ItemHandler {
	if store == nil {
		panic("nil store passed to NewItemHandler")
	}
	if pub == nil {
		pub = service.NopPublisher{}
	}
	return &ItemHandler{Store: store, Publisher: pub}
}

// itemRequest is the body accepted by create and update.  Name is a pointer
// so that a missing field can be told apart from an empty string.
type itemRequest struct {
	Name        *string        `json:"name" validate:"required"`
	Description optionalString `json:"description"`
}

// optionalString is a string field that may be omitted but not sent as null.
type optionalString struct {
	value string
	null  bool
}

func (s *optionalString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		s.null = true
		return nil
	}
	return json.Unmarshal(b, &s.value)
}

// CreateItem handles POST /items.  Store errors are returned unhandled and
// become a 500 in the error handler.
func (h *ItemHandler) CreateItem(c echo.Context) error {
	body, err := bindItem(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	item := &model.Item{Name: *body.Name, Description: body.Description.value}
	if err := h.Store.WithSession(ctx, func(s *database.Session) error {
		return repository.NewItemRepo(s).Create(ctx, item)
	}); err != nil {
		return err
	}
	h.publish(c, queue.ItemCreated, *item)
	return c.JSON(http.StatusOK, item)
}

// GetItem handles GET /items/:item_id.
func (h *ItemHandler) GetItem(c echo.Context) error {
	id, err := parseItemID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	var item *model.Item
	if err := h.Store.WithSession(ctx, func(s *database.Session) error {
		item, err = repository.NewItemRepo(s).GetByID(ctx, id)
		return err
	}); err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, item)
}

// UpdateItem handles PUT /items/:item_id and overwrites name and description.
func (h *ItemHandler) UpdateItem(c echo.Context) error {
	id, err := parseItemID(c)
	if err != nil {
		return err
	}
	body, err := bindItem(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	item := &model.Item{ID: id, Name: *body.Name, Description: body.Description.value}
	if err := h.Store.WithSession(ctx, func(s *database.Session) error {
		return repository.NewItemRepo(s).Update(ctx, item)
	}); err != nil {
		return translate(err)
	}
	h.publish(c, queue.ItemUpdated, *item)
	return c.JSON(http.StatusOK, item)
}

// DeleteItem handles DELETE /items/:item_id.  Deleting twice yields 404 the
// second time.
func (h *ItemHandler) DeleteItem(c echo.Context) error {
	id, err := parseItemID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.Store.WithSession(ctx, func(s *database.Session) error {
		return repository.NewItemRepo(s).Delete(ctx, id)
	}); err != nil {
		return translate(err)
	}
	h.publish(c, queue.ItemDeleted, model.Item{ID: id})
	return c.JSON(http.StatusOK, map[string]string{"message": fmt.Sprintf("Item %d deleted", id)})
}

// publish is fire-and-forget: the mutation is already committed, so a broker
// failure is only logged.
func (h *ItemHandler) publish(c echo.Context, kind string, item model.Item) {
	ctx := c.Request().Context()
	if err := h.Publisher.Publish(ctx, queue.NewItemEvent(kind, item)); err != nil {
		logger.FromContext(ctx).Warn("Item event not published", "type", kind, "item_id", item.ID, "error", err)
	}
}

// parseItemID reads the item_id path parameter.
func parseItemID(c echo.Context) (int64, error) {
	raw := c.Param("item_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &ValidationError{Errors: []FieldError{{
			Loc:  []any{"path", "item_id"},
			Msg:  "Input should be a valid integer, unable to parse string as an integer",
			Type: "int_parsing",
		}}}
	}
	return id, nil
}

// bindItem decodes and validates the JSON body.
func bindItem(c echo.Context) (*itemRequest, error) {
	var body itemRequest
	if err := c.Bind(&body); err != nil {
		return nil, bindError(err)
	}
	var fields []FieldError
	if err := c.Validate(&body); err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		fields = ve.Errors
	}
	if body.Description.null {
		fields = append(fields, FieldError{
			Loc:  []any{"body", "description"},
			Msg:  "Input should be a valid string",
			Type: "string_type",
		})
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Errors: fields}
	}
	return &body, nil
}
