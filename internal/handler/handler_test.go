package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	charmlog "github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/items-api/internal/repository"
)

func newContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	rec := httptest.NewRecorder()
	return e.NewContext(httptest.NewRequest(method, path, nil), rec), rec
}

func TestErrorHandler(t *testing.T) {
	h := ErrorHandler(charmlog.New(io.Discard))

	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"Should render not found", ErrItemNotFound, http.StatusNotFound, `{"detail":"Item not found"}`},
		{"Should keep framework status codes", echo.ErrMethodNotAllowed, http.StatusMethodNotAllowed, `{"detail":"Method Not Allowed"}`},
		{"Should hide unexpected errors", errors.New("connection reset"), http.StatusInternalServerError, `{"detail":"Internal Server Error"}`},
		{
			"Should list validation failures",
			&ValidationError{Errors: []FieldError{{Loc: []any{"body", "name"}, Msg: "Field required", Type: "missing"}}},
			http.StatusUnprocessableEntity,
			`{"detail":[{"loc":["body","name"],"msg":"Field required","type":"missing"}]}`,
		},
		{
			"Should unwrap wrapped validation failures",
			fmt.Errorf("bind: %w", &ValidationError{Errors: []FieldError{{Loc: []any{"body"}, Msg: "bad", Type: "json_invalid"}}}),
			http.StatusUnprocessableEntity,
			`{"detail":[{"loc":["body"],"msg":"bad","type":"json_invalid"}]}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newContext(http.MethodGet, "/items/1")
			h(tc.err, c)
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, tc.body, rec.Body.String())
		})
	}

	t.Run("Should send no body for HEAD", func(t *testing.T) {
		c, rec := newContext(http.MethodHead, "/items/1")
		h(ErrItemNotFound, c)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("Should leave committed responses alone", func(t *testing.T) {
		c, rec := newContext(http.MethodGet, "/items/1")
		require.NoError(t, c.String(http.StatusOK, "done"))
		h(errors.New("late"), c)
		assert.Equal(t, "done", rec.Body.String())
	})
}

func TestTranslate(t *testing.T) {
	assert.Equal(t, ErrItemNotFound, translate(repository.ErrItemNotFound))
	assert.Equal(t, ErrItemNotFound, translate(fmt.Errorf("lookup: %w", repository.ErrItemNotFound)))
	other := errors.New("boom")
	assert.Equal(t, other, translate(other))
}

func TestBindError(t *testing.T) {
	t.Run("Should keep unsupported media type", func(t *testing.T) {
		assert.Equal(t, echo.ErrUnsupportedMediaType, bindError(echo.ErrUnsupportedMediaType))
	})

	t.Run("Should convert decoding failures", func(t *testing.T) {
		var ve *ValidationError
		require.ErrorAs(t, bindError(echo.NewHTTPError(http.StatusBadRequest, "Syntax error")), &ve)
		assert.Equal(t, "json_invalid", ve.Errors[0].Type)
		assert.Equal(t, "Syntax error", ve.Errors[0].Msg)
	})
}

func TestValidator(t *testing.T) {
	v := NewValidator()
	name := ""

	t.Run("Should accept an empty but present name", func(t *testing.T) {
		assert.NoError(t, v.Validate(&itemRequest{Name: &name}))
	})

	t.Run("Should reject a missing name by its JSON field", func(t *testing.T) {
		var ve *ValidationError
		require.ErrorAs(t, v.Validate(&itemRequest{Description: optionalString{value: "x"}}), &ve)
		require.Len(t, ve.Errors, 1)
		assert.Equal(t, FieldError{Loc: []any{"body", "name"}, Msg: "Field required", Type: "missing"}, ve.Errors[0])
		assert.Contains(t, ve.Error(), "Field required")
	})
}

func TestBindItem(t *testing.T) {
	bind := func(body string) (*itemRequest, error) {
		e := echo.New()
		e.Validator = NewValidator()
		req := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return bindItem(e.NewContext(req, httptest.NewRecorder()))
	}

	t.Run("Should default an omitted description to empty", func(t *testing.T) {
		body, err := bind(`{"name":"pen"}`)
		require.NoError(t, err)
		assert.Equal(t, "pen", *body.Name)
		assert.Equal(t, "", body.Description.value)
	})

	t.Run("Should reject an explicit null description", func(t *testing.T) {
		_, err := bind(`{"name":"pen","description":null}`)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, []FieldError{{
			Loc:  []any{"body", "description"},
			Msg:  "Input should be a valid string",
			Type: "string_type",
		}}, ve.Errors)
	})

	t.Run("Should report every invalid field", func(t *testing.T) {
		_, err := bind(`{"description":null}`)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		require.Len(t, ve.Errors, 2)
		assert.Equal(t, "missing", ve.Errors[0].Type)
		assert.Equal(t, "string_type", ve.Errors[1].Type)
	})
}

func TestParseItemID(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/items/7")
	c.SetParamNames("item_id")
	c.SetParamValues("7")
	id, err := parseItemID(c)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	c.SetParamValues("seven")
	_, err = parseItemID(c)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "int_parsing", ve.Errors[0].Type)
}

func TestNewItemHandler(t *testing.T) {
	assert.Panics(t, func() { NewItemHandler(nil, nil) })
}
