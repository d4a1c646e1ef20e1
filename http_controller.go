package scanner

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// ControllerRoutes holds the route paths, relative to the group.
type ControllerRoutes struct {
	Scanners string
	History  string
}

// Controller bridges HTTP requests onto scanner commands. Device clients
// post decoded tokens and poll the render view.
type Controller struct {
	Debug        bool
	Logger       Logger
	Routes       *ControllerRoutes
	Directory    Directory
	History      HistoryReader
	ErrorHandler func(ctx router.Context, err error) error
	Middleware   []router.MiddlewareFunc

	decode       *DecodeCommand
	scanAgain    *ScanAgainCommand
	toggleFacing *ToggleFacingCommand
	refresh      *RefreshCommand
	state        *StateQuery
}

type ControllerOption func(*Controller) *Controller

func WithControllerDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerHistory(history HistoryReader) ControllerOption {
	return func(c *Controller) *Controller {
		c.History = history
		return c
	}
}

func WithControllerRoutes(routes ControllerRoutes) ControllerOption {
	return func(c *Controller) *Controller {
		if routes.Scanners != "" {
			c.Routes.Scanners = routes.Scanners
		}
		if routes.History != "" {
			c.Routes.History = routes.History
		}
		return c
	}
}

func WithControllerErrorHandler(handler func(ctx router.Context, err error) error) ControllerOption {
	return func(c *Controller) *Controller {
		c.ErrorHandler = handler
		return c
	}
}

// WithControllerMiddleware runs mw on every scanner route, e.g. a device guard.
func WithControllerMiddleware(mw ...router.MiddlewareFunc) ControllerOption {
	return func(c *Controller) *Controller {
		c.Middleware = append(c.Middleware, mw...)
		return c
	}
}

func NewController(directory Directory, opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger:    glog.Nop(),
		Directory: directory,
		Routes: &ControllerRoutes{
			Scanners: "/scanners",
			History:  "/history",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Directory == nil {
		panic("Missing Directory in scanner controller...")
	}

	c.decode = NewDecodeCommand(c.Directory)
	c.scanAgain = NewScanAgainCommand(c.Directory)
	c.toggleFacing = NewToggleFacingCommand(c.Directory)
	c.refresh = NewRefreshCommand(c.Directory)
	c.state = NewStateQuery(c.Directory)

	return c
}

// RegisterScannerRoutes mounts the scanner bridge on app.
func RegisterScannerRoutes[T any](app router.Router[T], directory Directory, opts ...ControllerOption) *Controller {
	controller := NewController(directory, opts...)
	controller.RegisterRoutes(app)
	return controller
}

func (c *Controller) RegisterRoutes(group RouteRegistrar) {
	base := c.Routes.Scanners
	mw := c.Middleware

	group.Get(base+"/:name", c.Show, mw...).SetName("scanner.show")
	group.Post(base+"/:name/decode", c.Decode, mw...).SetName("scanner.decode")
	group.Post(base+"/:name/scan-again", c.ScanAgain, mw...).SetName("scanner.scan_again")
	group.Post(base+"/:name/facing", c.ToggleFacing, mw...).SetName("scanner.facing")
	group.Post(base+"/:name/refresh", c.Refresh, mw...).SetName("scanner.refresh")

	if c.History != nil {
		group.Get(c.Routes.History, c.ListHistory, mw...).SetName("scanner.history")
	}
}

// DecodeRequest payload
type DecodeRequest struct {
	Token string `form:"token" json:"token"`
}

// Validate will run validation rules
func (r DecodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Token,
			validation.Required,
			validation.Length(1, 2048),
		),
	)
}

func (c *Controller) Show(ctx router.Context) error {
	view, err := c.view(ctx.Context(), ctx.Param("name"))
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"view": view,
	})
}

func (c *Controller) Decode(ctx router.Context) error {
	payload := new(DecodeRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid decode payload").
			WithCode(http.StatusBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid decode payload").
			WithTextCode(TextCodeInvalidToken).
			WithCode(http.StatusBadRequest))
	}

	if c.Debug {
		c.Logger.Debug("scanner decode request", "payload", print.MaybePrettyJSON(payload))
	}

	name := ctx.Param("name")
	collector := gocmd.NewResult[DecodeResult]()
	cmdCtx := gocmd.ContextWithResult(ctx.Context(), collector)

	msg := DecodeMessage{Scanner: name, Token: Token(payload.Token)}
	if err := c.decode.Execute(cmdCtx, msg); err != nil {
		return c.handleError(ctx, err)
	}

	result, _ := collector.Load()
	view, err := c.view(ctx.Context(), name)
	if err != nil {
		return c.handleError(ctx, err)
	}

	status := http.StatusAccepted
	if !result.Accepted {
		status = http.StatusOK
	}

	return ctx.JSON(status, map[string]any{
		"accepted": result.Accepted,
		"view":     view,
	})
}

func (c *Controller) ScanAgain(ctx router.Context) error {
	name := ctx.Param("name")
	if err := c.scanAgain.Execute(ctx.Context(), ScanAgainMessage{Scanner: name}); err != nil {
		return c.handleError(ctx, err)
	}
	return c.respondView(ctx, name)
}

func (c *Controller) ToggleFacing(ctx router.Context) error {
	name := ctx.Param("name")
	if err := c.toggleFacing.Execute(ctx.Context(), ToggleFacingMessage{Scanner: name}); err != nil {
		return c.handleError(ctx, err)
	}
	return c.respondView(ctx, name)
}

func (c *Controller) Refresh(ctx router.Context) error {
	name := ctx.Param("name")
	if err := c.refresh.Execute(ctx.Context(), RefreshMessage{Scanner: name}); err != nil {
		return c.handleError(ctx, err)
	}
	return c.respondView(ctx, name)
}

func (c *Controller) ListHistory(ctx router.Context) error {
	if c.History == nil {
		return c.handleError(ctx, goerrors.New("history store not configured", goerrors.CategoryNotFound).
			WithCode(http.StatusNotFound))
	}

	filter := HistoryFilter{
		Scanner:   strings.TrimSpace(ctx.Query("scanner", "")),
		EventType: ActivityEventType(strings.TrimSpace(ctx.Query("event", ""))),
		Status:    OutcomeStatus(strings.TrimSpace(ctx.Query("status", ""))),
	}

	var err error
	if filter.Limit, err = queryInt(ctx, "limit"); err != nil {
		return c.handleError(ctx, err)
	}
	if filter.Offset, err = queryInt(ctx, "offset"); err != nil {
		return c.handleError(ctx, err)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return c.handleError(ctx, goerrors.New("unknown outcome status", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithMetadata(map[string]any{"status": filter.Status}))
	}

	page, err := c.History.List(ctx.Context(), filter.Normalized())
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"records": page.Records,
		"total":   page.Total,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

func (c *Controller) respondView(ctx router.Context, name string) error {
	view, err := c.view(ctx.Context(), name)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"view": view,
	})
}

func (c *Controller) view(ctx context.Context, name string) (View, error) {
	return c.state.Query(ctx, StateMessage{Scanner: name})
}

func (c *Controller) handleError(ctx router.Context, err error) error {
	if c.ErrorHandler != nil {
		return c.ErrorHandler(ctx, err)
	}

	status := http.StatusInternalServerError
	body := map[string]any{
		"message": "internal error",
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Code > 0 {
			status = richErr.Code
		}
		body["message"] = richErr.Message
		body["category"] = richErr.Category
		if richErr.TextCode != "" {
			body["text_code"] = richErr.TextCode
		}
		if len(richErr.Metadata) > 0 {
			body["metadata"] = richErr.Metadata
		}
	}

	if status >= http.StatusInternalServerError {
		c.Logger.Error("scanner request failed", "scanner", ctx.Param("name"), "error", err)
	} else {
		c.Logger.Debug("scanner request rejected", "scanner", ctx.Param("name"), "error", err)
	}

	return ctx.JSON(status, map[string]any{
		"error": body,
	})
}

func queryInt(ctx router.Context, key string) (int, error) {
	raw := strings.TrimSpace(ctx.Query(key, ""))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, goerrors.New(fmt.Sprintf("invalid %s", key), goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithMetadata(map[string]any{key: raw})
	}
	return value, nil
}
