package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bookwise/circulation-service/circulation/internal/errs"
	"github.com/bookwise/circulation-service/circulation/internal/model"
	md "github.com/bookwise/circulation-service/pkg/middleware"
	"github.com/bookwise/circulation-service/pkg/validate"
)

type Handler struct {
	circulationSvc CirculationService
	recommendSvc   RecommendService
	log            *zap.Logger
}

func New(circulationSvc CirculationService, recommendSvc RecommendService, log *zap.Logger) *Handler {
	return &Handler{
		circulationSvc: circulationSvc,
		recommendSvc:   recommendSvc,
		log:            log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig()),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)

	api.POST("/holds", h.PlaceHold)
	api.DELETE("/holds/:copyId", h.ReleaseHold)
	api.POST("/copies/:copyId/stage", h.StageForPickup)
	api.POST("/copies/:copyId/checkout", h.CheckOut)
	api.POST("/copies/:copyId/return", h.ReturnCopy)
	api.DELETE("/copies/:copyId", h.DeleteCopy)

	api.POST("/billing/sweep", h.RunSweep)

	api.POST("/books", h.CreateBook)
	api.PATCH("/books/:bookId", h.UpdateBook)
	api.POST("/books/:bookId/copies", h.CreateCopy)

	api.GET("/books", h.ListBooks)
	api.GET("/books/:bookId/copies", h.ListCopies)
	api.GET("/users/:userId/debt", h.UserDebt)
	api.POST("/fees/pay", h.PayFees)
	api.PATCH("/users/:userId/notifications", h.SetNotificationPref)
	api.GET("/users/:userId/recommendations", h.Recommendations)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// httpError maps state-machine sentinels to distinguishable responses so
// the request layer can render an accurate message.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrNotAvailable),
		errors.Is(err, errs.ErrNotReserved),
		errors.Is(err, errs.ErrNotReadyForPickup),
		errors.Is(err, errs.ErrNoActiveReservation),
		errors.Is(err, errs.ErrNoActiveLoan),
		errors.Is(err, errs.ErrCopyNotAvailable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func pathInt(c echo.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, errors.Errorf("%s is invalid", name)
	}
	return v, nil
}

func (h *Handler) PlaceHold(c echo.Context) error {
	var req model.PlaceHoldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.CopyID == 0 && req.BookID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "either copyId or bookId is required")
	}

	res, err := h.circulationSvc.PlaceHold(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ReleaseHold(c echo.Context) error {
	copyID, err := pathInt(c, "copyId")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.circulationSvc.ReleaseHold(c.Request().Context(), copyID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) StageForPickup(c echo.Context) error {
	copyID, err := pathInt(c, "copyId")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.circulationSvc.StageForPickup(c.Request().Context(), copyID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) CheckOut(c echo.Context) error {
	copyID, err := pathInt(c, "copyId")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.circulationSvc.CheckOut(c.Request().Context(), copyID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ReturnCopy(c echo.Context) error {
	copyID, err := pathInt(c, "copyId")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	loan, err := h.circulationSvc.ReturnCopy(c.Request().Context(), copyID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loan)
}

func (h *Handler) DeleteCopy(c echo.Context) error {
	copyID, err := pathInt(c, "copyId")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.circulationSvc.DeleteCopy(c.Request().Context(), copyID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) RunSweep(c echo.Context) error {
	result, err := h.circulationSvc.RunSweep(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) CreateBook(c echo.Context) error {
	var req model.CreateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	book, err := h.circulationSvc.CreateBook(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, book)
}

func (h *Handler) UpdateBook(c echo.Context) error {
	bookID, err := pathInt(c, "bookId")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var req model.UpdateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	book, err := h.circulationSvc.UpdateBook(c.Request().Context(), bookID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) CreateCopy(c echo.Context) error {
	bookID, err := pathInt(c, "bookId")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cp, err := h.circulationSvc.CreateCopy(c.Request().Context(), bookID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cp)
}

func (h *Handler) ListBooks(c echo.Context) error {
	var (
		filter model.ListBooksFilter
		err    error
	)
	filter.Genre = c.QueryParam("genre")
	filter.Search = c.QueryParam("search")
	if pageParam := c.QueryParam("page"); pageParam != "" {
		if filter.Page, err = strconv.Atoi(pageParam); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "page is invalid")
		}
	}
	if sizeParam := c.QueryParam("size"); sizeParam != "" {
		if filter.Size, err = strconv.Atoi(sizeParam); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "size is invalid")
		}
	}

	books, err := h.circulationSvc.ListBooks(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) ListCopies(c echo.Context) error {
	bookID, err := pathInt(c, "bookId")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	copies, err := h.circulationSvc.ListCopies(c.Request().Context(), bookID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, copies)
}

func (h *Handler) UserDebt(c echo.Context) error {
	userID, err := pathInt(c, "userId")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	total, err := h.circulationSvc.UserDebt(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"userId": userID, "debt": total})
}

func (h *Handler) PayFees(c echo.Context) error {
	type Req struct {
		UserID int   `json:"userId" validate:"required"`
		FeeIDs []int `json:"feeIds" validate:"required,min=1"`
	}
	var req Req
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	paid, err := h.circulationSvc.PayFees(c.Request().Context(), req.UserID, req.FeeIDs)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"paid": paid})
}

func (h *Handler) SetNotificationPref(c echo.Context) error {
	userID, err := pathInt(c, "userId")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	type Req struct {
		Enabled bool `json:"enabled"`
	}
	var req Req
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.circulationSvc.SetNotificationPref(c.Request().Context(), userID, req.Enabled); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) Recommendations(c echo.Context) error {
	userID, err := pathInt(c, "userId")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	const defaultLimit = 10
	limit := defaultLimit
	if limitParam := c.QueryParam("limit"); limitParam != "" {
		if limit, err = strconv.Atoi(limitParam); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit is invalid")
		}
	}
	books, err := h.recommendSvc.ForUser(c.Request().Context(), userID, limit)
	if err != nil {
		// degrade to an empty list, the heuristic is non-critical
		h.log.Warn("recommendations failed", zap.Int("userId", userID), zap.Error(err))
		return c.JSON(http.StatusOK, []model.Book{})
	}
	if books == nil {
		books = []model.Book{}
	}
	return c.JSON(http.StatusOK, books)
}
