package echoapi

import (
	"bytes"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
	"github.com/trezcool/nexus/services/export"
	"github.com/trezcool/nexus/services/metrics"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type requestApi struct {
	svc      request.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerRequestAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := requestApi{
		svc:      deps.RequestSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}
	student := roleMiddleware(api.usrSvc, user.RoleStudent)
	deciders := roleMiddleware(api.usrSvc, user.RoleSchool, user.RoleAdmin)
	viewers := roleMiddleware(api.usrSvc, user.RoleStudent, user.RoleSchool, user.RoleAdmin, user.RoleAdvisor)

	rg := g.Group("/requests", jwt)
	rg.GET("", api.query, viewers)
	rg.POST("", api.submit, student)
	rg.GET("/dashboard", api.dashboard, deciders)
	rg.GET("/export", api.export, deciders)
	rg.GET("/eligibility", api.eligibility, student)

	dg := rg.Group("/:id")
	dg.GET("", api.retrieve, viewers)
	dg.GET("/fut", api.fut, viewers)
	dg.POST("/approve", api.approve, deciders)
	dg.POST("/designate", api.designate, deciders)
	dg.POST("/observe", api.observe, deciders)
	dg.POST("/resubmit", api.resubmit, student)
}

func (api *requestApi) query(ctx echo.Context) error {
	var filter request.Filter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []request.Request{})
	}
	reqs, err := api.svc.Query(ctx.Request().Context(), contextUser(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying requests")
	}
	if reqs == nil {
		reqs = []request.Request{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *requestApi) submit(ctx echo.Context) error {
	var data request.NewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.Submit(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "submitting request")
	}
	metrics.ObserveTransition(req.Type, req.Status)
	return ctx.JSON(http.StatusCreated, req)
}

func (api *requestApi) dashboard(ctx echo.Context) error {
	folders, err := api.svc.Dashboard(ctx.Request().Context(), contextUser(ctx))
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, folders)
}

// export sends the visible requests as a workbook. Admins also get the accounts sheet.
func (api *requestApi) export(ctx echo.Context) error {
	actor := contextUser(ctx)
	reqs, err := api.svc.Query(ctx.Request().Context(), actor, request.Filter{})
	if err != nil {
		return errors.Wrap(err, "querying requests")
	}
	sheets := []export.SheetSpec{export.RequestsSheet(reqs)}
	if actor.IsAdmin() {
		users, err := api.usrSvc.Query(ctx.Request().Context(), user.QueryFilter{}, nil)
		if err != nil {
			return errors.Wrap(err, "querying users")
		}
		sheets = append(sheets, export.AccountsSheet(users))
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, sheets...); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="solicitudes.xlsx"`)
	return ctx.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

func (api *requestApi) eligibility(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	ok, err := api.svc.HasApprovedInit(reqCtx, contextUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "checking eligibility")
	}
	advisors, err := api.usrSvc.ActiveAdvisors(reqCtx)
	if err != nil {
		return errors.Wrap(err, "querying advisors")
	}
	if advisors == nil {
		advisors = []user.User{}
	}
	return ctx.JSON(http.StatusOK, EligibilityResponse{CanRequestAdvisor: ok, Advisors: advisors})
}

func (api *requestApi) retrieve(ctx echo.Context) error {
	req, err := api.svc.Get(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding request")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *requestApi) fut(ctx echo.Context) error {
	fut, err := api.svc.FUT(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "filling FUT")
	}
	return ctx.JSON(http.StatusOK, fut)
}

func (api *requestApi) approve(ctx echo.Context) error {
	req, err := api.svc.Approve(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving request")
	}
	metrics.ObserveTransition(req.Type, req.Status)
	return ctx.JSON(http.StatusOK, req)
}

func (api *requestApi) designate(ctx echo.Context) error {
	var data request.NewDesignation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDesignation")
	}

	req, err := api.svc.Designate(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "designating advisor")
	}
	metrics.ObserveTransition(req.Type, req.Status)
	return ctx.JSON(http.StatusOK, req)
}

func (api *requestApi) observe(ctx echo.Context) error {
	var data ObservationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ObservationRequest")
	}

	req, err := api.svc.Observe(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data.Observation)
	if err != nil {
		return errors.Wrap(err, "observing request")
	}
	metrics.ObserveTransition(req.Type, req.Status)
	return ctx.JSON(http.StatusOK, req)
}

func (api *requestApi) resubmit(ctx echo.Context) error {
	var data request.NewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequest")
	}
	prev, err := api.svc.Get(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding request")
	}
	data.Type = prev.Type // a resubmission keeps its type
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.Resubmit(ctx.Request().Context(), contextUser(ctx), prev.ID, data)
	if err != nil {
		return errors.Wrap(err, "resubmitting request")
	}
	metrics.ObserveTransition(req.Type, req.Status)
	return ctx.JSON(http.StatusCreated, req)
}

type (
	ObservationRequest struct {
		Observation string `json:"observation"`
	}

	EligibilityResponse struct {
		CanRequestAdvisor bool        `json:"can_request_advisor"`
		Advisors          []user.User `json:"advisors"`
	}
)
