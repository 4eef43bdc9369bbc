package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core/notification"
)

type notificationApi struct {
	svc notification.Service
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := notificationApi{svc: deps.NotificationSvc}

	ng := g.Group("/notifications", jwt, roleMiddleware(deps.UserSvc))
	ng.GET("", api.list)
	ng.GET("/unread-count", api.unreadCount)
	ng.POST("/:id/read", api.markAsRead)
}

func (api *notificationApi) list(ctx echo.Context) error {
	unreadOnly, _ := strconv.ParseBool(ctx.QueryParam("unread"))
	notifs, err := api.svc.List(ctx.Request().Context(), contextUser(ctx), unreadOnly)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	if notifs == nil {
		notifs = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	count, err := api.svc.UnreadCount(ctx.Request().Context(), contextUser(ctx))
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"count": count})
}

func (api *notificationApi) markAsRead(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	n, err := api.svc.MarkAsRead(ctx.Request().Context(), contextUser(ctx), id)
	if err != nil {
		return errors.Wrap(err, "marking notification as read")
	}
	return ctx.JSON(http.StatusOK, n)
}
