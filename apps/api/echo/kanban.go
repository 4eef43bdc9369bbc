package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core/kanban"
	"github.com/trezcool/nexus/core/user"
)

type kanbanApi struct {
	svc      kanban.Service
	validate *validator.Validate
}

func registerKanbanAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := kanbanApi{
		svc:      deps.KanbanSvc,
		validate: deps.Validate,
	}
	members := roleMiddleware(deps.UserSvc, user.RoleStudent, user.RoleAdvisor, user.RoleAdmin)

	kg := g.Group("/kanban", jwt)
	kg.GET("/students", api.students, roleMiddleware(deps.UserSvc, user.RoleAdvisor))

	tg := kg.Group("/tasks", members)
	tg.GET("", api.board)
	tg.POST("", api.create)
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update)
	tg.DELETE("/:id", api.destroy)
	tg.POST("/:id/move", api.move)
	tg.POST("/:id/comments", api.addComment)
	tg.POST("/:id/attachments", api.addAttachment)
}

func (api *kanbanApi) board(ctx echo.Context) error {
	board, err := api.svc.Board(ctx.Request().Context(), contextUser(ctx))
	if err != nil {
		return errors.Wrap(err, "loading board")
	}
	return ctx.JSON(http.StatusOK, board)
}

func (api *kanbanApi) create(ctx echo.Context) error {
	var data kanban.NewTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	task, err := api.svc.Create(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, task)
}

func (api *kanbanApi) retrieve(ctx echo.Context) error {
	task, err := api.svc.Get(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding task")
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *kanbanApi) update(ctx echo.Context) error {
	var data kanban.UpdateTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTask")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	task, err := api.svc.Update(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating task")
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *kanbanApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), contextUser(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *kanbanApi) move(ctx echo.Context) error {
	var data kanban.MoveTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MoveTask")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	task, err := api.svc.Move(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "moving task")
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *kanbanApi) addComment(ctx echo.Context) error {
	var data kanban.NewComment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.AddComment(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding comment")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *kanbanApi) addAttachment(ctx echo.Context) error {
	var data kanban.NewAttachment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAttachment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.AddAttachment(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding attachment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *kanbanApi) students(ctx echo.Context) error {
	students, err := api.svc.Students(ctx.Request().Context(), contextUser(ctx))
	if err != nil {
		return errors.Wrap(err, "listing students")
	}
	return ctx.JSON(http.StatusOK, students)
}
