package echoapi

import (
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/session"
	"github.com/trezcool/heures/core/staff"
)

const uploadField = "file"

type sessionApi struct {
	svc      *session.Service
	staffSvc *staff.Service
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := sessionApi{svc: deps.SessionSvc, staffSvc: deps.StaffSvc}

	sg := g.Group("/sessions", jwt)
	sg.POST("", api.create)
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
	sg.PATCH("/:id", api.update)
	sg.DELETE("/:id", api.destroy)
	sg.POST("/:id/transition", api.transition)
	sg.GET("/:id/history", api.history)
	sg.GET("/:id/actions", api.actions)
	sg.GET("/:id/attachments", api.attachments)
	sg.POST("/:id/attachments", api.attach)

	ag := g.Group("/attachments", jwt)
	ag.PATCH("/:id", api.verifyAttachment)
	ag.DELETE("/:id", api.destroyAttachment)
}

func (api *sessionApi) actor(ctx echo.Context, role ...string) (staff.Actor, error) {
	var requested string
	if len(role) > 0 {
		requested = role[0]
	}
	return contextActor(ctx, api.staffSvc, requested)
}

// Handlers

func (api *sessionApi) create(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data session.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	s, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *sessionApi) query(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	filter := new(session.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []session.Session{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	sessions, err := api.svc.Query(ctx.Request().Context(), actor, filter, ordering.Orderings)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *sessionApi) update(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data session.SessionPatch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SessionPatch")
	}
	s, err := api.svc.Edit(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *sessionApi) destroy(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *sessionApi) transition(ctx echo.Context) error {
	var data TransitionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TransitionRequest")
	}
	actor, err := api.actor(ctx, data.Role)
	if err != nil {
		return err
	}
	if !data.Status.IsValid() {
		return core.NewValidationError(nil, core.FieldError{Field: "status", Error: "unknown status"})
	}

	s, err := api.svc.Transition(ctx.Request().Context(), actor, ctx.Param("id"), data.Status, session.TransitionOptions{
		Comment:    data.Comment,
		Conversion: data.Conversion,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *sessionApi) history(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	entries, err := api.svc.History(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *sessionApi) actions(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	actions, err := api.svc.Actions(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ActionsResponse{Role: actor.Role, Actions: actions})
}

func (api *sessionApi) attachments(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	atts, err := api.svc.Attachments(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, atts)
}

func (api *sessionApi) attach(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	fh, err := ctx.FormFile(uploadField)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: uploadField, Error: "a file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	// the client supplied content type is not trusted
	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return errors.Wrap(err, "detecting mime type")
	}

	at, err := api.svc.Attach(ctx.Request().Context(), actor, ctx.Param("id"), session.NewAttachment{
		Filename: fh.Filename,
		MimeType: mtype.String(),
		Size:     fh.Size,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, at)
}

func (api *sessionApi) verifyAttachment(ctx echo.Context) error {
	var data VerifyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyRequest")
	}
	actor, err := api.actor(ctx, data.Role)
	if err != nil {
		return err
	}
	if data.Verified == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "verified", Error: "verified is a required field"})
	}
	if err := api.svc.SetAttachmentVerified(ctx.Request().Context(), actor, ctx.Param("id"), *data.Verified); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *sessionApi) destroyAttachment(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteAttachment(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	TransitionRequest struct {
		Status     session.Status             `json:"status"`
		Role       string                     `json:"role"`
		Comment    string                     `json:"comment"`
		Conversion *session.ConversionRequest `json:"conversion"`
	}

	VerifyRequest struct {
		Verified *bool  `json:"verified"`
		Role     string `json:"role"`
	}

	ActionsResponse struct {
		Role    string           `json:"role"`
		Actions []session.Action `json:"actions"`
	}
)
