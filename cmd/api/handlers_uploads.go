package main

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/httpx"
	"github.com/MikeMC777/bikerhub/internal/upload"
)

type uploadService interface {
	SaveForm(ctx context.Context, ownerID string, form *multipart.Form) ([]upload.File, error)
	List(ctx context.Context, p *auth.Principal, page, limit int) ([]upload.File, int64, error)
	Delete(ctx context.Context, p *auth.Principal, key string) error
}

func uploadFilesHandler(svc uploadService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			httpx.Fail(c, httpx.Wrap(http.StatusBadRequest, "Invalid multipart form", err))
			return
		}
		defer func() { _ = form.RemoveAll() }()

		files, err := svc.SaveForm(c.Request.Context(), httpx.CurrentPrincipal(c).UserID, form)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.Created(c, "Files uploaded successfully", files)
	}
}

func listUploadsHandler(svc uploadService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := pageParams(c)
		files, total, err := svc.List(c.Request.Context(), httpx.CurrentPrincipal(c), page, limit)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.Paginated(c, files, httpx.NewPagination(page, limit, total))
	}
}

func deleteUploadHandler(svc uploadService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), httpx.CurrentPrincipal(c), c.Param("key")); err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "File deleted successfully", nil)
	}
}
