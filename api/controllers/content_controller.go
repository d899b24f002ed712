package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/submitsession/api/models"
	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/types"
)

type addFilesRequest struct {
	// Paths are local paths or file:// URLs already on this machine.
	Paths []string `json:"paths" binding:"required"`
}

type addLinkRequest struct {
	URL string `json:"url" binding:"required"`
}

type setTextRequest struct {
	Text string `json:"text"`
}

// AddFiles attaches files, either uploaded as multipart "files" or referenced by path in JSON.
// POST /api/submission/v1/sessions/:id/files
func AddFiles(c *gin.Context) {
	sub, ok := lookup(c)
	if !ok {
		return
	}

	var refs []types.FileRef
	var err error
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		refs, err = saveUploadedFiles(c)
	} else {
		var body addFilesRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, tool.FastReturnError(err.Error()))
			return
		}
		refs, err = resolvePaths(body.Paths)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError(err.Error()))
		return
	}
	if len(refs) == 0 {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("No files provided"))
		return
	}

	items, err := sub.AddFiles(refs...)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(items))
}

func resolvePaths(paths []string) ([]types.FileRef, error) {
	refs := make([]types.FileRef, 0, len(paths))
	for _, p := range paths {
		ref, err := tool.ResolveFileRef(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", p, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func saveUploadedFiles(c *gin.Context) ([]types.FileRef, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("invalid multipart form: %v", err)
	}
	folder := filepath.Join(models.DefaultUploadFolder, c.Param("id"))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload folder: %v", err)
	}

	refs := make([]types.FileRef, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		dst := tool.NextAvailablePath(folder, fh.Filename)
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			return nil, fmt.Errorf("failed to save %s: %v", fh.Filename, err)
		}
		ref, err := tool.ResolveFileRef(dst)
		if err != nil {
			return nil, err
		}
		if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
			ref.MimeType = ct
		}
		tool.DefaultLogger.Debugf("[Upload] Saved %s to %s", fh.Filename, dst)
		refs = append(refs, ref)
	}
	return refs, nil
}

// RemoveFile drops a file while the submission is idle.
// DELETE /api/submission/v1/sessions/:id/files/:itemId
func RemoveFile(c *gin.Context) {
	sub, ok := lookup(c)
	if !ok {
		return
	}
	if err := sub.RemoveFile(c.Param("itemId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// AddLink attaches an http(s) link.
// POST /api/submission/v1/sessions/:id/links
func AddLink(c *gin.Context) {
	sub, ok := lookup(c)
	if !ok {
		return
	}
	var body addLinkRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError(err.Error()))
		return
	}
	item, err := sub.AddLink(body.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(item))
}

// RemoveLink drops a link while the submission is idle.
// DELETE /api/submission/v1/sessions/:id/links/:itemId
func RemoveLink(c *gin.Context) {
	sub, ok := lookup(c)
	if !ok {
		return
	}
	if err := sub.RemoveLink(c.Param("itemId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// SetText replaces the free-text content.
// PUT /api/submission/v1/sessions/:id/text
func SetText(c *gin.Context) {
	sub, ok := lookup(c)
	if !ok {
		return
	}
	var body setTextRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError(err.Error()))
		return
	}
	if err := sub.SetText(body.Text); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// SetArticleType sets the classification tag; a JSON null clears it.
// PUT /api/submission/v1/sessions/:id/article-type
func SetArticleType(c *gin.Context) {
	sub, ok := lookup(c)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError(err.Error()))
		return
	}
	var articleType *types.ArticleType
	if body := bytes.TrimSpace(raw); len(body) > 0 && string(body) != "null" {
		var at types.ArticleType
		if err := sonic.Unmarshal(body, &at); err != nil {
			c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid article type: "+err.Error()))
			return
		}
		if at.ID == "" {
			c.JSON(http.StatusBadRequest, tool.FastReturnError("Article type id is required"))
			return
		}
		articleType = &at
	}
	if err := sub.SetArticleType(articleType); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}
