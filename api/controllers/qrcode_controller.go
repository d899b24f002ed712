package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/moyoez/submitsession/tool"
)

const (
	defaultQRSize = 200
	maxQRSize     = 512
)

// SessionQRCode returns a PNG QR code pointing at the session's status URL,
// so a second device on the same machine's network can follow the run.
// GET /api/submission/v1/sessions/:id/qrcode?size=200x200
func SessionQRCode(c *gin.Context) {
	if _, ok := lookup(c); !ok {
		return
	}

	size := parseSize(c.Query("size"))
	if size <= 0 {
		size = defaultQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	data := fmt.Sprintf("%s://%s/api/submission/v1/sessions/%s", scheme, c.Request.Host, c.Param("id"))

	png, err := qrcode.Encode(data, qrcode.Medium, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to encode QR code: "+err.Error()))
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// parseSize parses size from "200x200" or "200" and returns the pixel dimension.
func parseSize(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if idx := strings.Index(s, "x"); idx > 0 {
		s = strings.TrimSpace(s[:idx])
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
