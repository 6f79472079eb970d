package gateway

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// staticFiles serves files under root for any path no API route matched.
// Only GET and HEAD are served. Directories resolve to their index.html and
// are never listed. Any path segment starting with "." is hidden.
func staticFiles(root string) gin.HandlerFunc {
	fs := http.Dir(root)
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			notFound(c)
			return
		}

		name := path.Clean("/" + c.Request.URL.Path)
		if hasDotSegment(name) {
			notFound(c)
			return
		}

		f, err := fs.Open(name)
		if err != nil {
			notFound(c)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			notFound(c)
			return
		}
		if info.IsDir() {
			name = path.Join(name, "index.html")
			index, err := fs.Open(name)
			if err != nil {
				notFound(c)
				return
			}
			defer index.Close()
			if info, err = index.Stat(); err != nil || info.IsDir() {
				notFound(c)
				return
			}
			f = index
		}

		http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
	}
}

func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func notFound(c *gin.Context) {
	c.String(http.StatusNotFound, "404 page not found")
}
