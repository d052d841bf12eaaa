//go:build calldiag

package diag

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Serve starts the diagnostics endpoint on addr. Diagnostics never block the
// call path: the server runs on its own goroutine and failures are logged
// only.
func Serve(addr string, snap SnapshotFunc) {
	if addr == "" {
		return
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/debug/call", func(c *gin.Context) {
		c.JSON(http.StatusOK, snap())
	})

	go func() {
		log.Info().Str("module", "diag").Str("addr", addr).Msg("diagnostics endpoint up")
		if err := http.ListenAndServe(addr, r); err != nil {
			log.Warn().Err(err).Str("module", "diag").Msg("diagnostics server stopped")
		}
	}()
}
