package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"example.com/order-saga/pkg/logger"
)

// Recovery — middleware для перехвата паник в HTTP обработчиках.
// Логирует stack trace и возвращает 500 без деталей паники клиенту.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())

				log := logger.FromContext(c.Request.Context())
				log.Error().
					Interface("panic", r).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Str("stack", stack).
					Msg("Перехвачена паника в HTTP handler")

				// Не раскрываем детали паники клиенту
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Внутренняя ошибка сервера",
				})
			}
		}()

		c.Next()
	}
}
