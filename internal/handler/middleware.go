package handler

import (
	"fmt"
	"strings"
	"time"

	"retailbank/internal/service"
	"retailbank/pkg/logger"
	"retailbank/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ctxKeyRequestID = "request_id"
	ctxKeyPrincipal = "principal"
	headerRequestID = "X-Request-ID"
)

// RequestIDMiddleware 透传或生成请求ID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if query != "" {
			path = path + "?" + query
		}

		logger.Infof("[HTTP] %d | %13v | %15s | %-7s %s | %s",
			c.Writer.Status(),
			time.Since(start),
			c.ClientIP(),
			c.Request.Method,
			path,
			c.GetString(ctxKeyRequestID),
		)
	}
}

// RecoveryMiddleware 防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorf("[PANIC] %v | %s", err, c.GetString(ctxKeyRequestID))
				response.Abort(c, 500, response.CodeServerError, "服务器内部错误")
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// JWTAuthMiddleware 校验 Bearer token（HS256），claims 中的 user_id / email / is_staff 组成 Principal
func JWTAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			response.Abort(c, 401, response.CodeUnauthorized, "缺少 Authorization 头")
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			response.Abort(c, 401, response.CodeUnauthorized, "无效的 token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.Abort(c, 401, response.CodeUnauthorized, "无效的 token claims")
			return
		}

		userID, ok := claims["user_id"].(float64)
		if !ok || userID <= 0 {
			response.Abort(c, 401, response.CodeUnauthorized, "token 中缺少 user_id")
			return
		}
		email, _ := claims["email"].(string)
		isStaff, _ := claims["is_staff"].(bool)

		c.Set(ctxKeyPrincipal, service.Principal{
			UserID:  int64(userID),
			Email:   email,
			IsStaff: isStaff,
		})
		c.Next()
	}
}

// StaffOnlyMiddleware 必须放在 JWTAuthMiddleware 之后
func StaffOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !principalFrom(c).IsStaff {
			response.Abort(c, 403, response.CodeForbidden, service.ErrForbidden.Error())
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) service.Principal {
	if v, ok := c.Get(ctxKeyPrincipal); ok {
		if p, ok := v.(service.Principal); ok {
			return p
		}
	}
	return service.Principal{}
}
