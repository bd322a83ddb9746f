package main

import (
	"errors"
	"net/http"
	"time"

	goPasswordless "github.com/MrEthical07/goPasswordless"
	"github.com/MrEthical07/goPasswordless/metrics/export/prometheus"
	"github.com/MrEthical07/goPasswordless/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionCookie = "pwl_session"

type server struct {
	engine *goPasswordless.Engine
	logger *zap.Logger
	secure bool
}

func newRouter(engine *goPasswordless.Engine, logger *zap.Logger, secure bool) *gin.Engine {
	s := &server{engine: engine, logger: logger, secure: secure}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.POST("/signin/code", s.sendCode)
	router.POST("/signin/verify", s.verifyCode)
	router.GET("/signin/link", s.followLink)
	router.POST("/signin/password", s.passwordSignIn)
	router.POST("/signout", s.signOut)
	router.GET("/metrics", gin.WrapH(prometheus.NewPrometheusExporter(engine).Handler()))

	me := router.Group("/me", fromHTTP(middleware.Guard(engine, middleware.Options{CookieName: sessionCookie})))
	me.GET("", s.me)
	me.PUT("/password", s.setPassword)
	me.DELETE("/password", s.removePassword)
	me.GET("/devices", s.devices)
	me.DELETE("/devices/:hash", s.revokeDevice)

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// fromHTTP runs a net/http middleware in front of the remaining gin
// handlers. The chain stops when the middleware does not call through.
func fromHTTP(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false
		mw(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
		})).ServeHTTP(c.Writer, c.Request)

		if !passed {
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *server) jar(c *gin.Context) ginJar {
	return ginJar{c: c, secure: s.secure}
}

type sendCodeBody struct {
	Email       string `json:"email" binding:"required"`
	RedirectURL string `json:"redirect_url"`
}

func (s *server) sendCode(c *gin.Context) {
	var body sendCodeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ctx := goPasswordless.WithClientIP(c.Request.Context(), c.ClientIP())
	res, err := s.engine.CookieSendSignInCode(ctx, s.jar(c), goPasswordless.SendCodeRequest{
		Recipient:   body.Email,
		RedirectURL: body.RedirectURL,
	})
	switch {
	case errors.Is(err, goPasswordless.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	case err != nil:
		s.logger.Warn("send sign-in code failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "try again later"})
		return
	case res.Status == goPasswordless.IssueTooManyRequests:
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}

	// Issued and resent look the same to the client.
	c.JSON(http.StatusAccepted, gin.H{"status": "sent", "expires_at": res.ExpiresAt})
}

type verifyBody struct {
	Email        string `json:"email" binding:"required"`
	Code         string `json:"code" binding:"required"`
	StaySignedIn bool   `json:"stay_signed_in"`
	RedirectURL  string `json:"redirect_url"`
}

func (s *server) verifyCode(c *gin.Context) {
	var body verifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.signIn(c, goPasswordless.SignInAttempt{
		Method:    goPasswordless.MethodCode,
		Recipient: body.Email,
		ShortCode: body.Code,
		SignInOptions: goPasswordless.SignInOptions{
			StaySignedIn:      body.StaySignedIn,
			RedirectURL:       body.RedirectURL,
			DeviceDescription: c.Request.UserAgent(),
		},
	}, false)
}

func (s *server) followLink(c *gin.Context) {
	code := c.Query("c")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.signIn(c, goPasswordless.SignInAttempt{
		Method:   goPasswordless.MethodLink,
		LongCode: code,
		SignInOptions: goPasswordless.SignInOptions{
			DeviceDescription: c.Request.UserAgent(),
		},
	}, true)
}

type passwordBody struct {
	Email        string `json:"email" binding:"required"`
	Password     string `json:"password" binding:"required"`
	StaySignedIn bool   `json:"stay_signed_in"`
	RedirectURL  string `json:"redirect_url"`
}

func (s *server) passwordSignIn(c *gin.Context) {
	var body passwordBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.signIn(c, goPasswordless.SignInAttempt{
		Method:    goPasswordless.MethodPassword,
		Recipient: body.Email,
		Password:  body.Password,
		SignInOptions: goPasswordless.SignInOptions{
			StaySignedIn:      body.StaySignedIn,
			RedirectURL:       body.RedirectURL,
			DeviceDescription: c.Request.UserAgent(),
		},
	}, false)
}

func (s *server) signIn(c *gin.Context, attempt goPasswordless.SignInAttempt, redirect bool) {
	ctx := goPasswordless.WithClientIP(c.Request.Context(), c.ClientIP())
	res, err := s.engine.CookieSignIn(ctx, s.jar(c), attempt)
	if err != nil {
		s.logger.Warn("sign-in failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "try again later"})
		return
	}

	if res.Status != goPasswordless.SignedIn {
		status := http.StatusUnauthorized
		switch res.Reason {
		case goPasswordless.RejectInvalidInput:
			status = http.StatusBadRequest
		case goPasswordless.RejectServiceFailure:
			status = http.StatusServiceUnavailable
		}
		resp := gin.H{"error": "sign-in rejected", "reason": res.Reason.String()}
		if !res.LockedUntil.IsZero() {
			resp["locked_until"] = res.LockedUntil
		}
		c.JSON(status, resp)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, res.SessionTicket, int(res.SessionLifetime/time.Second), "/", "", s.secure, true)

	if redirect {
		c.Redirect(http.StatusSeeOther, res.RedirectURL)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subject":        res.SubjectID,
		"redirect_url":   res.RedirectURL,
		"expires_at":     res.SessionExpiresAt,
		"device_trusted": res.DeviceTrusted,
	})
}

func (s *server) signOut(c *gin.Context) {
	c.SetCookie(sessionCookie, "", -1, "/", "", s.secure, true)
	c.Status(http.StatusNoContent)
}

func session(c *gin.Context) *goPasswordless.Session {
	sess, _ := middleware.SessionFromContext(c.Request.Context())
	return sess
}

func (s *server) me(c *gin.Context) {
	sess := session(c)
	c.JSON(http.StatusOK, gin.H{
		"subject":        sess.SubjectID,
		"methods":        sess.Methods,
		"trusted_device": sess.TrustedDevice,
		"expires_at":     sess.ExpiresAt,
	})
}

type setPasswordBody struct {
	Password string `json:"password" binding:"required"`
}

func (s *server) setPassword(c *gin.Context) {
	var body setPasswordBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := s.engine.SetPassword(c.Request.Context(), session(c).SubjectID, body.Password)
	if err != nil {
		s.logger.Warn("set password failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "try again later"})
		return
	}
	if res.Status == goPasswordless.PasswordDoesNotMeetStrengthRequirements {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": res.Status.String()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) removePassword(c *gin.Context) {
	res, err := s.engine.RemovePassword(c.Request.Context(), session(c).SubjectID)
	if err != nil {
		s.logger.Warn("remove password failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "try again later"})
		return
	}
	if res.Status == goPasswordless.PasswordRemoveNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "no password set"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) devices(c *gin.Context) {
	list, err := s.engine.TrustedDevices(c.Request.Context(), session(c).SubjectID)
	if err != nil {
		s.logger.Warn("list devices failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "try again later"})
		return
	}

	out := make([]gin.H, 0, len(list))
	for _, d := range list {
		out = append(out, gin.H{"id": d.DeviceIDHash, "description": d.Description, "added_on": d.AddedOn})
	}
	c.JSON(http.StatusOK, gin.H{"devices": out})
}

func (s *server) revokeDevice(c *gin.Context) {
	removed, err := s.engine.RevokeDevice(c.Request.Context(), session(c).SubjectID, c.Param("hash"))
	if err != nil {
		s.logger.Warn("revoke device failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "try again later"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device"})
		return
	}
	c.Status(http.StatusNoContent)
}
