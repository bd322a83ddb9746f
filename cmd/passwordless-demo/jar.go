package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ginJar carries the engine cookies on a gin request.
type ginJar struct {
	c      *gin.Context
	secure bool
}

func (j ginJar) Get(name string) (string, bool) {
	v, err := j.c.Cookie(name)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (j ginJar) Set(name, value string, ttl time.Duration) {
	j.c.SetSameSite(http.SameSiteLaxMode)
	j.c.SetCookie(name, value, int(ttl/time.Second), "/", "", j.secure, true)
}
