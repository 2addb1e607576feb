// Package auth checks the shared token carried in a frame's auth block.
//
// Tokens gate which peers may open a framed session; they are not tied to
// individual commands.
package auth

import (
	"crypto/subtle"
	"errors"

	"github.com/danmuck/edgelink/internal/protocol/frame"
)

var (
	ErrUnauthorized  = errors.New("auth: unauthorized")
	ErrTokenRequired = errors.New("auth: frame carries no token")
)

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one shared token. An empty Token denies all.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// Attach places token in f's auth block. An empty token leaves f untouched.
// The frame encoder sets FlagHasAuth from the block length.
func Attach(f *frame.Frame, token string) {
	if token == "" {
		return
	}
	f.Auth = []byte(token)
}

// CheckFrame validates the token in f's auth block.
func CheckFrame(v Validator, f frame.Frame) error {
	if f.Header.Flags&frame.FlagHasAuth == 0 || len(f.Auth) == 0 {
		return ErrTokenRequired
	}
	return v.Validate(string(f.Auth))
}
