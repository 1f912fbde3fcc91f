package middleware

import (
	"net/http"

	goToken "github.com/MrEthical07/goToken"
)

// RequireDPoP accepts only "Authorization: DPoP" requests carrying a proof.
func RequireDPoP(engine *goToken.Engine, opts ...Option) func(http.Handler) http.Handler {
	return newGuard(engine, SchemeDPoP, false, opts).middleware
}

// RequireBound accepts any scheme but rejects verified tokens that carry no
// cnf confirmation, so plain bearer tokens never reach the handler.
func RequireBound(engine *goToken.Engine, opts ...Option) func(http.Handler) http.Handler {
	return newGuard(engine, SchemeAny, true, opts).middleware
}
