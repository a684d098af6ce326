// Package auth provides HTTP authentication middleware for the gateload server.
//
// APIKey(mode, header, key) wraps a handler and validates the API key carried
// in the named request header. When mode != "apikey" or key == "", every
// request passes through (local development with auth disabled). A missing or
// wrong key is answered with 401 before the wrapped handler runs.
package auth
