package common

// AuthorizationHeaderName carries "Bearer <access token>" on requests.
const AuthorizationHeaderName = "Authorization"

// AccessTokenQueryParam is accepted in place of the header for plain links
// such as folder downloads.
const AccessTokenQueryParam = "token"

// RequestIDHeaderName is echoed back on every response.
const RequestIDHeaderName = "X-Request-Id"
