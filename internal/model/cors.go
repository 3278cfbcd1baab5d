package model

// CORS header values set on every response.
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET,POST,PUT,PATCH,DELETE,HEAD,OPTIONS"
	CORSAllowHeaders = "Content-Type,Accept,Authorization,Accept-Language,User-Agent"
)

// CORSHeaders maps each proxy-owned CORS header to its value.
var CORSHeaders = map[string]string{
	"Access-Control-Allow-Origin":  CORSAllowOrigin,
	"Access-Control-Allow-Methods": CORSAllowMethods,
	"Access-Control-Allow-Headers": CORSAllowHeaders,
}
