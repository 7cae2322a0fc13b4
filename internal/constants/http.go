package constants

const (
	APIFieldRequestID = "request_id"
)

const (
	ContentTypeTextUTF8 = "text/plain; charset=utf-8"
)

const (
	HeaderAccept                    = "Accept"
	HeaderAuthorization             = "Authorization"
	HeaderContentLength             = "Content-Length"
	HeaderContentType               = "Content-Type"
	HeaderContentDigest             = "Content-Digest"
	HeaderOrigin                    = "Origin"
	HeaderAccessControlAllowHeaders = "Access-Control-Allow-Headers"
	HeaderXAPIKey                   = "X-API-Key" // #nosec G101
	HeaderXRequestedWith            = "X-Requested-With"
)
