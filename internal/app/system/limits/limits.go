// internal/app/system/limits/limits.go
package limits

// Request size limits.
// These limits help prevent memory exhaustion from oversized requests.
const (
	// MaxJSONBody is the maximum size of a JSON API request body.
	MaxJSONBody = 64 << 10 // 64 KB

	// MaxStreamMessage is the maximum size of one client websocket message.
	MaxStreamMessage = 4 << 10 // 4 KB
)
