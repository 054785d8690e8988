package store

import "fmt"

// ETag renders an opaque version-id (or any content hash) as a strong
// HTTP ETag (§4.7: "Object/version ETag encodes the version-id").
func ETag(token string) string {
	return fmt.Sprintf("%q", token)
}
