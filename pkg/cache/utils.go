package cache

import "encoding/json"

// decodeString binds a raw cached payload to dest with the same semantics as
// RedisCache.Get: string destinations get the payload verbatim, everything
// else is JSON-decoded.
func decodeString(raw string, dest interface{}) error {
	if strPtr, ok := dest.(*string); ok {
		*strPtr = raw
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}
