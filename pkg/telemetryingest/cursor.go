package telemetryingest

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// encodeCursor and decodeCursor mirror httpserver.EncodeCursor/DecodeCursor's
// "timestamp:id" base64 encoding, but over a string id rather than a
// uuid.UUID: telemetry record ids are internal/idgen hex ids, not UUIDs, so
// the shared helper's uuid.Parse call cannot round-trip them.
func encodeCursor(k CursorKey) string {
	raw := fmt.Sprintf("%d:%s", k.UploadDate.UnixMicro(), k.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (CursorKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return CursorKey{}, fmt.Errorf("decoding cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return CursorKey{}, fmt.Errorf("invalid cursor format")
	}
	usec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return CursorKey{}, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	return CursorKey{UploadDate: time.UnixMicro(usec).UTC(), ID: parts[1]}, nil
}
