package document

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// decodeDataURL decodes a "data:<mediatype>;base64,<data>" string into its
// raw bytes. Upload requests carry document content this way so a single
// JSON body can hold both metadata and file bytes.
func decodeDataURL(s string) ([]byte, error) {
	const prefix = "data:"
	if !strings.HasPrefix(s, prefix) {
		return nil, fmt.Errorf("content must be a data URL")
	}

	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URL: missing comma")
	}

	header := s[len(prefix):comma]
	if !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("data URL must be base64-encoded")
	}

	data, err := base64.StdEncoding.DecodeString(s[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("decoding base64 data URL payload: %w", err)
	}
	return data, nil
}
