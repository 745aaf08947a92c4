package llmprovider

// jsonSchemaModels lists models whose API natively supports a JSON-schema
// constrained response format. Anthropic's Messages API has no equivalent
// of OpenAI's response_format=json_schema, so every Anthropic model is
// excluded here.
var jsonSchemaModels = map[string]bool{
	"gpt-4o":      true,
	"gpt-4o-mini": true,
}

// pdfInputModels lists models whose chat API accepts PDF/image content
// parts directly, enabling the multimodal path (page images alongside
// OCR text) instead of OCR-text-only input.
var pdfInputModels = map[string]bool{
	"gpt-4o":                     true,
	"gpt-4o-mini":                true,
	"claude-3-5-sonnet-20241022": true,
	"claude-3-5-haiku-20241022":  true,
	"claude-3-opus-20240229":     true,
}

// SupportsJSONSchema reports whether model accepts a schema-constrained
// response format. When false, callers fall back to free-form JSON with a
// follow-up parse attempt.
func SupportsJSONSchema(model string) bool {
	return jsonSchemaModels[model]
}

// SupportsPDFInput reports whether model accepts multimodal PDF/image
// content parts. When false, callers send OCR text only.
func SupportsPDFInput(model string) bool {
	return pdfInputModels[model]
}
