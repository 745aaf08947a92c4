package ocrworker

import "context"

// StubProvider is a Provider that returns one page of canned text without
// calling any external service, selected by DOCROUTER_OCR_PROVIDER=stub for
// local development and tests that exercise the worker without AWS
// credentials.
type StubProvider struct{}

func (StubProvider) Run(ctx context.Context, ext string, data []byte) (Result, error) {
	return Result{
		Blocks: []Block{
			{ID: "stub-1", BlockType: "LINE", Text: "stub OCR output", Page: 1, Confidence: 100},
		},
		PageCount: 1,
	}, nil
}
