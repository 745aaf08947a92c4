package ocrworker

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
)

// TextractProvider calls AWS Textract's synchronous document-analysis API.
// Textract processes one page per call for non-PDF images and up to its
// own page limit for PDFs; PageCount is derived from the highest page
// number Textract reports across the returned blocks rather than assumed.
type TextractProvider struct {
	client *textract.Client
}

// NewTextractProvider creates a TextractProvider using the default AWS
// credential chain (environment, shared config, instance role).
func NewTextractProvider(ctx context.Context) (*TextractProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &TextractProvider{client: textract.NewFromConfig(cfg)}, nil
}

func (p *TextractProvider) Run(ctx context.Context, ext string, data []byte) (Result, error) {
	out, err := p.client.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
		Document: &types.Document{
			Bytes: data,
		},
		FeatureTypes: []types.FeatureType{types.FeatureTypeTables, types.FeatureTypeForms},
	})
	if err != nil {
		return Result{}, classifyTextractError(err)
	}

	blocks := make([]Block, 0, len(out.Blocks))
	pageCount := 1
	for _, b := range out.Blocks {
		page := 1
		if b.Page != nil {
			page = int(*b.Page)
		}
		if page > pageCount {
			pageCount = page
		}
		text := ""
		if b.Text != nil {
			text = *b.Text
		}
		id := ""
		if b.Id != nil {
			id = *b.Id
		}
		confidence := 0.0
		if b.Confidence != nil {
			confidence = float64(*b.Confidence)
		}
		blocks = append(blocks, Block{
			ID:         id,
			BlockType:  string(b.BlockType),
			Text:       text,
			Page:       page,
			Confidence: confidence,
		})
	}

	return Result{Blocks: blocks, PageCount: pageCount}, nil
}
