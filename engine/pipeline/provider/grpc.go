package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/menusense/pipeline/engine/domain"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// GRPCOCR and GRPCCategorizer call an external ML worker over gRPC, dialed
// the same way cmd/pipeline-api wires its other external clients
// (grpc.NewClient with insecure transport credentials for a trusted
// internal network). Request/response payloads are carried as
// google.protobuf.Struct so the pipeline doesn't depend on generated
// per-method stubs for a service definition outside this repo's scope —
// the ML worker's .proto is an external collaborator (see spec.md §1).

// GRPCOCR calls the "Extract" method on an ML worker's OCR service.
type GRPCOCR struct {
	Conn *grpc.ClientConn
}

func (g *GRPCOCR) Extract(ctx context.Context, imageBytes []byte, granularity string) ([]domain.OCRElement, error) {
	req, err := structpb.NewStruct(map[string]any{
		"image_base64": encodeBytes(imageBytes),
		"granularity":  granularity,
	})
	if err != nil {
		return nil, fmt.Errorf("encode ocr request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := g.Conn.Invoke(ctx, "/mlworker.v1.OCRService/Extract", req, resp); err != nil {
		return nil, fmt.Errorf("ocr extract rpc: %w", err)
	}
	return decodeOCRElements(resp)
}

// GRPCCategorizer calls the "Categorize" method on an ML worker's LLM service.
type GRPCCategorizer struct {
	Conn *grpc.ClientConn
}

func (g *GRPCCategorizer) Categorize(ctx context.Context, formattedText, granularity string) (domain.CategorizedMenu, error) {
	var out domain.CategorizedMenu
	req, err := structpb.NewStruct(map[string]any{
		"formatted_text": formattedText,
		"granularity":    granularity,
	})
	if err != nil {
		return out, fmt.Errorf("encode categorize request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := g.Conn.Invoke(ctx, "/mlworker.v1.CategorizeService/Categorize", req, resp); err != nil {
		return out, fmt.Errorf("categorize rpc: %w", err)
	}
	if err := remarshal(resp, &out); err != nil {
		return out, fmt.Errorf("decode categorize response: %w", err)
	}
	return out, nil
}

// GRPCTranslator calls the "Translate" method on an ML worker's LLM
// service, used by RunTranslation.
type GRPCTranslator struct {
	Conn *grpc.ClientConn
}

func (g *GRPCTranslator) Translate(ctx context.Context, name, category, targetLang string) (string, string, error) {
	req, err := structpb.NewStruct(map[string]any{
		"name": name, "category": category, "target_lang": targetLang,
	})
	if err != nil {
		return "", "", fmt.Errorf("encode translate request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := g.Conn.Invoke(ctx, "/mlworker.v1.LLMService/Translate", req, resp); err != nil {
		return "", "", fmt.Errorf("translate rpc: %w", err)
	}
	m := resp.AsMap()
	return stringField(m, "translated_name"), stringField(m, "translated_category"), nil
}

// GRPCDescriber calls the "Describe" method on an ML worker's LLM service,
// used by RunDescription.
type GRPCDescriber struct {
	Conn *grpc.ClientConn
}

func (g *GRPCDescriber) Describe(ctx context.Context, name, category string) (string, error) {
	req, err := structpb.NewStruct(map[string]any{"name": name, "category": category})
	if err != nil {
		return "", fmt.Errorf("encode describe request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := g.Conn.Invoke(ctx, "/mlworker.v1.LLMService/Describe", req, resp); err != nil {
		return "", fmt.Errorf("describe rpc: %w", err)
	}
	return stringField(resp.AsMap(), "description"), nil
}

// GRPCAllergenExtractor calls the "ExtractAllergens" method on an ML
// worker's LLM service, used by RunAllergen.
type GRPCAllergenExtractor struct {
	Conn *grpc.ClientConn
}

func (g *GRPCAllergenExtractor) ExtractAllergens(ctx context.Context, name, category string) (AllergenResult, error) {
	var out AllergenResult
	req, err := structpb.NewStruct(map[string]any{"name": name, "category": category})
	if err != nil {
		return out, fmt.Errorf("encode allergen request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := g.Conn.Invoke(ctx, "/mlworker.v1.LLMService/ExtractAllergens", req, resp); err != nil {
		return out, fmt.Errorf("extract allergens rpc: %w", err)
	}
	if err := remarshal(resp, &out); err != nil {
		return out, fmt.Errorf("decode allergen response: %w", err)
	}
	return out, nil
}

// GRPCIngredientExtractor calls the "ExtractIngredients" method on an ML
// worker's LLM service, used by RunIngredient.
type GRPCIngredientExtractor struct {
	Conn *grpc.ClientConn
}

func (g *GRPCIngredientExtractor) ExtractIngredients(ctx context.Context, name, category string) (IngredientResult, error) {
	var out IngredientResult
	req, err := structpb.NewStruct(map[string]any{"name": name, "category": category})
	if err != nil {
		return out, fmt.Errorf("encode ingredient request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := g.Conn.Invoke(ctx, "/mlworker.v1.LLMService/ExtractIngredients", req, resp); err != nil {
		return out, fmt.Errorf("extract ingredients rpc: %w", err)
	}
	if err := remarshal(resp, &out); err != nil {
		return out, fmt.Errorf("decode ingredient response: %w", err)
	}
	return out, nil
}

// GRPCImageSearcher calls the "SearchImages" method on an ML worker's
// image search service, used by RunSearchImage.
type GRPCImageSearcher struct {
	Conn *grpc.ClientConn
}

func (g *GRPCImageSearcher) SearchImages(ctx context.Context, name, category string, count int) ([]ImageResult, error) {
	req, err := structpb.NewStruct(map[string]any{"name": name, "category": category, "count": float64(count)})
	if err != nil {
		return nil, fmt.Errorf("encode image search request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := g.Conn.Invoke(ctx, "/mlworker.v1.ImageSearchService/SearchImages", req, resp); err != nil {
		return nil, fmt.Errorf("search images rpc: %w", err)
	}
	var wrapper struct {
		Results []ImageResult `json:"results"`
	}
	if err := remarshal(resp, &wrapper); err != nil {
		return nil, fmt.Errorf("decode image search response: %w", err)
	}
	return wrapper.Results, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func remarshal(s *structpb.Struct, out any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func encodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeOCRElements(s *structpb.Struct) ([]domain.OCRElement, error) {
	var wrapper struct {
		Elements []domain.OCRElement `json:"elements"`
	}
	if err := remarshal(s, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Elements, nil
}
