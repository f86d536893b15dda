// Package domain defines the core types, constants, and validation for the
// menu processing pipeline. It acts as the validation gate at pipeline
// entry points.
package domain

import (
	"encoding/json"
	"time"
)

// SessionStatus is the lifecycle state of a processing session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "PENDING"
	StatusProcessing SessionStatus = "PROCESSING"
	StatusCompleted  SessionStatus = "COMPLETED"
	StatusFailed     SessionStatus = "FAILED"
)

// Stage names, in canonical completion order.
const (
	StageOCR        = "ocr"
	StageMapping    = "mapping"
	StageCategorize = "categorize"
)

// The StageKey constants are the stages blob keys the Coordinator writes at
// each stage boundary, one level more specific than the bare stage name.
const (
	StageKeyOCR        = "ocr_completed"
	StageKeyMapping    = "mapping_completed"
	StageKeyCategorize = "categorize_completed"
)

// Session is one pipeline execution for one uploaded image.
type Session struct {
	ID               string                     `json:"id"`
	Status           SessionStatus              `json:"status"`
	CurrentStage     string                     `json:"current_stage"`
	Stages           map[string]json.RawMessage `json:"stages"`
	ItemIDs          []string                   `json:"item_ids"`
	Progress         int                        `json:"progress"`
	ProgressTaskName string                     `json:"progress_task_name,omitempty"`
	ProgressStatus   string                     `json:"progress_status,omitempty"`
	CreatedAt        time.Time                  `json:"created_at"`
	UpdatedAt        time.Time                  `json:"updated_at"`
}

// MenuItem is one row of structured data extracted from the categorize
// stage, with enrichment fields progressively populated by worker tasks.
type MenuItem struct {
	ID                   string    `json:"id"`
	SessionID            string    `json:"session_id"`
	Name                 string    `json:"name"`
	Category             string    `json:"category"`
	Price                string    `json:"price"`
	Translation          *string   `json:"translation,omitempty"`
	CategoryTranslation  *string   `json:"category_translation,omitempty"`
	Description          *string   `json:"description,omitempty"`
	Allergy              *string   `json:"allergy,omitempty"`
	Ingredient           *string   `json:"ingredient,omitempty"`
	SearchImages         *string   `json:"search_images,omitempty"` // JSON-encoded []string
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// OCRElement is one text fragment located on the menu image.
type OCRElement struct {
	Text    string  `json:"text"`
	XCenter float64 `json:"x_center"`
	YCenter float64 `json:"y_center"`
}

// TextDensity classifies how dense the OCR output is.
type TextDensity string

const (
	DensityHigh   TextDensity = "high"
	DensityMedium TextDensity = "medium"
	DensityLow    TextDensity = "low"
)

// CategorizedMenu is the structural output of stage 3.
type CategorizedMenu struct {
	Menu struct {
		Categories []MenuCategory `json:"categories"`
	} `json:"menu"`
}

// MenuCategory groups items under a named category.
type MenuCategory struct {
	Name           string           `json:"name"`
	JapaneseName   string           `json:"japanese_name,omitempty"`
	Items          []CategoryItem   `json:"items"`
}

// CategoryItem is one raw item as returned by the categorization provider,
// before uniqueness filtering and MenuItem creation.
type CategoryItem struct {
	Name        string `json:"name"`
	Price       string `json:"price,omitempty"`
	Description string `json:"description,omitempty"`
}
