package model

import (
	"fmt"
	"strings"
)

// Dimension is one of the six fixed life-area categories tracked independently
type Dimension string

const (
	DimensionCognitive     Dimension = "cognitive"
	DimensionCreative      Dimension = "creative"
	DimensionPhysiological Dimension = "physiological"
	DimensionBehavioral    Dimension = "behavioral"
	DimensionKnowledge     Dimension = "knowledge"
	DimensionReflection    Dimension = "reflection"
)

// AllDimensions lists every dimension in canonical order
var AllDimensions = []Dimension{
	DimensionCognitive,
	DimensionCreative,
	DimensionPhysiological,
	DimensionBehavioral,
	DimensionKnowledge,
	DimensionReflection,
}

// Valid reports whether d is one of the six known dimensions
func (d Dimension) Valid() bool {
	switch d {
	case DimensionCognitive, DimensionCreative, DimensionPhysiological,
		DimensionBehavioral, DimensionKnowledge, DimensionReflection:
		return true
	}
	return false
}

// ParseDimension parses a dimension name case-insensitively
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDimension, s)
	}
	return d, nil
}

// DimensionPtr returns a pointer to d, used for optional dimension scopes
func DimensionPtr(d Dimension) *Dimension {
	return &d
}
